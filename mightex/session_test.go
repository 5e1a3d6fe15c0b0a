package mightex

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func openMock(t *testing.T, opts ...Option) (*Session, *Mock) {
	t.Helper()
	m := NewMock()
	s, err := Open(m, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return s, m
}

func ExampleSession() {
	m := NewMock()
	m.Push(uniform(1000, 100), 42)
	s, err := Open(m)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer s.Close()
	fmt.Println(s.Serial(), s.PixelCount(), s.DarkPixelCount())
	if err = s.ReadFrame(); err != nil {
		fmt.Println(err)
		return
	}
	s.ApplyFilter(nil)
	x, _ := s.ApplyEstimator(nil)
	fmt.Println(s.Timestamp(), s.DarkMean(), x)
	// Output:
	// 13-MOCK-0001 3648 13
	// 42 100 1830
}

func TestOpenProgramsDefaults(t *testing.T) {
	s, m := openMock(t)
	if s.Mode() != Normal || m.CurrentMode() != Normal {
		t.Errorf("expected Normal mode at open, got %v / %v", s.Mode(), m.CurrentMode())
	}
	if s.ExposureTime() != DefaultExposureTime || m.Exposure() != DefaultExposureTime {
		t.Errorf("expected default exposure at open, got %f / %f", s.ExposureTime(), m.Exposure())
	}
	if s.FilterName() != "default" || s.EstimatorName() != "default" {
		t.Errorf("expected default pipeline, got %s / %s", s.FilterName(), s.EstimatorName())
	}
	if s.ID() == "" {
		t.Error("expected a session id")
	}
	if s.Firmware() != "mock 1.0.0" {
		t.Errorf("unexpected firmware %q", s.Firmware())
	}
}

func TestOpenWithOptions(t *testing.T) {
	s, m := openMock(t, WithMode(Triggered), WithExposure(2.5), WithFilter(nil), WithEstimator(Peak{}))
	if m.CurrentMode() != Triggered || m.Exposure() != 2.5 {
		t.Errorf("options not pushed to device: %v %f", m.CurrentMode(), m.Exposure())
	}
	if s.FilterName() != "none" || s.EstimatorName() != "peak" {
		t.Errorf("unexpected pipeline %s / %s", s.FilterName(), s.EstimatorName())
	}
}

func TestOpenFailureClosesTransport(t *testing.T) {
	m := NewMock()
	m.FailIdentity = true
	if _, err := Open(m); !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
	if m.CloseCalls() != 1 {
		t.Errorf("expected transport closed once, got %d", m.CloseCalls())
	}

	m = NewMock()
	if _, err := Open(m, WithExposure(-1)); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
	if m.CloseCalls() != 1 {
		t.Errorf("expected transport closed once, got %d", m.CloseCalls())
	}
}

func TestAccessorsBeforeCapture(t *testing.T) {
	s, _ := openMock(t)
	zeros := make([]uint16, PixelCount)
	if diff := cmp.Diff(zeros, s.Raw()); diff != "" {
		t.Errorf("raw not zeroed before capture (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(zeros, s.Working()); diff != "" {
		t.Errorf("working not zeroed before capture (-want +got):\n%s", diff)
	}
	if s.Captured() || s.Timestamp() != 0 || s.DarkMean() != 0 {
		t.Error("expected empty frame metadata before capture")
	}
	if err := s.ApplyFilter(nil); !errors.Is(err, ErrNoFrame) {
		t.Errorf("expected ErrNoFrame, got %v", err)
	}
	if x, err := s.ApplyEstimator(nil); err != nil || x != 0 {
		t.Errorf("expected estimate 0 before capture, got %f %v", x, err)
	}
}

func TestCloseOnce(t *testing.T) {
	s, m := openMock(t)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on second close, got %v", err)
	}
	if m.CloseCalls() != 1 {
		t.Errorf("expected transport closed exactly once, got %d", m.CloseCalls())
	}
	if !s.Closed() {
		t.Error("session does not report closed")
	}
}

func TestOperationsAfterClose(t *testing.T) {
	s, m := openMock(t)
	m.Push(uniform(1000, 100), 1)
	s.Close()
	checks := map[string]error{
		"ReadFrame":       s.ReadFrame(),
		"SetMode":         s.SetMode(Triggered),
		"SetExposureTime": s.SetExposureTime(3),
		"ApplyFilter":     s.ApplyFilter(nil),
		"WriteGPIO":       s.WriteGPIO(0, 1),
	}
	_, checks["ReadGPIO"] = s.ReadGPIO(0)
	_, checks["ApplyEstimator"] = s.ApplyEstimator(nil)
	_, checks["Acquire"] = s.Acquire(nil)
	for name, err := range checks {
		if !errors.Is(err, ErrClosed) {
			t.Errorf("%s: expected ErrClosed, got %v", name, err)
		}
	}
	if n := s.QueuedFrameCount(); n >= 0 {
		t.Errorf("expected negative count on a closed session, got %d", n)
	}
}

func TestRoundTripAfterReset(t *testing.T) {
	s, m := openMock(t)
	in := uniform(1000, 100)
	in[2222] = 5000

	m.Push(in, 1)
	if err := s.ReadFrame(); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyFilter(nil); err != nil {
		t.Fatal(err)
	}
	first := s.Working()

	s.SetFilter(Threshold{Level: 3000})
	s.ResetFilter()
	m.Push(in, 2)
	if err := s.ReadFrame(); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyFilter(nil); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, s.Working()); diff != "" {
		t.Errorf("re-applied default filter differs (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(in, s.Raw()); diff != "" {
		t.Errorf("raw modified (-want +got):\n%s", diff)
	}
}

func TestAcquire(t *testing.T) {
	s, m := openMock(t)
	m.Gen = GaussianLine(3000, 15, 100)
	meas, err := s.Acquire(nil)
	if err != nil {
		t.Fatal(err)
	}
	if meas.SessionID != s.ID() || meas.Serial != s.Serial() {
		t.Errorf("measurement not tagged with session: %+v", meas)
	}
	if meas.DarkMean != 100 {
		t.Errorf("expected dark mean 100, got %d", meas.DarkMean)
	}
	if meas.Estimate < 2999.5 || meas.Estimate > 3000.5 {
		t.Errorf("expected estimate near 3000, got %f", meas.Estimate)
	}
	if meas.Checksum != s.Checksum() {
		t.Errorf("measurement checksum %04x differs from session %04x", meas.Checksum, s.Checksum())
	}
	if meas.Timestamp != s.Timestamp() {
		t.Errorf("measurement timestamp %d differs from session %d", meas.Timestamp, s.Timestamp())
	}
}

func TestAcquireEmptyQueue(t *testing.T) {
	s, _ := openMock(t, WithMode(Triggered))
	if _, err := s.Acquire(nil); !errors.Is(err, ErrNoFrameAvailable) {
		t.Errorf("expected ErrNoFrameAvailable, got %v", err)
	}
}

func TestChecksumTracksRaw(t *testing.T) {
	s, m := openMock(t)
	empty := s.Checksum()
	m.Push(uniform(1000, 100), 1)
	if err := s.ReadFrame(); err != nil {
		t.Fatal(err)
	}
	c1 := s.Checksum()
	if c1 == empty {
		t.Error("checksum did not change with the frame")
	}
	if err := s.ApplyFilter(nil); err != nil {
		t.Fatal(err)
	}
	if s.Checksum() != c1 {
		t.Error("checksum changed by filtering; it must cover raw data only")
	}
}

func TestVersion(t *testing.T) {
	if v := Version(); v != "mightex-go "+LibraryVersion {
		t.Errorf("unexpected version %q", v)
	}
}
