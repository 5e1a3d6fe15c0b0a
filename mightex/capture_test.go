package mightex

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestQueuedFrameCountRange(t *testing.T) {
	m := NewMock()
	c := NewController(m)
	if n := c.QueuedFrameCount(); n != 0 {
		t.Errorf("expected empty queue, got %d", n)
	}
	for i := 0; i < 6; i++ {
		m.Push(uniform(1000, 100), uint16(i))
		n := c.QueuedFrameCount()
		if n < 0 || n > MaxQueuedFrames {
			t.Errorf("count %d outside [0,%d]", n, MaxQueuedFrames)
		}
	}
	m.FailCount = true
	if n := c.QueuedFrameCount(); n >= 0 {
		t.Errorf("expected negative count on transport fault, got %d", n)
	}
}

func TestFreeRunningMockFillsBuffer(t *testing.T) {
	m := NewMock()
	m.Gen = GaussianLine(1000, 10, 100)
	c := NewController(m)
	if n := c.QueuedFrameCount(); n != MaxQueuedFrames {
		t.Errorf("expected a full buffer in normal mode, got %d", n)
	}
}

func TestReadFrameEmptyQueue(t *testing.T) {
	c := NewController(NewMock())
	var f Frame
	err := c.ReadFrame(&f)
	if !errors.Is(err, ErrNoFrameAvailable) {
		t.Errorf("expected ErrNoFrameAvailable, got %v", err)
	}
	if errors.Is(err, ErrTransport) {
		t.Error("an empty queue must not look like a transport error")
	}
	if f.Captured() {
		t.Error("frame captured from an empty queue")
	}
}

func TestReadFrameTransportFault(t *testing.T) {
	m := NewMock()
	m.Push(uniform(1000, 100), 1)
	c := NewController(m)
	var f Frame

	m.FailCount = true
	err := c.ReadFrame(&f)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if !errors.Is(err, ErrMockFault) {
		t.Errorf("expected TransportError to unwrap to the transport's error, got %v", err)
	}

	m.FailCount = false
	m.FailRead = true
	if err = c.ReadFrame(&f); !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport from a failed read, got %v", err)
	}
}

func TestReadFrameOldestFirst(t *testing.T) {
	m := NewMock()
	c := NewController(m)
	for i := 1; i <= 3; i++ {
		m.Push(uniform(uint16(100*i), 0), uint16(i))
	}
	var f Frame
	for i := 1; i <= 3; i++ {
		if err := c.ReadFrame(&f); err != nil {
			t.Fatal(err)
		}
		if f.Timestamp() != uint16(i) {
			t.Errorf("expected frame %d, got timestamp %d", i, f.Timestamp())
		}
	}
	if n := c.QueuedFrameCount(); n != 0 {
		t.Errorf("expected drained queue, got %d", n)
	}
}

func TestReadFrameShortFrameKeepsPrevious(t *testing.T) {
	m := NewMock()
	c := NewController(m)
	first := uniform(1000, 100)
	m.Push(first, 1)
	var f Frame
	if err := c.ReadFrame(&f); err != nil {
		t.Fatal(err)
	}
	m.ShortFrame = true
	m.Push(uniform(2000, 200), 2)
	if err := c.ReadFrame(&f); !errors.Is(err, ErrInvalidFrameSize) {
		t.Fatalf("expected ErrInvalidFrameSize, got %v", err)
	}
	if diff := cmp.Diff(first, f.Raw()); diff != "" {
		t.Errorf("previous frame was not kept (-want +got):\n%s", diff)
	}
	if f.Timestamp() != 1 {
		t.Errorf("expected timestamp of previous frame, got %d", f.Timestamp())
	}
}

func TestInvalidExposureLeavesStateUnchanged(t *testing.T) {
	m := NewMock()
	c := NewController(m)
	if err := c.SetExposureTime(25); err != nil {
		t.Fatal(err)
	}
	for _, ms := range []float64{-5, 0, math.NaN(), math.Inf(1)} {
		err := c.SetExposureTime(ms)
		if !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("%v ms: expected ErrInvalidConfiguration, got %v", ms, err)
		}
	}
	if c.ExposureTime() != 25 || m.Exposure() != 25 {
		t.Errorf("exposure changed by rejected calls: controller %f device %f", c.ExposureTime(), m.Exposure())
	}
}

func TestInvalidModeLeavesStateUnchanged(t *testing.T) {
	m := NewMock()
	c := NewController(m)
	if err := c.SetMode(Triggered); err != nil {
		t.Fatal(err)
	}
	if err := c.SetMode(Mode(7)); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
	if c.Mode() != Triggered || m.CurrentMode() != Triggered {
		t.Errorf("mode changed by a rejected call: controller %v device %v", c.Mode(), m.CurrentMode())
	}
}

func TestRejectedCommandsLeaveStateUnchanged(t *testing.T) {
	m := NewMock()
	c := NewController(m)
	if err := c.SetExposureTime(5); err != nil {
		t.Fatal(err)
	}
	m.FailExposure = true
	m.FailMode = true
	if err := c.SetExposureTime(50); !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
	if err := c.SetMode(Triggered); !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
	if c.ExposureTime() != 5 || c.Mode() != Normal {
		t.Errorf("state changed by rejected commands: %f %v", c.ExposureTime(), c.Mode())
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Triggered ")
	if err != nil || m != Triggered {
		t.Errorf("expected Triggered, got %v %v", m, err)
	}
	m, err = ParseMode("normal")
	if err != nil || m != Normal {
		t.Errorf("expected Normal, got %v %v", m, err)
	}
	if _, err = ParseMode("burst"); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
	if s := Mode(9).String(); s != "Mode(9)" {
		t.Errorf("unexpected string for unknown mode %q", s)
	}
}

func TestGPIOValidation(t *testing.T) {
	m := NewMock()
	g := GPIO{t: m}
	if err := g.Write(4, 1); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration for register 4, got %v", err)
	}
	if err := g.Write(1, 2); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration for level 2, got %v", err)
	}
	if _, err := g.Read(200); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration for register 200, got %v", err)
	}
	if err := g.Write(3, 1); err != nil {
		t.Fatal(err)
	}
	v, err := g.Read(3)
	if err != nil || v != 1 {
		t.Errorf("expected level 1 on register 3, got %d %v", v, err)
	}
	m.FailGPIO = true
	if err = g.Write(3, 0); !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
	if _, err = g.Read(3); !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}

func TestTriggeredCapture(t *testing.T) {
	m := NewMock()
	m.Gen = GaussianLine(1000, 10, 100)
	c := NewController(m)
	g := GPIO{t: m}
	if err := c.SetMode(Triggered); err != nil {
		t.Fatal(err)
	}
	if n := c.QueuedFrameCount(); n != 0 {
		t.Fatalf("expected no frames before a trigger, got %d", n)
	}
	var f Frame
	if err := c.ReadFrame(&f); !errors.Is(err, ErrNoFrameAvailable) {
		t.Errorf("expected ErrNoFrameAvailable before trigger, got %v", err)
	}
	if err := g.Write(TriggerRegister, 1); err != nil {
		t.Fatal(err)
	}
	if err := g.Write(TriggerRegister, 0); err != nil {
		t.Fatal(err)
	}
	if n := c.QueuedFrameCount(); n != 1 {
		t.Errorf("expected one frame after a trigger pulse, got %d", n)
	}
	if err := c.ReadFrame(&f); err != nil {
		t.Errorf("expected a frame after trigger, got %v", err)
	}
}
