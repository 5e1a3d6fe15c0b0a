/*Package mightex is a userland driver for the Mightex TCE-1304-U line CCD camera.

The sensor has PixelCount elements, DarkPixelCount of which are shielded from
light.  A Session owns the connection to one camera and the most recent
frame.  A typical loop looks like:

	s, err := mightex.Open(t)
	if err != nil {
		return err
	}
	defer s.Close()
	for {
		err = s.ReadFrame()
		if errors.Is(err, mightex.ErrNoFrameAvailable) {
			time.Sleep(time.Millisecond)
			continue
		}
		if err != nil {
			return err
		}
		s.ApplyFilter(nil)
		x, _ := s.ApplyEstimator(nil)
		fmt.Println(x)
	}

Each capture keeps two buffers.  The raw buffer is what the camera sent and
is never modified.  The working buffer starts as a copy of it and is modified
in place by the filter, by default a dark-mean subtraction.  The estimator
reduces the working buffer to one number, by default the centroid of the
samples brighter than three times the dark mean.

A Session is not concurrent safe.  Callers sharing one must serialize access.
*/
package mightex

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
	"github.com/snksoft/crc"
)

const (
	// LibraryVersion is the version of this package.
	// Increment this when pkg mightex is updated.
	LibraryVersion = "1.2.0"

	// DefaultExposureTime is the exposure (ms) programmed by Open when no
	// WithExposure option is given
	DefaultExposureTime = 10.
)

var crcTable = crc.NewTable(crc.XMODEM)

// Version returns the library version string
func Version() string {
	return "mightex-go " + LibraryVersion
}

// Measurement is the result of one Acquire cycle
type Measurement struct {
	SessionID string    `json:"session"`
	Serial    string    `json:"serial"`
	Timestamp uint16    `json:"timestamp"`
	DarkMean  uint16    `json:"darkMean"`
	Estimate  float64   `json:"estimate"`
	Checksum  uint16    `json:"crc16"`
	Time      time.Time `json:"time"`
}

// Option configures a session at Open
type Option func(*openConfig)

type openConfig struct {
	mode      Mode
	exposure  float64
	filter    *Filter
	estimator Estimator
}

// WithMode sets the mode programmed at Open, default Normal
func WithMode(m Mode) Option {
	return func(c *openConfig) { c.mode = m }
}

// WithExposure sets the exposure time (ms) programmed at Open
func WithExposure(ms float64) Option {
	return func(c *openConfig) { c.exposure = ms }
}

// WithFilter sets the initial filter.  nil disables filtering.
func WithFilter(f Filter) Option {
	return func(c *openConfig) { c.filter = &f }
}

// WithEstimator sets the initial estimator
func WithEstimator(e Estimator) Option {
	return func(c *openConfig) { c.estimator = e }
}

// Session is an open connection to a camera.  It must be created with Open.
type Session struct {
	t         Transport
	id        string
	serial    string
	firmware  string
	ctl       *Controller
	gpio      GPIO
	frame     Frame
	filter    FilterStage
	estimator EstimatorStage
	closed    bool
}

// Open takes ownership of t, reads the identity of the camera and programs
// the initial mode and exposure.  If anything fails t is closed.
func Open(t Transport, opts ...Option) (*Session, error) {
	cfg := openConfig{mode: Normal, exposure: DefaultExposureTime}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Session{
		t:    t,
		id:   uuid.New().String(),
		ctl:  NewController(t),
		gpio: GPIO{t: t},
	}
	var err error
	s.serial, s.firmware, err = t.Identity()
	if err != nil {
		t.Close()
		return nil, &TransportError{Op: "identify", Err: err}
	}
	if err = s.ctl.SetMode(cfg.mode); err != nil {
		t.Close()
		return nil, err
	}
	if err = s.ctl.SetExposureTime(cfg.exposure); err != nil {
		t.Close()
		return nil, err
	}
	if cfg.filter != nil {
		s.filter.Set(*cfg.filter)
	}
	s.estimator.Set(cfg.estimator)
	return s, nil
}

// Close releases the transport.  Only the first call does anything; later
// calls return ErrClosed.
func (s *Session) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return s.t.Close()
}

// Closed is true after Close
func (s *Session) Closed() bool {
	return s.closed
}

// ID is a unique identifier generated at Open
func (s *Session) ID() string { return s.id }

// Serial is the serial number of the camera
func (s *Session) Serial() string { return s.serial }

// Firmware is the firmware version of the camera
func (s *Session) Firmware() string { return s.firmware }

// PixelCount returns PixelCount
func (s *Session) PixelCount() int { return PixelCount }

// DarkPixelCount returns DarkPixelCount
func (s *Session) DarkPixelCount() int { return DarkPixelCount }

// Mode is the current acquisition mode
func (s *Session) Mode() Mode { return s.ctl.Mode() }

// ExposureTime is the current exposure time in ms
func (s *Session) ExposureTime() float64 { return s.ctl.ExposureTime() }

// SetMode changes the acquisition mode
func (s *Session) SetMode(m Mode) error {
	if s.closed {
		return ErrClosed
	}
	return s.ctl.SetMode(m)
}

// SetExposureTime changes the exposure time, in ms
func (s *Session) SetExposureTime(ms float64) error {
	if s.closed {
		return ErrClosed
	}
	return s.ctl.SetExposureTime(ms)
}

// QueuedFrameCount is the number of frames waiting in the device buffer,
// or a negative number if the transport failed or the session is closed
func (s *Session) QueuedFrameCount() int {
	if s.closed {
		return -1
	}
	return s.ctl.QueuedFrameCount()
}

// ReadFrame pulls one frame from the device into the session
func (s *Session) ReadFrame() error {
	if s.closed {
		return ErrClosed
	}
	return s.ctl.ReadFrame(&s.frame)
}

// SetFilter replaces the filter.  nil disables filtering.
func (s *Session) SetFilter(f Filter) { s.filter.Set(f) }

// ResetFilter restores the default dark subtraction filter
func (s *Session) ResetFilter() { s.filter.Reset() }

// FilterName describes the active filter
func (s *Session) FilterName() string { return s.filter.Name() }

// ApplyFilter runs the filter on the working buffer.  The default filter is
// not idempotent, so only the first call after a capture does anything;
// later calls return ErrFilterApplied.
func (s *Session) ApplyFilter(userdata interface{}) error {
	if s.closed {
		return ErrClosed
	}
	return s.filter.Apply(&s.frame, userdata)
}

// SetEstimator replaces the estimator.  nil restores the default.
func (s *Session) SetEstimator(e Estimator) { s.estimator.Set(e) }

// ResetEstimator restores the default estimator
func (s *Session) ResetEstimator() { s.estimator.Reset() }

// EstimatorName describes the active estimator
func (s *Session) EstimatorName() string { return s.estimator.Name() }

// ApplyEstimator reduces the working buffer to a single value
func (s *Session) ApplyEstimator(userdata interface{}) (float64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	return s.estimator.Apply(&s.frame, userdata), nil
}

// WriteGPIO sets GPIO register reg (0-3) to val (0 or 1)
func (s *Session) WriteGPIO(reg, val byte) error {
	if s.closed {
		return ErrClosed
	}
	return s.gpio.Write(reg, val)
}

// ReadGPIO gets the level of GPIO register reg (0-3)
func (s *Session) ReadGPIO(reg byte) (byte, error) {
	if s.closed {
		return 0, ErrClosed
	}
	return s.gpio.Read(reg)
}

// Raw returns a copy of the raw buffer, all zeros before the first capture
func (s *Session) Raw() []uint16 { return s.frame.Raw() }

// Working returns a copy of the working buffer, all zeros before the first capture
func (s *Session) Working() []uint16 { return s.frame.Working() }

// Timestamp is the hardware timestamp of the last frame, 0 before the first capture
func (s *Session) Timestamp() uint16 { return s.frame.Timestamp() }

// DarkMean is the dark mean of the last frame, 0 before the first capture
func (s *Session) DarkMean() uint16 { return s.frame.DarkMean() }

// Captured is true once a frame has been read
func (s *Session) Captured() bool { return s.frame.Captured() }

// Checksum is the CRC-16/XMODEM of the raw buffer, little endian
func (s *Session) Checksum() uint16 {
	buf := make([]byte, 2*PixelCount)
	for i, v := range s.frame.raw {
		binary.LittleEndian.PutUint16(buf[2*i:], v)
	}
	return crcTable.CRC16(crcTable.UpdateCrc(crcTable.InitCrc(), buf))
}

// Acquire reads a frame, filters it and runs the estimator
func (s *Session) Acquire(userdata interface{}) (Measurement, error) {
	var m Measurement
	if err := s.ReadFrame(); err != nil {
		return m, err
	}
	if err := s.ApplyFilter(userdata); err != nil {
		return m, err
	}
	x, err := s.ApplyEstimator(userdata)
	if err != nil {
		return m, err
	}
	return Measurement{
		SessionID: s.id,
		Serial:    s.serial,
		Timestamp: s.frame.timestamp,
		DarkMean:  s.frame.darkMean,
		Estimate:  x,
		Checksum:  s.Checksum(),
		Time:      time.Now(),
	}, nil
}
