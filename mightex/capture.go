package mightex

import "math"

// Controller owns the acquisition mode and exposure time and moves frames
// from the device buffer into a Frame.
type Controller struct {
	t        Transport
	mode     Mode
	exposure float64
}

// NewController returns a controller driving t.  The mode and exposure it
// reports are the zero values until they are set.
func NewController(t Transport) *Controller {
	return &Controller{t: t}
}

// Mode is the last mode accepted by the device
func (c *Controller) Mode() Mode {
	return c.mode
}

// ExposureTime is the last exposure time (ms) accepted by the device
func (c *Controller) ExposureTime() float64 {
	return c.exposure
}

// SetMode changes the acquisition mode
func (c *Controller) SetMode(m Mode) error {
	if !m.Valid() {
		return invalidConfig("mode %d is not Normal or Triggered", int(m))
	}
	if err := c.t.SetMode(m); err != nil {
		return &TransportError{Op: "set mode", Err: err}
	}
	c.mode = m
	return nil
}

// SetExposureTime changes the exposure time, in milliseconds.  It applies
// from the next capture on.
func (c *Controller) SetExposureTime(ms float64) error {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms <= 0 {
		return invalidConfig("exposure time %v ms must be positive", ms)
	}
	if err := c.t.SetExposure(ms); err != nil {
		return &TransportError{Op: "set exposure", Err: err}
	}
	c.exposure = ms
	return nil
}

// QueuedFrameCount returns the number of frames in the device buffer,
// 0 to MaxQueuedFrames.  A negative value means the transport failed.
func (c *Controller) QueuedFrameCount() int {
	n, err := c.t.QueuedFrames()
	if err != nil {
		return -1
	}
	return n
}

// ReadFrame pulls the oldest queued frame into f.  It does not wait; if the
// queue is empty it returns ErrNoFrameAvailable.
func (c *Controller) ReadFrame(f *Frame) error {
	n, err := c.t.QueuedFrames()
	if err != nil {
		return &TransportError{Op: "query buffer count", Err: err}
	}
	if n < 0 {
		return &TransportError{Op: "query buffer count"}
	}
	if n == 0 {
		return ErrNoFrameAvailable
	}
	samples, ts, err := c.t.ReadFrame()
	if err != nil {
		return &TransportError{Op: "read frame", Err: err}
	}
	return f.Capture(samples, ts)
}
