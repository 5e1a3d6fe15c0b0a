package mightex

import (
	"fmt"
	"io"
	"strings"
)

// Mode is the acquisition mode of the sensor
type Mode int

const (
	// Normal is free-running capture; the device queues frames on its own
	Normal Mode = 0

	// Triggered captures only after an external trigger signal
	Triggered Mode = 1
)

// Valid returns true if m is a known mode
func (m Mode) Valid() bool {
	return m == Normal || m == Triggered
}

// String satisfies fmt.Stringer
func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case Triggered:
		return "triggered"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts "normal" or "triggered" (case insensitive) to a Mode
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal", "continuous":
		return Normal, nil
	case "triggered", "trigger":
		return Triggered, nil
	}
	return Normal, invalidConfig("unknown mode %q", s)
}

// Transport is the collaborator that physically talks to the sensor.
//
// Implementations need not be concurrent safe; a Session serializes nothing
// and expects exclusive use.  Ranges are validated by the Session before any
// method here is called.
type Transport interface {
	io.Closer

	// Identity returns the serial number and firmware version strings
	Identity() (serial, firmware string, err error)

	// SetMode programs the acquisition mode
	SetMode(Mode) error

	// SetExposure programs the exposure time in milliseconds
	SetExposure(ms float64) error

	// QueuedFrames returns the number of frames held in the device buffer
	QueuedFrames() (int, error)

	// ReadFrame pops the oldest frame from the device buffer
	ReadFrame() (samples []uint16, timestamp uint16, err error)

	// WriteGPIO sets the level of a GPIO register
	WriteGPIO(reg, val byte) error

	// ReadGPIO gets the level of a GPIO register
	ReadGPIO(reg byte) (byte, error)
}
