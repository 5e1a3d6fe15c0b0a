package mightex

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport is matched by every *TransportError with errors.Is
	ErrTransport = errors.New("mightex: transport error")

	// ErrNoFrameAvailable is returned by ReadFrame when the device queue is
	// empty.  It is a normal condition; poll and try again.
	ErrNoFrameAvailable = errors.New("mightex: no frame available")

	// ErrInvalidFrameSize is matched by every *FrameSizeError with errors.Is
	ErrInvalidFrameSize = errors.New("mightex: invalid frame size")

	// ErrInvalidConfiguration is generated when a mode, exposure, GPIO register
	// or GPIO level is out of range.  No command reaches the device.
	ErrInvalidConfiguration = errors.New("mightex: invalid configuration")

	// ErrClosed is generated by any operation on a session after Close
	ErrClosed = errors.New("mightex: session is closed")

	// ErrNoFrame is generated when the pipeline is run before the first capture
	ErrNoFrame = errors.New("mightex: no frame has been captured")

	// ErrFilterApplied is generated when the filter is applied a second time
	// to the same capture
	ErrFilterApplied = errors.New("mightex: filter already applied to this frame")
)

// TransportError wraps a failure reported by the transport collaborator
type TransportError struct {
	// Op is the operation that failed, e.g. "set mode"
	Op string

	// Err is the underlying error, may be nil for a bare rejection
	Err error
}

// Error satisfies the error interface
func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("mightex: %s: rejected by device", e.Op)
	}
	return fmt.Sprintf("mightex: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTransport) true
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// FrameSizeError is generated when a sample sequence does not hold PixelCount
// elements
type FrameSizeError struct {
	// Got is the number of samples received
	Got int
}

// Error satisfies the error interface
func (e *FrameSizeError) Error() string {
	return fmt.Sprintf("mightex: invalid frame size, got %d samples, expected %d", e.Got, PixelCount)
}

// Is makes errors.Is(err, ErrInvalidFrameSize) true
func (e *FrameSizeError) Is(target error) bool {
	return target == ErrInvalidFrameSize
}

func invalidConfig(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}
