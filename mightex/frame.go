package mightex

const (
	// PixelCount is the number of elements on the sensor
	PixelCount = 3648

	// DarkPixelCount is the number of light-shielded elements.  Their mean
	// is an estimate of the dark current of the sensor.
	DarkPixelCount = 13

	// DarkPixelOffset is the index of the first light-shielded element.
	// The shielded elements are contiguous.
	DarkPixelOffset = 0

	// MaxQueuedFrames is the depth of the frame buffer on the device
	MaxQueuedFrames = 4
)

// Frame holds the most recent capture.  The zero value is an empty frame
// with zeroed buffers.
type Frame struct {
	raw       [PixelCount]uint16
	working   [PixelCount]uint16
	timestamp uint16
	darkMean  uint16
	captured  bool
	filtered  bool
}

// Capture stores samples as the new raw data, copies it to the working
// buffer, and computes the dark mean.  If samples does not hold exactly
// PixelCount elements the frame is left untouched.
func (f *Frame) Capture(samples []uint16, timestamp uint16) error {
	if len(samples) != PixelCount {
		return &FrameSizeError{Got: len(samples)}
	}
	copy(f.raw[:], samples)
	f.working = f.raw
	var sum uint32
	for _, v := range f.raw[DarkPixelOffset : DarkPixelOffset+DarkPixelCount] {
		sum += uint32(v)
	}
	f.darkMean = uint16(sum / DarkPixelCount)
	f.timestamp = timestamp
	f.captured = true
	f.filtered = false
	return nil
}

// Raw returns a copy of the raw buffer
func (f *Frame) Raw() []uint16 {
	out := make([]uint16, PixelCount)
	copy(out, f.raw[:])
	return out
}

// Working returns a copy of the working (filtered) buffer
func (f *Frame) Working() []uint16 {
	out := make([]uint16, PixelCount)
	copy(out, f.working[:])
	return out
}

// Timestamp is the hardware timestamp of the capture
func (f *Frame) Timestamp() uint16 {
	return f.timestamp
}

// DarkMean is the mean of the dark pixels, rounded down
func (f *Frame) DarkMean() uint16 {
	return f.darkMean
}

// Captured is true once a frame has been stored
func (f *Frame) Captured() bool {
	return f.captured
}

// Filtered is true if the filter has been applied to this capture
func (f *Frame) Filtered() bool {
	return f.filtered
}
