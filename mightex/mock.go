package mightex

import (
	"errors"
	"math"
	"sync"
)

// TriggerRegister is the GPIO register the mock treats as the external
// trigger line.  A 0 -> 1 transition in Triggered mode queues one frame.
const TriggerRegister = 0

// ErrMockFault is returned by Mock when a fault has been injected
var ErrMockFault = errors.New("mock: injected fault")

// Generator synthesizes a frame for the mock.  n counts generated frames.
type Generator func(n int, exposure float64) []uint16

// GaussianLine returns a Generator of a gaussian spot of the given center and
// width (pixels) on a flat dark background.  The peak height grows linearly
// with exposure time and saturates at 65535.
func GaussianLine(center, width float64, dark uint16) Generator {
	return func(n int, exposure float64) []uint16 {
		out := make([]uint16, PixelCount)
		amp := 500 * exposure
		for i := range out {
			if i >= DarkPixelOffset && i < DarkPixelOffset+DarkPixelCount {
				out[i] = dark
				continue
			}
			d := (float64(i) - center) / width
			v := float64(dark) + amp*math.Exp(-d*d/2)
			if v > math.MaxUint16 {
				v = math.MaxUint16
			}
			out[i] = uint16(v)
		}
		return out
	}
}

type mockFrame struct {
	samples []uint16
	ts      uint16
}

// Mock is an in-memory Transport with a MaxQueuedFrames deep buffer.
//
// In Normal mode with a Generator set, the buffer is refilled on every
// QueuedFrames call, like a free-running camera.  In Triggered mode a frame is
// generated on a rising edge of TriggerRegister.  Frames can also be queued
// by hand with Push.
//
// The Fail* fields inject faults into the matching method.
type Mock struct {
	sync.Mutex

	SerialNumber    string
	FirmwareVersion string
	Gen             Generator

	FailIdentity bool
	FailMode     bool
	FailExposure bool
	FailCount    bool
	FailRead     bool
	FailGPIO     bool
	FailClose    bool

	// ShortFrame makes ReadFrame return one sample too few
	ShortFrame bool

	mode       Mode
	exposure   float64
	queue      []mockFrame
	generated  int
	clock      uint16
	gpio       [GPIORegisters]byte
	closeCalls int
}

// NewMock returns a mock with identity strings and no generator
func NewMock() *Mock {
	return &Mock{SerialNumber: "13-MOCK-0001", FirmwareVersion: "mock 1.0.0"}
}

// Push queues a frame, dropping the oldest if the buffer is full
func (m *Mock) Push(samples []uint16, ts uint16) {
	m.Lock()
	defer m.Unlock()
	m.push(samples, ts)
}

func (m *Mock) push(samples []uint16, ts uint16) {
	cp := make([]uint16, len(samples))
	copy(cp, samples)
	if len(m.queue) == MaxQueuedFrames {
		m.queue = m.queue[1:]
	}
	m.queue = append(m.queue, mockFrame{samples: cp, ts: ts})
}

func (m *Mock) generate() {
	if m.Gen == nil {
		return
	}
	m.clock++
	m.push(m.Gen(m.generated, m.exposure), m.clock)
	m.generated++
}

// Exposure returns the exposure last programmed
func (m *Mock) Exposure() float64 {
	m.Lock()
	defer m.Unlock()
	return m.exposure
}

// CurrentMode returns the mode last programmed
func (m *Mock) CurrentMode() Mode {
	m.Lock()
	defer m.Unlock()
	return m.mode
}

// CloseCalls returns the number of times Close was called
func (m *Mock) CloseCalls() int {
	m.Lock()
	defer m.Unlock()
	return m.closeCalls
}

// Identity satisfies Transport
func (m *Mock) Identity() (string, string, error) {
	m.Lock()
	defer m.Unlock()
	if m.FailIdentity {
		return "", "", ErrMockFault
	}
	return m.SerialNumber, m.FirmwareVersion, nil
}

// SetMode satisfies Transport
func (m *Mock) SetMode(mode Mode) error {
	m.Lock()
	defer m.Unlock()
	if m.FailMode {
		return ErrMockFault
	}
	if m.mode != mode {
		m.queue = m.queue[:0]
	}
	m.mode = mode
	return nil
}

// SetExposure satisfies Transport
func (m *Mock) SetExposure(ms float64) error {
	m.Lock()
	defer m.Unlock()
	if m.FailExposure {
		return ErrMockFault
	}
	m.exposure = ms
	return nil
}

// QueuedFrames satisfies Transport
func (m *Mock) QueuedFrames() (int, error) {
	m.Lock()
	defer m.Unlock()
	if m.FailCount {
		return -1, ErrMockFault
	}
	if m.mode == Normal {
		for len(m.queue) < MaxQueuedFrames && m.Gen != nil {
			m.generate()
		}
	}
	return len(m.queue), nil
}

// ReadFrame satisfies Transport
func (m *Mock) ReadFrame() ([]uint16, uint16, error) {
	m.Lock()
	defer m.Unlock()
	if m.FailRead {
		return nil, 0, ErrMockFault
	}
	if len(m.queue) == 0 {
		return nil, 0, errors.New("mock: frame buffer is empty")
	}
	f := m.queue[0]
	m.queue = m.queue[1:]
	if m.ShortFrame && len(f.samples) > 0 {
		return f.samples[:len(f.samples)-1], f.ts, nil
	}
	return f.samples, f.ts, nil
}

// WriteGPIO satisfies Transport
func (m *Mock) WriteGPIO(reg, val byte) error {
	m.Lock()
	defer m.Unlock()
	if m.FailGPIO {
		return ErrMockFault
	}
	if int(reg) >= len(m.gpio) {
		return errors.New("mock: no such gpio register")
	}
	rising := m.gpio[reg] == 0 && val == 1
	m.gpio[reg] = val
	if rising && reg == TriggerRegister && m.mode == Triggered {
		m.generate()
	}
	return nil
}

// ReadGPIO satisfies Transport
func (m *Mock) ReadGPIO(reg byte) (byte, error) {
	m.Lock()
	defer m.Unlock()
	if m.FailGPIO {
		return 0, ErrMockFault
	}
	if int(reg) >= len(m.gpio) {
		return 0, errors.New("mock: no such gpio register")
	}
	return m.gpio[reg], nil
}

// Close satisfies Transport
func (m *Mock) Close() error {
	m.Lock()
	defer m.Unlock()
	m.closeCalls++
	if m.FailClose {
		return ErrMockFault
	}
	return nil
}
