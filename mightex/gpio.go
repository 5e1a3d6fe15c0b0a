package mightex

// GPIORegisters is the number of digital I/O registers on the device
const GPIORegisters = 4

// GPIO is a pass-through to the digital I/O registers of the device.
// It does no debouncing or edge detection.
type GPIO struct {
	t Transport
}

// Write sets register reg to val (0 or 1)
func (g GPIO) Write(reg, val byte) error {
	if reg >= GPIORegisters {
		return invalidConfig("gpio register %d outside [0,%d]", reg, GPIORegisters-1)
	}
	if val > 1 {
		return invalidConfig("gpio level %d is not 0 or 1", val)
	}
	if err := g.t.WriteGPIO(reg, val); err != nil {
		return &TransportError{Op: "gpio write", Err: err}
	}
	return nil
}

// Read gets the level of register reg
func (g GPIO) Read(reg byte) (byte, error) {
	if reg >= GPIORegisters {
		return 0, invalidConfig("gpio register %d outside [0,%d]", reg, GPIORegisters-1)
	}
	v, err := g.t.ReadGPIO(reg)
	if err != nil {
		return 0, &TransportError{Op: "gpio read", Err: err}
	}
	return v, nil
}
