/*Package mightexusb implements the USB bulk transport for Mightex TCE-1304-U
line cameras, satisfying mightex.Transport.

Commands are written to the command OUT endpoint as

	[opcode] [payload length] [payload ...]

and answered on the command IN endpoint as

	[status] [payload length] [payload ...]

with status 0x01 for success.  Frame data is read from its own IN endpoint
after a get-frame command; it is PixelCount little-endian uint16 samples
followed by a little-endian uint16 timestamp.

This does not implement multi-device enumeration beyond picking a serial
number; a Device talks to exactly one camera.
*/
package mightexusb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/gousb"

	"github.jpl.nasa.gov/bdube/linescan/mathx"
	"github.jpl.nasa.gov/bdube/linescan/mightex"
)

const (
	// VID is the Mightex (Cypress FX2) vendor ID
	VID = 0x04B4

	// PID is the TCE-1304-U product ID
	PID = 0x0328

	cmdEndpoint   = 1
	frameEndpoint = 2

	statusOK = 0x01

	// ExposureUnit is the exposure resolution of the device, in ms
	ExposureUnit = 0.1

	// replies are never larger than one full-speed bulk packet
	replySize = 64

	// FrameBytes is the size of one frame on the wire
	FrameBytes = 2*mightex.PixelCount + 2
)

// opcodes
const (
	opFirmware    byte = 0x01
	opDeviceInfo  byte = 0x21
	opSetMode     byte = 0x30
	opSetExposure byte = 0x31
	opBufferCount byte = 0x33
	opGetFrame    byte = 0x34
	opGPIOWrite   byte = 0x40
	opGPIORead    byte = 0x41
)

var (
	// ErrNotFound is generated when no camera matches the requested IDs
	ErrNotFound = errors.New("mightexusb: no matching device found")

	// ErrShortReply is generated when a reply is too short to hold its header
	// or the payload it declares
	ErrShortReply = errors.New("mightexusb: reply shorter than declared")
)

// ErrRejected is generated when the device answers with a non-OK status
type ErrRejected struct {
	// Opcode is the command that was rejected
	Opcode byte

	// Status is the status byte returned by the device
	Status byte
}

// Error satisfies the error interface
func (e ErrRejected) Error() string {
	return fmt.Sprintf("mightexusb: command 0x%02X rejected with status 0x%02X", e.Opcode, e.Status)
}

// encodeCommand frames a command for the OUT endpoint
func encodeCommand(op byte, payload ...byte) []byte {
	out := make([]byte, 2, 2+len(payload))
	out[0] = op
	out[1] = byte(len(payload))
	return append(out, payload...)
}

// decodeReply checks the status of a reply and strips its header
func decodeReply(op byte, buf []byte) ([]byte, error) {
	if len(buf) < 2 {
		return nil, ErrShortReply
	}
	if buf[0] != statusOK {
		return nil, ErrRejected{Opcode: op, Status: buf[0]}
	}
	n := int(buf[1])
	if len(buf) < 2+n {
		return nil, ErrShortReply
	}
	return buf[2 : 2+n], nil
}

// decodeFrame splits a frame transfer into samples and timestamp.  A short
// transfer yields a short sample slice; the caller is expected to validate the
// length.
func decodeFrame(buf []byte) ([]uint16, uint16, error) {
	if len(buf) < 2 {
		return nil, 0, ErrShortReply
	}
	body := buf[:len(buf)-2]
	ts := binary.LittleEndian.Uint16(buf[len(buf)-2:])
	samples := make([]uint16, len(body)/2)
	for i := range samples {
		samples[i] = binary.LittleEndian.Uint16(body[2*i:])
	}
	return samples, ts, nil
}

// exposureCounts converts ms to device counts of ExposureUnit
func exposureCounts(ms float64) (uint16, error) {
	steps := mathx.Steps(ms, ExposureUnit)
	if steps < 1 || steps > math.MaxUint16 {
		return 0, fmt.Errorf("mightexusb: exposure %v ms outside [%v, %v] ms", ms, ExposureUnit, ExposureUnit*math.MaxUint16)
	}
	return uint16(steps), nil
}

// cString trims the NUL and space padding from a fixed width string field
func cString(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}

// Device is a camera on the USB bus.  It is not concurrent safe.
type Device struct {
	out    io.Writer
	in     io.Reader
	data   io.Reader
	closer func() error
}

// newDevice wires a Device to arbitrary endpoints
func newDevice(out io.Writer, in, data io.Reader, closer func() error) *Device {
	return &Device{out: out, in: in, data: data, closer: closer}
}

// Open finds the camera with the given vendor and product ID and claims its
// default interface.  If serial is not empty, only a camera with that serial
// number is accepted.  The open is retried with exponential backoff for a
// few seconds, since the camera may still be enumerating after power up.
func Open(vid, pid uint16, serial string) (*Device, error) {
	var d *Device
	op := func() error {
		var err error
		d, err = open(vid, pid, serial)
		if err != nil {
			log.Printf("mightexusb: open %04x:%04x failed, retrying: %v", vid, pid, err)
		}
		return err
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     50 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      5 * time.Second,
		Clock:               backoff.SystemClock})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func open(vid, pid uint16, serial string) (*Device, error) {
	ctx := gousb.NewContext()
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(vid) && desc.Product == gousb.ID(pid)
	})
	var dev *gousb.Device
	for _, candidate := range devs {
		if dev != nil {
			candidate.Close()
			continue
		}
		if serial != "" {
			sn, snErr := candidate.SerialNumber()
			if snErr != nil || sn != serial {
				candidate.Close()
				continue
			}
		}
		dev = candidate
	}
	if dev == nil {
		ctx.Close()
		if err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	if err = dev.SetAutoDetach(true); err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}
	iface, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}
	closeAll := func() error {
		done()
		err := dev.Close()
		if err2 := ctx.Close(); err == nil {
			err = err2
		}
		return err
	}
	out, err := iface.OutEndpoint(cmdEndpoint)
	if err != nil {
		closeAll()
		return nil, err
	}
	in, err := iface.InEndpoint(cmdEndpoint)
	if err != nil {
		closeAll()
		return nil, err
	}
	data, err := iface.InEndpoint(frameEndpoint)
	if err != nil {
		closeAll()
		return nil, err
	}
	return newDevice(out, in, data, closeAll), nil
}

// transact writes a command and returns the payload of the reply
func (d *Device) transact(op byte, payload ...byte) ([]byte, error) {
	cmd := encodeCommand(op, payload...)
	n, err := d.out.Write(cmd)
	if err != nil {
		return nil, err
	}
	if n != len(cmd) {
		return nil, fmt.Errorf("mightexusb: wrote %d bytes, not full %d required for command 0x%02X", n, len(cmd), op)
	}
	buf := make([]byte, replySize)
	n, err = d.in.Read(buf)
	if err != nil {
		return nil, err
	}
	return decodeReply(op, buf[:n])
}

// Identity returns the serial number and firmware version of the camera
func (d *Device) Identity() (string, string, error) {
	fw, err := d.transact(opFirmware)
	if err != nil {
		return "", "", err
	}
	if len(fw) < 3 {
		return "", "", ErrShortReply
	}
	info, err := d.transact(opDeviceInfo)
	if err != nil {
		return "", "", err
	}
	// 14 bytes of model name then 14 bytes of serial number
	if len(info) < 28 {
		return "", "", ErrShortReply
	}
	firmware := fmt.Sprintf("%d.%d.%d", fw[0], fw[1], fw[2])
	return cString(info[14:28]), firmware, nil
}

// SetMode sets the acquisition mode
func (d *Device) SetMode(m mightex.Mode) error {
	_, err := d.transact(opSetMode, byte(m))
	return err
}

// SetExposure sets the exposure time in ms, rounded to ExposureUnit
func (d *Device) SetExposure(ms float64) error {
	counts, err := exposureCounts(ms)
	if err != nil {
		return err
	}
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, counts)
	_, err = d.transact(opSetExposure, buf...)
	return err
}

// QueuedFrames returns the number of frames in the camera's buffer
func (d *Device) QueuedFrames() (int, error) {
	resp, err := d.transact(opBufferCount)
	if err != nil {
		return -1, err
	}
	if len(resp) < 1 {
		return -1, ErrShortReply
	}
	return int(resp[0]), nil
}

// ReadFrame pops one frame from the camera's buffer
func (d *Device) ReadFrame() ([]uint16, uint16, error) {
	if _, err := d.transact(opGetFrame); err != nil {
		return nil, 0, err
	}
	// one bulk transfer; a short packet ends it early and the short
	// frame is reported by the caller's size check
	buf := make([]byte, FrameBytes)
	n, err := d.data.Read(buf)
	if err != nil {
		return nil, 0, err
	}
	return decodeFrame(buf[:n])
}

// WriteGPIO sets the level of a GPIO register
func (d *Device) WriteGPIO(reg, val byte) error {
	_, err := d.transact(opGPIOWrite, reg, val)
	return err
}

// ReadGPIO gets the level of a GPIO register
func (d *Device) ReadGPIO(reg byte) (byte, error) {
	resp, err := d.transact(opGPIORead, reg)
	if err != nil {
		return 0, err
	}
	if len(resp) < 1 {
		return 0, ErrShortReply
	}
	return resp[0], nil
}

// Close releases the interface, the device, and the USB context
func (d *Device) Close() error {
	if d.closer == nil {
		return nil
	}
	err := d.closer()
	d.closer = nil
	return err
}
