// Package serialport provides the byte-level link to the headset: options
// for opening a real serial port, a buffered ByteSource with "bytes
// available" and "read with timeout" semantics, and test doubles that stand
// in for hardware.
package serialport

import (
	"io"
	"time"
)

// DefaultBaudRate is the rate the headset dongle talks at.
const DefaultBaudRate = 9600

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter extends SerialPorter with timeout capabilities.
// go.bug.st/serial ports implement it; a read that times out returns 0, nil.
type TimeoutSerialPorter interface {
	SerialPorter
	// SetReadTimeout sets the read timeout for the serial port.
	SetReadTimeout(timeout time.Duration) error
}

// PortOpener opens the serial device at path. It is swapped out in tests
// and in dev mode.
type PortOpener func(path string, opts PortOptions) (SerialPorter, error)
