package serialmux

import (
	"io"

	"go.bug.st/serial"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// SerialPortFactory opens serial ports. The estimator service takes a
// factory so tests can inject ports without hardware.
type SerialPortFactory interface {
	Open(path string, opts PortOptions) (SerialPorter, error)
}

// RealPortFactory opens ports with go.bug.st/serial.
type RealPortFactory struct{}

// Open opens the serial device at path.
func (RealPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	return serial.Open(path, mode)
}
