package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenPort opens the serial device at path using opts. It satisfies
// SerialPortOpener and is the factory used outside of tests.
func OpenPort(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return port, nil
}

// NewRealSerialPortFactory returns the SerialPortFactory backed by OpenPort.
func NewRealSerialPortFactory() SerialPortFactory {
	return SerialPortOpener(OpenPort)
}

// PortNames lists the serial devices present on this host.
func PortNames() ([]string, error) {
	return serial.GetPortsList()
}
