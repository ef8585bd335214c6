package serialmux

import (
	"errors"
	"testing"
)

func TestOpenPort_InvalidPath(t *testing.T) {
	// There is no device to open in unit tests, but a missing path must
	// surface as an error rather than a nil port.
	port, err := OpenPort("/dev/nonexistent-serial-port-12345", PortOptions{})
	if err == nil {
		port.Close()
		t.Fatal("expected error when opening non-existent serial port")
	}
	if port != nil {
		t.Error("expected nil port when error is returned")
	}
}

func TestOpenPort_InvalidOptions(t *testing.T) {
	_, err := OpenPort("/dev/nonexistent-serial-port-12345", PortOptions{DataBits: 9})
	if err == nil {
		t.Fatal("expected error for invalid data bits")
	}
}

func TestNewRealSerialPortFactory(t *testing.T) {
	factory := NewRealSerialPortFactory()
	if factory == nil {
		t.Fatal("NewRealSerialPortFactory returned nil")
	}
	if _, err := factory.Open("/dev/nonexistent-serial-port-12345", PortOptions{}); err == nil {
		t.Error("expected error when opening non-existent serial port")
	}
}

func TestMockSerialPortFactory(t *testing.T) {
	port := NewTestableSerialPort()
	factory := NewMockSerialPortFactory(port)

	if factory.LastCall() != nil {
		t.Fatal("LastCall() should be nil before Open")
	}

	got, err := factory.Open("/dev/ttyACM0", PortOptions{BaudRate: 115200})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got != port {
		t.Error("Open() did not return the configured port")
	}
	call := factory.LastCall()
	if call.Path != "/dev/ttyACM0" || call.Opts.BaudRate != 115200 {
		t.Errorf("LastCall() = %+v", call)
	}

	factory.Error = errors.New("busy")
	if _, err := factory.Open("/dev/ttyACM0", PortOptions{}); err == nil {
		t.Error("expected configured error")
	}
	if len(factory.OpenCalls) != 2 {
		t.Errorf("OpenCalls = %d, want 2", len(factory.OpenCalls))
	}
}
