package serialline

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the byte stream a Transport reads from and writes to.
//
// Read must return within the read timeout the port was opened with; a
// timed-out read returns (0, nil) or an error whose Timeout() is true.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens a Port. It is called on every Connect, so a reconnect
// always gets a fresh port.
type Opener func(portName string, baudRate int, readTimeout time.Duration) (Port, error)

// OpenSerial opens a hardware serial port with 8N1 framing.
func OpenSerial(portName string, baudRate int, readTimeout time.Duration) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("serialline: open %s: %w", portName, err)
	}

	if err := p.SetReadTimeout(readTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("serialline: set read timeout on %s: %w", portName, err)
	}

	// drop whatever the board printed before we were listening
	_ = p.ResetInputBuffer()

	return p, nil
}

// ListPorts returns the serial ports present on the host.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialline: list ports: %w", err)
	}

	return ports, nil
}
