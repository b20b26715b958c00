// Package serialtest provides an in-memory serial port for tests of code
// built on serialline.
package serialtest

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sandscape/sandtable/serialline"
)

// Line hands out an in-memory port on every open and exposes the far end
// of it as the simulated device.
type Line struct {
	devices chan net.Conn

	mu      sync.Mutex
	opens   int
	openErr error
}

// NewLine creates a Line.
func NewLine() *Line {
	return &Line{devices: make(chan net.Conn, 8)}
}

// Opener returns a serialline.Opener backed by this Line.
func (l *Line) Opener() serialline.Opener {
	return func(_ string, _ int, readTimeout time.Duration) (serialline.Port, error) {
		l.mu.Lock()
		defer l.mu.Unlock()

		if l.openErr != nil {
			return nil, l.openErr
		}
		l.opens++

		host, device := net.Pipe()
		l.devices <- device

		return &pipePort{conn: host, readTimeout: readTimeout}, nil
	}
}

// FailOpen makes every following open return err. A nil err clears it.
func (l *Line) FailOpen(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.openErr = err
}

// Opens returns how many ports were opened.
func (l *Line) Opens() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.opens
}

// Device returns the device end of the most recently opened port, waiting
// up to timeout for an open to happen.
func (l *Line) Device(timeout time.Duration) (net.Conn, error) {
	select {
	case dev := <-l.devices:
		return dev, nil
	case <-time.After(timeout):
		return nil, errors.New("serialtest: no port opened")
	}
}

// Devices delivers the device end of every port as it is opened.
func (l *Line) Devices() <-chan net.Conn {
	return l.devices
}

// pipePort behaves like a hardware port: a read that times out returns (0, nil).
type pipePort struct {
	conn        net.Conn
	readTimeout time.Duration
}

func (p *pipePort) Read(b []byte) (int, error) {
	_ = p.conn.SetReadDeadline(time.Now().Add(p.readTimeout))

	n, err := p.conn.Read(b)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return n, nil
	}

	return n, err
}

func (p *pipePort) Write(b []byte) (int, error) {
	return p.conn.Write(b)
}

func (p *pipePort) Close() error {
	return p.conn.Close()
}
