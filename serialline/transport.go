package serialline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/sandscape/sandtable/internal/pool"
	"github.com/sandscape/sandtable/internal/task"
	"github.com/sandscape/sandtable/logger"
)

const readBufSize = 256

// maxLineSize caps a frame without a newline; longer garbage is dropped.
const maxLineSize = 4096

var (
	ErrNotConnected     = errors.New("serialline: not connected")
	ErrAlreadyConnected = errors.New("serialline: already connected")
	ErrReceiveTimeout   = errors.New("serialline: receive timeout")
	ErrReaderStopped    = errors.New("serialline: reader stopped")
	ErrClosed           = errors.New("serialline: transport closed")
)

// Transport is a newline-framed text link over a serial port.
//
// Write may be called from any goroutine. Receive and TryReceive must be
// used by a single consumer.
type Transport struct {
	cfg     *Config
	logger  logger.Logger
	taskMgr *task.Manager

	// mu guards port, lines and the connect/disconnect transitions.
	mu        sync.Mutex
	port      Port
	lines     chan string
	connected atomic.Bool

	writeMu sync.Mutex

	errMu   sync.Mutex
	readErr error

	metrics Metrics
}

// NewTransport creates a disconnected Transport.
func NewTransport(ctx context.Context, cfg *Config) (*Transport, error) {
	if cfg == nil {
		return nil, errors.New("serialline: config is nil")
	}

	l := cfg.logger.With("device", cfg.displayName)

	return &Transport{
		cfg:     cfg,
		logger:  l,
		taskMgr: task.NewManager(ctx, l),
	}, nil
}

// Config returns the transport configuration.
func (t *Transport) Config() *Config { return t.cfg }

// GetMetrics returns the transport counters.
func (t *Transport) GetMetrics() *Metrics { return &t.metrics }

// IsConnected reports whether the port is open and the reader has not
// stopped on a read error.
func (t *Transport) IsConnected() bool {
	return t.connected.Load() && t.getReadErr() == nil
}

// Connect opens the port, waits the settle delay and starts the reader task.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected.Load() {
		return ErrAlreadyConnected
	}

	t.logger.Info("serialline: connecting", "port", t.cfg.portName, "baud", t.cfg.baudRate)

	port, err := t.cfg.opener(t.cfg.portName, t.cfg.baudRate, t.cfg.readTimeout)
	if err != nil {
		return err
	}

	if err := pool.Sleep(ctx, t.cfg.settleDelay); err != nil {
		_ = port.Close()
		return fmt.Errorf("serialline: connect %s: %w", t.cfg.portName, err)
	}

	lines := make(chan string, t.cfg.queueSize)
	t.port = port
	t.lines = lines
	t.setReadErr(nil)

	if err := t.taskMgr.StartReceiver("reader", t.readerLoop(port, lines), func() { close(lines) }); err != nil {
		_ = port.Close()
		t.port = nil
		t.lines = nil

		return fmt.Errorf("serialline: start reader: %w", err)
	}

	t.connected.Store(true)
	t.metrics.incConnectCount()
	t.logger.Info("serialline: connected", "port", t.cfg.portName)

	return nil
}

// Disconnect stops the reader, waits for it to exit and closes the port.
//
// If the reader does not exit within the close timeout the port is closed
// underneath it to unblock the pending read. Disconnect on a disconnected
// transport is a no-op.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected.CompareAndSwap(true, false) {
		return nil
	}

	t.logger.Info("serialline: disconnecting", "port", t.cfg.portName)

	t.taskMgr.Stop()

	port := t.port
	t.port = nil

	portClosed := false
	if !t.taskMgr.WaitTimeout(t.cfg.closeTimeout) {
		t.logger.Warn("serialline: reader did not stop in time, closing port under it",
			"timeout", t.cfg.closeTimeout)

		_ = port.Close()
		portClosed = true
		t.taskMgr.Wait()
	}

	if !portClosed {
		if err := port.Close(); err != nil {
			return fmt.Errorf("serialline: close %s: %w", t.cfg.portName, err)
		}
	}

	t.logger.Info("serialline: disconnected", "port", t.cfg.portName)

	return nil
}

// Write sends p to the port verbatim.
func (t *Transport) Write(p []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	port := t.port
	t.mu.Unlock()

	if port == nil {
		return ErrNotConnected
	}

	t.logger.Debug("serialline: write", "data", fmt.Sprintf("%q", p))

	for written := 0; written < len(p); {
		n, err := port.Write(p[written:])
		written += n
		t.metrics.addBytesWritten(n)

		if err != nil {
			return fmt.Errorf("serialline: write %s: %w", t.cfg.portName, err)
		}
		if n == 0 {
			return fmt.Errorf("serialline: write %s: port accepted 0 bytes", t.cfg.portName)
		}
	}

	return nil
}

// Receive blocks until a line is available, timeout elapses or ctx is done.
func (t *Transport) Receive(ctx context.Context, timeout time.Duration) (string, error) {
	lines := t.getLines()
	if lines == nil {
		return "", ErrNotConnected
	}

	select {
	case line, ok := <-lines:
		return t.delivered(line, ok)
	default:
	}

	timer := pool.GetTimer(timeout)
	defer pool.PutTimer(timer)

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-lines:
		return t.delivered(line, ok)
	case <-timer.C:
		if err := t.getReadErr(); err != nil {
			return "", fmt.Errorf("%w: %w", ErrReaderStopped, err)
		}

		return "", ErrReceiveTimeout
	}
}

// TryReceive returns the next queued line without blocking.
func (t *Transport) TryReceive() (string, bool) {
	lines := t.getLines()
	if lines == nil {
		return "", false
	}

	select {
	case line, ok := <-lines:
		if !ok {
			return "", false
		}
		t.metrics.setQueueLength(len(lines))

		return line, true
	default:
		return "", false
	}
}

// Discard drops every queued line and returns how many were dropped.
func (t *Transport) Discard() int {
	n := 0
	for {
		if _, ok := t.TryReceive(); !ok {
			return n
		}
		n++
	}
}

func (t *Transport) delivered(line string, ok bool) (string, error) {
	if !ok {
		if err := t.getReadErr(); err != nil {
			return "", fmt.Errorf("%w: %w", ErrReaderStopped, err)
		}

		return "", ErrClosed
	}

	t.metrics.setQueueLength(len(t.getLines()))

	return line, nil
}

func (t *Transport) getLines() chan string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.lines
}

func (t *Transport) setReadErr(err error) {
	t.errMu.Lock()
	defer t.errMu.Unlock()

	t.readErr = err
}

func (t *Transport) getReadErr() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()

	return t.readErr
}

// readerLoop returns the reader task body. Each call performs one blocking
// read and queues every complete line found in it.
func (t *Transport) readerLoop(port Port, lines chan<- string) task.Func {
	buf := make([]byte, readBufSize)
	var pending []byte
	lastLine := time.Now()

	emit := func(ctx context.Context, frame []byte) bool {
		line := decodeLine(frame)
		if line == "" {
			return true
		}

		now := time.Now()
		t.logger.Debug("serialline: received", "line", line, "sinceLast", now.Sub(lastLine).Round(time.Millisecond))
		lastLine = now

		select {
		case lines <- line:
			t.metrics.incLineRecvCount()
			t.metrics.setQueueLength(len(lines))

			return true
		case <-ctx.Done():
			return false
		}
	}

	return func(ctx context.Context) bool {
		n, err := port.Read(buf)
		if n > 0 {
			t.metrics.addBytesRecv(n)

			chunk := buf[:n]
			for len(chunk) > 0 {
				idx := bytes.IndexByte(chunk, '\n')
				if idx < 0 {
					pending = append(pending, chunk...)
					if len(pending) > maxLineSize {
						t.logger.Warn("serialline: dropping oversized frame", "size", len(pending))
						pending = pending[:0]
					}

					break
				}

				pending = append(pending, chunk[:idx]...)
				if !emit(ctx, pending) {
					return false
				}
				pending = pending[:0]
				chunk = chunk[idx+1:]
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			if isTimeout(err) {
				return true
			}

			t.metrics.incReadErrCount()
			t.setReadErr(err)
			t.logger.Error("serialline: read failed, reader stopped", "error", err)

			return false
		}

		return true
	}
}

// decodeLine turns a raw frame into trimmed text, replacing invalid UTF-8.
func decodeLine(frame []byte) string {
	s := string(frame)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, string(utf8.RuneError))
	}

	return strings.TrimSpace(s)
}

func isTimeout(err error) bool {
	var to interface{ Timeout() bool }

	return errors.As(err, &to) && to.Timeout()
}
