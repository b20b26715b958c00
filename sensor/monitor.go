package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sandscape/sandtable/internal/task"
	"github.com/sandscape/sandtable/logger"
)

const (
	DefaultBaudRate     = 9600
	DefaultPollInterval = 50 * time.Millisecond

	MinPollInterval = time.Millisecond
	MaxPollInterval = 10 * time.Second
)

// LineTransport is the part of a line transport the monitor needs.
type LineTransport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	TryReceive() (string, bool)
}

// Handler is called with every accepted reading.
type Handler func(Reading)

// Monitor polls the board and keeps the latest reading. The board samples
// faster than it is polled, so each poll keeps only the newest line.
type Monitor struct {
	transport LineTransport
	interval  time.Duration
	handler   Handler
	logger    logger.Logger
	taskMgr   *task.Manager

	mu      sync.RWMutex
	latest  Reading
	hasRead bool

	running atomic.Bool
	metrics Metrics
}

// Metrics contains atomic counters for a monitor.
type Metrics struct {
	// ReadingCount indicates the number of readings accepted.
	ReadingCount atomic.Uint64
	// InvalidCount indicates the number of newest lines that failed to parse.
	InvalidCount atomic.Uint64
	// DroppedCount indicates the number of older lines skipped by a poll.
	DroppedCount atomic.Uint64
}

// Option is a functional option for configuring a Monitor.
type Option interface {
	apply(*Monitor) error
}

type optFunc func(*Monitor) error

func (f optFunc) apply(m *Monitor) error { return f(m) }

// WithPollInterval sets how often the board is polled, 1ms to 10s.
func WithPollInterval(d time.Duration) Option {
	return optFunc(func(m *Monitor) error {
		if d < MinPollInterval || d > MaxPollInterval {
			return fmt.Errorf("sensor: poll interval %v out of range [%v, %v]", d, MinPollInterval, MaxPollInterval)
		}
		m.interval = d

		return nil
	})
}

// WithHandler sets the function called with every accepted reading.
func WithHandler(h Handler) Option {
	return optFunc(func(m *Monitor) error {
		m.handler = h
		return nil
	})
}

// WithLogger sets the logger for the monitor.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(m *Monitor) error {
		if l == nil {
			return errors.New("sensor: logger must not be nil")
		}
		m.logger = l

		return nil
	})
}

// NewMonitor creates a Monitor over transport.
func NewMonitor(ctx context.Context, transport LineTransport, opts ...Option) (*Monitor, error) {
	if transport == nil {
		return nil, errors.New("sensor: transport is nil")
	}

	m := &Monitor{
		transport: transport,
		interval:  DefaultPollInterval,
		logger:    logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(m); err != nil {
			return nil, err
		}
	}

	m.logger = m.logger.With("device", "sensor")
	m.taskMgr = task.NewManager(ctx, m.logger)

	return m, nil
}

// GetMetrics returns the monitor counters.
func (m *Monitor) GetMetrics() *Metrics { return &m.metrics }

// Start connects the board and starts polling it.
func (m *Monitor) Start(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("sensor: monitor already started")
	}

	if err := m.transport.Connect(ctx); err != nil {
		m.running.Store(false)
		return fmt.Errorf("sensor: connect: %w", err)
	}

	err := m.taskMgr.StartInterval("sensor-poll", func(context.Context) bool {
		m.Poll()
		return true
	}, m.interval, true)
	if err != nil {
		_ = m.transport.Disconnect()
		m.running.Store(false)

		return err
	}

	m.logger.Info("sensor: monitoring", "interval", m.interval)

	return nil
}

// Stop stops polling and disconnects the board. A stopped monitor cannot
// be started again.
func (m *Monitor) Stop() error {
	if !m.running.CompareAndSwap(true, false) {
		return nil
	}

	m.taskMgr.Stop()
	m.taskMgr.Wait()

	return m.transport.Disconnect()
}

// Poll drains the queued lines and applies the newest one. It reports
// whether a new reading was accepted.
func (m *Monitor) Poll() (Reading, bool) {
	var (
		last  string
		count int
	)
	for {
		line, ok := m.transport.TryReceive()
		if !ok {
			break
		}
		last = line
		count++
	}

	if count == 0 {
		return Reading{}, false
	}
	if count > 1 {
		m.metrics.DroppedCount.Add(uint64(count - 1))
	}

	r, err := ParseReading(last)
	if err != nil {
		m.metrics.InvalidCount.Add(1)
		m.logger.Debug("sensor: ignoring line", "error", err)

		return Reading{}, false
	}

	m.mu.Lock()
	changed := !m.hasRead || m.latest != r
	m.latest = r
	m.hasRead = true
	m.mu.Unlock()

	m.metrics.ReadingCount.Add(1)
	if changed {
		m.logger.Debug("sensor: reading", "touched", r.Touched(), "theta_zero", r.ThetaZero)
	}

	if m.handler != nil {
		m.handler(r)
	}

	return r, true
}

// Latest returns the last accepted reading.
func (m *Monitor) Latest() (Reading, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.latest, m.hasRead
}
