package serialline

import (
	"errors"
	"fmt"
	"time"

	"github.com/sandscape/sandtable/logger"
)

const (
	DefaultReadTimeout  = time.Second
	DefaultQueueSize    = 256
	DefaultSettleDelay  = 2 * time.Second
	DefaultCloseTimeout = 3 * time.Second
)

const (
	MinReadTimeout = 10 * time.Millisecond
	MaxReadTimeout = 10 * time.Second

	MaxSettleDelay = 10 * time.Second
)

// Config holds the configuration of a serial line transport.
type Config struct {
	portName string
	baudRate int

	// displayName tags every log line of this transport, e.g. "grbl" or "sensor".
	displayName string

	// readTimeout bounds a single blocking read of the reader task.
	readTimeout time.Duration
	// settleDelay is waited after opening the port before the reader starts.
	settleDelay time.Duration
	// closeTimeout bounds how long Disconnect waits for the reader to exit
	// before closing the port underneath it.
	closeTimeout time.Duration

	queueSize int

	opener Opener
	logger logger.Logger
}

// NewConfig creates a transport configuration for the given port and baud rate.
//
// opts are functional options applied in order; see With* functions.
func NewConfig(portName string, baudRate int, opts ...Option) (*Config, error) {
	if portName == "" {
		return nil, errors.New("serialline: port name is empty")
	}
	if baudRate <= 0 {
		return nil, fmt.Errorf("serialline: invalid baud rate %d", baudRate)
	}

	cfg := &Config{
		portName:     portName,
		baudRate:     baudRate,
		displayName:  portName,
		readTimeout:  DefaultReadTimeout,
		settleDelay:  DefaultSettleDelay,
		closeTimeout: DefaultCloseTimeout,
		queueSize:    DefaultQueueSize,
		opener:       OpenSerial,
		logger:       logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// PortName returns the serial port identifier.
func (cfg *Config) PortName() string { return cfg.portName }

// BaudRate returns the configured baud rate.
func (cfg *Config) BaudRate() int { return cfg.baudRate }

// DisplayName returns the name used in log records.
func (cfg *Config) DisplayName() string { return cfg.displayName }

// ReadTimeout returns the per-read timeout of the reader task.
func (cfg *Config) ReadTimeout() time.Duration { return cfg.readTimeout }

// SettleDelay returns the wait applied after the port is opened.
func (cfg *Config) SettleDelay() time.Duration { return cfg.settleDelay }

// CloseTimeout returns how long Disconnect waits for the reader.
func (cfg *Config) CloseTimeout() time.Duration { return cfg.closeTimeout }

// QueueSize returns the capacity of the received-line FIFO.
func (cfg *Config) QueueSize() int { return cfg.queueSize }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithDisplayName sets the device name used in log records.
func WithDisplayName(name string) Option {
	return optFunc(func(cfg *Config) error {
		if name == "" {
			return errors.New("serialline: display name must not be empty")
		}
		cfg.displayName = name

		return nil
	})
}

// WithReadTimeout sets the per-read timeout, 10ms to 10s.
func WithReadTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinReadTimeout || d > MaxReadTimeout {
			return fmt.Errorf("serialline: read timeout %v out of range [%v, %v]", d, MinReadTimeout, MaxReadTimeout)
		}
		cfg.readTimeout = d

		return nil
	})
}

// WithSettleDelay sets the wait after opening the port. Zero disables it.
func WithSettleDelay(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxSettleDelay {
			return fmt.Errorf("serialline: settle delay %v out of range [0, %v]", d, MaxSettleDelay)
		}
		cfg.settleDelay = d

		return nil
	})
}

// WithCloseTimeout sets how long Disconnect waits for the reader to stop.
func WithCloseTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("serialline: close timeout must be positive")
		}
		cfg.closeTimeout = d

		return nil
	})
}

// WithQueueSize sets the capacity of the received-line FIFO.
func WithQueueSize(size int) Option {
	return optFunc(func(cfg *Config) error {
		if size < 1 {
			return errors.New("serialline: queue size must be >= 1")
		}
		cfg.queueSize = size

		return nil
	})
}

// WithOpener replaces the function used to open the port.
func WithOpener(opener Opener) Option {
	return optFunc(func(cfg *Config) error {
		if opener == nil {
			return errors.New("serialline: opener must not be nil")
		}
		cfg.opener = opener

		return nil
	})
}

// WithLogger sets the logger for the transport.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("serialline: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
