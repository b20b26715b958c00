package grbl

import (
	"errors"
	"fmt"
	"time"

	"github.com/sandscape/sandtable/logger"
)

const (
	DefaultResponseTimeout = time.Second
	DefaultHomingTimeout   = 60 * time.Second
	DefaultTrailingPause   = 100 * time.Millisecond
	DefaultStopTimeout     = 100 * time.Millisecond

	DefaultSpeed              = 3000.0 // mm/min
	DefaultHomingBackoff      = 30.0   // mm
	DefaultHomingBackoffSpeed = 3000.0 // mm/min
)

const (
	MinResponseTimeout = 10 * time.Millisecond
	MaxResponseTimeout = 60 * time.Second

	MaxHomingTimeout = 10 * time.Minute
	MaxTrailingPause = 5 * time.Second
)

// Config holds the configuration of a Driver.
type Config struct {
	// responseTimeout bounds the wait for the reply to one command.
	responseTimeout time.Duration
	// homingTimeout replaces responseTimeout while waiting for "$H".
	homingTimeout time.Duration
	// trailingPause is slept before draining lines the device may send
	// unsolicited after an exchange.
	trailingPause time.Duration
	// stopTimeout is the response timeout of the status run in Stop.
	stopTimeout time.Duration

	rMin float64
	rMax float64

	// homingEnabled means the firmware homing cycle ($H) is available.
	homingEnabled bool

	defaultSpeed       float64
	homingBackoff      float64
	homingBackoffSpeed float64

	desired Settings

	logger logger.Logger
}

// NewConfig creates a driver configuration.
//
// opts are functional options applied in order; see With* functions.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		responseTimeout:    DefaultResponseTimeout,
		homingTimeout:      DefaultHomingTimeout,
		trailingPause:      DefaultTrailingPause,
		stopTimeout:        DefaultStopTimeout,
		rMin:               RMin,
		rMax:               RMax,
		homingEnabled:      true,
		defaultSpeed:       DefaultSpeed,
		homingBackoff:      DefaultHomingBackoff,
		homingBackoffSpeed: DefaultHomingBackoffSpeed,
		desired:            DefaultSettings(),
		logger:             logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// ResponseTimeout returns the per-command reply timeout.
func (cfg *Config) ResponseTimeout() time.Duration { return cfg.responseTimeout }

// HomingTimeout returns the reply timeout of the home command.
func (cfg *Config) HomingTimeout() time.Duration { return cfg.homingTimeout }

// TrailingPause returns the pause before draining unsolicited lines.
func (cfg *Config) TrailingPause() time.Duration { return cfg.trailingPause }

// StopTimeout returns the reply timeout used by Stop.
func (cfg *Config) StopTimeout() time.Duration { return cfg.stopTimeout }

// RadiusLimits returns the radius travel bounds in mm.
func (cfg *Config) RadiusLimits() (float64, float64) { return cfg.rMin, cfg.rMax }

// HomingEnabled reports whether the firmware homing cycle is used.
func (cfg *Config) HomingEnabled() bool { return cfg.homingEnabled }

// DefaultSpeed returns the speed used for moves without one.
func (cfg *Config) DefaultSpeed() float64 { return cfg.defaultSpeed }

// HomingBackoff returns the distance and speed of a limit switch back-off.
func (cfg *Config) HomingBackoff() (float64, float64) {
	return cfg.homingBackoff, cfg.homingBackoffSpeed
}

// DesiredSettings returns the settings SyncSettings writes by default.
func (cfg *Config) DesiredSettings() Settings { return cfg.desired }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithResponseTimeout sets the per-command reply timeout, 10ms to 60s.
func WithResponseTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinResponseTimeout || d > MaxResponseTimeout {
			return fmt.Errorf("grbl: response timeout %v out of range [%v, %v]", d, MinResponseTimeout, MaxResponseTimeout)
		}
		cfg.responseTimeout = d

		return nil
	})
}

// WithHomingTimeout sets the reply timeout of the home command.
func WithHomingTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinResponseTimeout || d > MaxHomingTimeout {
			return fmt.Errorf("grbl: homing timeout %v out of range [%v, %v]", d, MinResponseTimeout, MaxHomingTimeout)
		}
		cfg.homingTimeout = d

		return nil
	})
}

// WithTrailingPause sets the pause before draining unsolicited lines.
func WithTrailingPause(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxTrailingPause {
			return fmt.Errorf("grbl: trailing pause %v out of range [0, %v]", d, MaxTrailingPause)
		}
		cfg.trailingPause = d

		return nil
	})
}

// WithStopTimeout sets the reply timeout of the status run made by Stop.
func WithStopTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinResponseTimeout || d > MaxResponseTimeout {
			return fmt.Errorf("grbl: stop timeout %v out of range [%v, %v]", d, MinResponseTimeout, MaxResponseTimeout)
		}
		cfg.stopTimeout = d

		return nil
	})
}

// WithRadiusLimits sets the radius travel bounds in mm.
func WithRadiusLimits(rMin, rMax float64) Option {
	return optFunc(func(cfg *Config) error {
		if rMin < 0 || rMax <= rMin {
			return fmt.Errorf("grbl: invalid radius limits [%v, %v]", rMin, rMax)
		}
		cfg.rMin, cfg.rMax = rMin, rMax

		return nil
	})
}

// WithHomingEnabled sets whether the firmware homing cycle is used.
func WithHomingEnabled(enabled bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.homingEnabled = enabled
		return nil
	})
}

// WithDefaultSpeed sets the speed, in mm/min, of moves without one.
func WithDefaultSpeed(speed float64) Option {
	return optFunc(func(cfg *Config) error {
		if speed <= 0 {
			return errors.New("grbl: default speed must be positive")
		}
		cfg.defaultSpeed = speed

		return nil
	})
}

// WithHomingBackoff sets how far, and how fast, the radius backs off a
// tripped limit switch during homing.
func WithHomingBackoff(distance, speed float64) Option {
	return optFunc(func(cfg *Config) error {
		if distance <= 0 || speed <= 0 {
			return errors.New("grbl: homing back-off distance and speed must be positive")
		}
		cfg.homingBackoff, cfg.homingBackoffSpeed = distance, speed

		return nil
	})
}

// WithDesiredSettings sets the settings SyncSettings writes by default.
func WithDesiredSettings(s Settings) Option {
	return optFunc(func(cfg *Config) error {
		if len(s) == 0 {
			return errors.New("grbl: desired settings must not be empty")
		}
		cfg.desired = s

		return nil
	})
}

// WithLogger sets the logger for the driver.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("grbl: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
