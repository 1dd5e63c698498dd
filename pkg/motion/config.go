package motion

import (
	"fmt"
	"time"
)

// Config configures the Controller.
type Config struct {
	// MinMoveDuration is the shortest move the motors are asked to make.
	// Default: 150ms
	MinMoveDuration time.Duration `yaml:"min_move_duration" json:"min_move_duration"`

	// MaxMoveDuration caps any single command. Default: 10s
	MaxMoveDuration time.Duration `yaml:"max_move_duration" json:"max_move_duration"`

	// DriverTimeout bounds each driver call. Default: 1s
	DriverTimeout time.Duration `yaml:"driver_timeout" json:"driver_timeout"`
}

// DefaultConfig returns the controller defaults.
func DefaultConfig() Config {
	return Config{
		MinMoveDuration: 150 * time.Millisecond,
		MaxMoveDuration: 10 * time.Second,
		DriverTimeout:   time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MinMoveDuration <= 0 {
		return fmt.Errorf("%w: min_move_duration must be positive", ErrInvalidConfig)
	}
	if c.MaxMoveDuration < c.MinMoveDuration {
		return fmt.Errorf("%w: max_move_duration below min_move_duration", ErrInvalidConfig)
	}
	if c.DriverTimeout <= 0 {
		return fmt.Errorf("%w: driver_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
