package coordinator

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConfig is wrapped by Config.Validate failures.
	ErrInvalidConfig = errors.New("coordinator: invalid config")

	// ErrMissingDependency is returned by New when a required Deps field
	// is nil.
	ErrMissingDependency = errors.New("coordinator: missing dependency")

	// ErrNoSource is returned by Run without an audio source.
	ErrNoSource = errors.New("coordinator: no audio source")
)

// Config configures the audio loop.
type Config struct {
	// FramePeriod is the cadence; it also converts frame counts to
	// stream time. Default: 1024/44100 s (~23.2 ms)
	FramePeriod time.Duration `yaml:"frame_period" json:"frame_period"`

	// LowEnergyThreshold is the energy under which a frame counts as
	// quiet. Default: 12
	LowEnergyThreshold float64 `yaml:"low_energy_threshold" json:"low_energy_threshold"`

	// SilenceFrames consecutive quiet frames stop the robot. Default: 22
	SilenceFrames int `yaml:"silence_frames" json:"silence_frames"`

	// ManualMoveDuration is how long a manual direction runs. Default: 2s
	ManualMoveDuration time.Duration `yaml:"manual_move_duration" json:"manual_move_duration"`

	// WarnInterval rate-limits hot-path warnings. Default: 5s
	WarnInterval time.Duration `yaml:"warn_interval" json:"warn_interval"`

	// Display spectrum smoothing rates. Defaults: 0.5, 0.2
	SpectrumAttack  float64 `yaml:"spectrum_attack" json:"spectrum_attack"`
	SpectrumRelease float64 `yaml:"spectrum_release" json:"spectrum_release"`
}

// DefaultConfig returns the loop defaults.
func DefaultConfig() Config {
	return Config{
		FramePeriod:        time.Second * 1024 / 44100,
		LowEnergyThreshold: 12,
		SilenceFrames:      22,
		ManualMoveDuration: 2 * time.Second,
		WarnInterval:       5 * time.Second,
		SpectrumAttack:     0.5,
		SpectrumRelease:    0.2,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case c.FramePeriod <= 0:
		return fmt.Errorf("%w: frame_period must be positive", ErrInvalidConfig)
	case c.SilenceFrames < 1:
		return fmt.Errorf("%w: silence_frames must be positive", ErrInvalidConfig)
	case c.LowEnergyThreshold < 0 || c.LowEnergyThreshold > 100:
		return fmt.Errorf("%w: low_energy_threshold must be in [0,100]", ErrInvalidConfig)
	case c.ManualMoveDuration <= 0:
		return fmt.Errorf("%w: manual_move_duration must be positive", ErrInvalidConfig)
	case c.SpectrumAttack <= 0 || c.SpectrumAttack > 1 || c.SpectrumRelease <= 0 || c.SpectrumRelease > 1:
		return fmt.Errorf("%w: spectrum smoothing rates must be in (0,1]", ErrInvalidConfig)
	}
	return nil
}
