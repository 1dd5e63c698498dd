package dance

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConfig is wrapped by Config.Validate failures.
	ErrInvalidConfig = errors.New("dance: invalid config")

	// ErrInvalidCatalog is wrapped by NewCatalog failures.
	ErrInvalidCatalog = errors.New("dance: invalid catalog")
)

// Config configures the Engine. Every selection constant is a calibration
// parameter and can be overridden from the config file.
type Config struct {
	// MinBeatConfidence is the tempo confidence needed to start. Default: 0.4
	MinBeatConfidence float64 `yaml:"min_beat_confidence" json:"min_beat_confidence"`

	// NonMusicHold is how many consecutive non-MUSIC ticks end a dance.
	// Default: 30 (~700 ms)
	NonMusicHold int `yaml:"non_music_hold" json:"non_music_hold"`

	// TransitionEvery inserts a spin transition after this many completed
	// patterns. Default: 3
	TransitionEvery int `yaml:"transition_every" json:"transition_every"`

	// RecentMemory is how many past patterns selection tries to avoid.
	// Default: 3
	RecentMemory int `yaml:"recent_memory" json:"recent_memory"`

	// Tempo. Move durations are written at ReferenceBPM; estimates are
	// clamped to [MinBPM, MaxBPM]; unknown tempo plays at ReferenceBPM.
	ReferenceBPM float64 `yaml:"reference_bpm" json:"reference_bpm"`
	MinBPM       float64 `yaml:"min_bpm" json:"min_bpm"`
	MaxBPM       float64 `yaml:"max_bpm" json:"max_bpm"`

	// Tempo buckets: slow below SlowBPM, fast from FastBPM.
	// Defaults: 95, 130
	SlowBPM float64 `yaml:"slow_bpm" json:"slow_bpm"`
	FastBPM float64 `yaml:"fast_bpm" json:"fast_bpm"`

	// Energy levels: low below LowEnergy, high from HighEnergy.
	// Defaults: 35, 70
	LowEnergy  float64 `yaml:"low_energy" json:"low_energy"`
	HighEnergy float64 `yaml:"high_energy" json:"high_energy"`

	// Duration scale for fast and slow tempo. Defaults: 0.85, 1.1
	FastScale float64 `yaml:"fast_scale" json:"fast_scale"`
	SlowScale float64 `yaml:"slow_scale" json:"slow_scale"`

	// Scaled move durations are clamped to [MinMove, MaxMove].
	// Defaults: 150ms, 2.5s
	MinMove time.Duration `yaml:"min_move" json:"min_move"`
	MaxMove time.Duration `yaml:"max_move" json:"max_move"`

	// Selection weights: pattern energy equals the current level, pattern
	// energy is medium, anything else. Defaults: 3, 2, 1
	MatchWeight  int `yaml:"match_weight" json:"match_weight"`
	MediumWeight int `yaml:"medium_weight" json:"medium_weight"`
	OtherWeight  int `yaml:"other_weight" json:"other_weight"`

	// Power is the wheel power of moving steps; Jitter shaves up to that
	// fraction off each wheel per move. Defaults: 100, 0.02
	Power  float64 `yaml:"power" json:"power"`
	Jitter float64 `yaml:"jitter" json:"jitter"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MinBeatConfidence: 0.4,
		NonMusicHold:      30,
		TransitionEvery:   3,
		RecentMemory:      3,
		ReferenceBPM:      120,
		MinBPM:            60,
		MaxBPM:            180,
		SlowBPM:           95,
		FastBPM:           130,
		LowEnergy:         35,
		HighEnergy:        70,
		FastScale:         0.85,
		SlowScale:         1.1,
		MinMove:           150 * time.Millisecond,
		MaxMove:           2500 * time.Millisecond,
		MatchWeight:       3,
		MediumWeight:      2,
		OtherWeight:       1,
		Power:             100,
		Jitter:            0.02,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case c.MinBeatConfidence < 0 || c.MinBeatConfidence > 1:
		return fmt.Errorf("%w: min_beat_confidence must be in [0,1]", ErrInvalidConfig)
	case c.NonMusicHold < 1:
		return fmt.Errorf("%w: non_music_hold must be positive", ErrInvalidConfig)
	case c.TransitionEvery < 1:
		return fmt.Errorf("%w: transition_every must be positive", ErrInvalidConfig)
	case c.RecentMemory < 0:
		return fmt.Errorf("%w: recent_memory must not be negative", ErrInvalidConfig)
	case c.MinBPM <= 0 || c.MaxBPM < c.MinBPM:
		return fmt.Errorf("%w: bpm range", ErrInvalidConfig)
	case c.ReferenceBPM < c.MinBPM || c.ReferenceBPM > c.MaxBPM:
		return fmt.Errorf("%w: reference_bpm outside bpm range", ErrInvalidConfig)
	case c.FastBPM < c.SlowBPM:
		return fmt.Errorf("%w: fast_bpm below slow_bpm", ErrInvalidConfig)
	case c.HighEnergy < c.LowEnergy:
		return fmt.Errorf("%w: high_energy below low_energy", ErrInvalidConfig)
	case c.MinMove <= 0 || c.MaxMove < c.MinMove:
		return fmt.Errorf("%w: move duration range", ErrInvalidConfig)
	case c.MatchWeight < 1 || c.MediumWeight < 1 || c.OtherWeight < 1:
		return fmt.Errorf("%w: selection weights must be positive", ErrInvalidConfig)
	case c.Power < 0 || c.Power > 100:
		return fmt.Errorf("%w: power must be in [0,100]", ErrInvalidConfig)
	case c.Jitter < 0 || c.Jitter >= 1:
		return fmt.Errorf("%w: jitter must be in [0,1)", ErrInvalidConfig)
	}
	return nil
}
