package eyes

import (
	"errors"
	"time"
)

// Config configures the ExpressionController.
type Config struct {
	// BeatReaction is the share of a beat period a beat reaction lasts.
	// Default: 0.3
	BeatReaction float64 `yaml:"beat_reaction" json:"beat_reaction"`

	// UnknownTempoReaction is the reaction length when BPM is unknown.
	// Default: 100ms
	UnknownTempoReaction time.Duration `yaml:"unknown_tempo_reaction" json:"unknown_tempo_reaction"`

	// Spins longer than DizzySpin end with DizzyHold of dizzy eyes.
	// Defaults: 1.5s, 500ms
	DizzySpin time.Duration `yaml:"dizzy_spin" json:"dizzy_spin"`
	DizzyHold time.Duration `yaml:"dizzy_hold" json:"dizzy_hold"`

	// SpecialBeats consecutive beats above HighEnergy play a special
	// animation, at most once per SpecialCooldown.
	// Defaults: 4, 70, 5s
	SpecialBeats    int           `yaml:"special_beats" json:"special_beats"`
	HighEnergy      float64       `yaml:"high_energy" json:"high_energy"`
	SpecialCooldown time.Duration `yaml:"special_cooldown" json:"special_cooldown"`

	// ManualHold keeps an operator-chosen expression up. Default: 3s
	ManualHold time.Duration `yaml:"manual_hold" json:"manual_hold"`

	// MoodHold keeps the dance start/stop expression up. Default: 1s
	MoodHold time.Duration `yaml:"mood_hold" json:"mood_hold"`

	// Idle blink interval range. Defaults: 2s..5s
	BlinkMin time.Duration `yaml:"blink_min" json:"blink_min"`
	BlinkMax time.Duration `yaml:"blink_max" json:"blink_max"`

	// UpdateInterval throttles the energy expression. Default: 50ms
	UpdateInterval time.Duration `yaml:"update_interval" json:"update_interval"`

	// QueueSize is the dispatch buffer; writes beyond it are dropped.
	// Default: 16
	QueueSize int `yaml:"queue_size" json:"queue_size"`

	// DisplayTimeout bounds each display call. Default: 500ms
	DisplayTimeout time.Duration `yaml:"display_timeout" json:"display_timeout"`
}

// DefaultConfig returns the controller defaults.
func DefaultConfig() Config {
	return Config{
		BeatReaction:         0.3,
		UnknownTempoReaction: 100 * time.Millisecond,
		DizzySpin:            1500 * time.Millisecond,
		DizzyHold:            500 * time.Millisecond,
		SpecialBeats:         4,
		HighEnergy:           70,
		SpecialCooldown:      5 * time.Second,
		ManualHold:           3 * time.Second,
		MoodHold:             time.Second,
		BlinkMin:             2 * time.Second,
		BlinkMax:             5 * time.Second,
		UpdateInterval:       50 * time.Millisecond,
		QueueSize:            16,
		DisplayTimeout:       500 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.QueueSize < 1 {
		return errors.New("eyes: queue_size must be positive")
	}
	if c.BlinkMax < c.BlinkMin || c.BlinkMin <= 0 {
		return errors.New("eyes: blink range must be positive and ordered")
	}
	if c.SpecialBeats < 1 {
		return errors.New("eyes: special_beats must be positive")
	}
	return nil
}
