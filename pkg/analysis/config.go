// Package analysis turns raw audio frames into the signals the dance
// pipeline acts on: per-frame features, a rolling feature history,
// beat/tempo tracking and a SILENCE/NOISE/SPEECH/MUSIC classification.
//
// Everything here is single-owner: the coordinator goroutine drives one
// instance of each stage. Nothing in this package does I/O.
package analysis

import (
	"fmt"
)

// FeatureConfig configures the FeatureExtractor.
type FeatureConfig struct {
	// SampleRate of incoming frames in Hz.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// FrameSize is the FFT length; frames are padded or trimmed to it.
	FrameSize int `yaml:"frame_size" json:"frame_size"`

	// ReferenceRMS is the RMS level that maps to energy 100.
	// Default: 0.25
	ReferenceRMS float64 `yaml:"reference_rms" json:"reference_rms"`

	// Band split in Hz: Low is [LowHz, MidHz), Mid is [MidHz, HighHz),
	// High is [HighHz, MaxHz).
	LowHz  float64 `yaml:"low_hz" json:"low_hz"`
	MidHz  float64 `yaml:"mid_hz" json:"mid_hz"`
	HighHz float64 `yaml:"high_hz" json:"high_hz"`
	MaxHz  float64 `yaml:"max_hz" json:"max_hz"`

	// DominantMin is the minimum band share for a dominant band.
	// Default: 0.2
	DominantMin float64 `yaml:"dominant_min" json:"dominant_min"`

	// RolloffFraction for spectral rolloff. Default: 0.85
	RolloffFraction float64 `yaml:"rolloff_fraction" json:"rolloff_fraction"`
}

// BeatConfig configures the BeatDetector.
type BeatConfig struct {
	// FluxWindow is the number of past flux values the adaptive
	// threshold is computed over. Default: 16 (~370 ms)
	FluxWindow int `yaml:"flux_window" json:"flux_window"`

	// ThresholdK scales the flux standard deviation. Default: 1.5
	ThresholdK float64 `yaml:"threshold_k" json:"threshold_k"`

	// MinFlux is the absolute onset floor. Default: 0.02
	MinFlux float64 `yaml:"min_flux" json:"min_flux"`

	// Tempo range in BPM. Defaults: 60..180
	MinBPM float64 `yaml:"min_bpm" json:"min_bpm"`
	MaxBPM float64 `yaml:"max_bpm" json:"max_bpm"`

	// IntervalWindow is how many inter-onset intervals are kept. Default: 12
	IntervalWindow int `yaml:"interval_window" json:"interval_window"`

	// Recency weights older intervals by Recency^age. Default: 0.9
	Recency float64 `yaml:"recency" json:"recency"`

	// Tolerance is the relative distance at which two intervals agree.
	// Default: 0.1
	Tolerance float64 `yaml:"tolerance" json:"tolerance"`

	// ConfidenceRise is added for each interval agreeing with the estimate.
	// Default: 0.25
	ConfidenceRise float64 `yaml:"confidence_rise" json:"confidence_rise"`

	// IrregularDecay multiplies confidence on a disagreeing interval.
	// Default: 0.6
	IrregularDecay float64 `yaml:"irregular_decay" json:"irregular_decay"`

	// AbsenceDecay is subtracted per frame once onsets stop. Default: 0.02
	AbsenceDecay float64 `yaml:"absence_decay" json:"absence_decay"`

	// MinConfidence below which the BPM is reported unknown. Default: 0.4
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`
}

// MusicConfig configures the MusicDetector sub-stage.
type MusicConfig struct {
	// Window is the number of frame scores averaged. Default: 12
	Window int `yaml:"window" json:"window"`

	// Enter and Exit are the hysteresis thresholds on the mean score.
	// Defaults: 0.55, 0.35
	Enter float64 `yaml:"enter" json:"enter"`
	Exit  float64 `yaml:"exit" json:"exit"`

	// A run of DropoutFrames scores under DropoutScore drops music at once.
	// Defaults: 0.25, 5
	DropoutScore  float64 `yaml:"dropout_score" json:"dropout_score"`
	DropoutFrames int     `yaml:"dropout_frames" json:"dropout_frames"`

	// ActiveEnergy is the energy below which a frame scores zero. Default: 10
	ActiveEnergy float64 `yaml:"active_energy" json:"active_energy"`
}

// ClassifierConfig configures the AudioClassifier.
type ClassifierConfig struct {
	// SilenceFloor is the energy floor at sensitivity 50. Sensitivity s
	// scales it by (1.5 - s/100). Default: 8
	SilenceFloor float64 `yaml:"silence_floor" json:"silence_floor"`

	// FluxActivity is the flux above which a frame counts as changing.
	// Default: 0.02
	FluxActivity float64 `yaml:"flux_activity" json:"flux_activity"`

	// BurstinessScale is the energy coefficient of variation that counts
	// as fully bursty. Default: 0.6
	BurstinessScale float64 `yaml:"burstiness_scale" json:"burstiness_scale"`

	Music  MusicWeights  `yaml:"music" json:"music"`
	Speech SpeechWeights `yaml:"speech" json:"speech"`
	Noise  NoiseWeights  `yaml:"noise" json:"noise"`
}

// MusicWeights weight the MUSIC score terms.
type MusicWeights struct {
	Beat     float64 `yaml:"beat" json:"beat"`
	Balance  float64 `yaml:"balance" json:"balance"`
	Tonality float64 `yaml:"tonality" json:"tonality"`
	Detector float64 `yaml:"detector" json:"detector"`
}

// SpeechWeights weight the SPEECH score terms.
type SpeechWeights struct {
	Mid       float64 `yaml:"mid" json:"mid"`
	Burst     float64 `yaml:"burst" json:"burst"`
	Aperiodic float64 `yaml:"aperiodic" json:"aperiodic"`
}

// NoiseWeights weight the NOISE score terms.
type NoiseWeights struct {
	Flatness float64 `yaml:"flatness" json:"flatness"`
	Erratic  float64 `yaml:"erratic" json:"erratic"`
}

// Config groups the configuration of every analysis stage.
type Config struct {
	// HistorySize is the classifier window in frames. Default: 30 (~700 ms)
	HistorySize int `yaml:"history_size" json:"history_size"`

	Features   FeatureConfig    `yaml:"features" json:"features"`
	Beat       BeatConfig       `yaml:"beat" json:"beat"`
	Music      MusicConfig      `yaml:"music" json:"music"`
	Classifier ClassifierConfig `yaml:"classifier" json:"classifier"`
}

// DefaultFeatureConfig returns the extractor defaults for 2048-sample
// frames at 44.1 kHz.
func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		SampleRate:      44100,
		FrameSize:       2048,
		ReferenceRMS:    0.25,
		LowHz:           20,
		MidHz:           250,
		HighHz:          4000,
		MaxHz:           16000,
		DominantMin:     0.2,
		RolloffFraction: 0.85,
	}
}

// DefaultBeatConfig returns the beat detector defaults.
func DefaultBeatConfig() BeatConfig {
	return BeatConfig{
		FluxWindow:     16,
		ThresholdK:     1.5,
		MinFlux:        0.02,
		MinBPM:         60,
		MaxBPM:         180,
		IntervalWindow: 12,
		Recency:        0.9,
		Tolerance:      0.1,
		ConfidenceRise: 0.25,
		IrregularDecay: 0.6,
		AbsenceDecay:   0.02,
		MinConfidence:  0.4,
	}
}

// DefaultMusicConfig returns the music detector defaults.
func DefaultMusicConfig() MusicConfig {
	return MusicConfig{
		Window:        12,
		Enter:         0.55,
		Exit:          0.35,
		DropoutScore:  0.25,
		DropoutFrames: 5,
		ActiveEnergy:  10,
	}
}

// DefaultClassifierConfig returns the classifier defaults.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		SilenceFloor:    8,
		FluxActivity:    0.02,
		BurstinessScale: 0.6,
		Music:           MusicWeights{Beat: 0.45, Balance: 0.2, Tonality: 0.15, Detector: 0.2},
		Speech:          SpeechWeights{Mid: 0.4, Burst: 0.35, Aperiodic: 0.25},
		Noise:           NoiseWeights{Flatness: 0.6, Erratic: 0.4},
	}
}

// DefaultConfig returns defaults for every stage.
func DefaultConfig() Config {
	return Config{
		HistorySize: 30,
		Features:    DefaultFeatureConfig(),
		Beat:        DefaultBeatConfig(),
		Music:       DefaultMusicConfig(),
		Classifier:  DefaultClassifierConfig(),
	}
}

// Validate checks the feature configuration.
func (c *FeatureConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample_rate must be positive", ErrInvalidConfig)
	}
	if c.FrameSize < 64 {
		return fmt.Errorf("%w: frame_size must be at least 64", ErrInvalidConfig)
	}
	if c.ReferenceRMS <= 0 {
		return fmt.Errorf("%w: reference_rms must be positive", ErrInvalidConfig)
	}
	if !(c.LowHz >= 0 && c.LowHz < c.MidHz && c.MidHz < c.HighHz && c.HighHz < c.MaxHz) {
		return fmt.Errorf("%w: band edges must be increasing (low %.0f, mid %.0f, high %.0f, max %.0f)",
			ErrInvalidConfig, c.LowHz, c.MidHz, c.HighHz, c.MaxHz)
	}
	if c.RolloffFraction <= 0 || c.RolloffFraction > 1 {
		return fmt.Errorf("%w: rolloff_fraction must be in (0, 1]", ErrInvalidConfig)
	}
	return nil
}

// Validate checks the beat configuration.
func (c *BeatConfig) Validate() error {
	if c.FluxWindow < 2 || c.IntervalWindow < 2 {
		return fmt.Errorf("%w: flux_window and interval_window must be at least 2", ErrInvalidConfig)
	}
	if c.MinBPM <= 0 || c.MaxBPM <= c.MinBPM {
		return fmt.Errorf("%w: bpm range %.0f..%.0f", ErrInvalidConfig, c.MinBPM, c.MaxBPM)
	}
	if c.Tolerance <= 0 || c.Tolerance >= 1 {
		return fmt.Errorf("%w: tolerance must be in (0, 1)", ErrInvalidConfig)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("%w: min_confidence must be in [0, 1]", ErrInvalidConfig)
	}
	return nil
}

// Validate checks the music detector configuration.
func (c *MusicConfig) Validate() error {
	if c.Window < 1 || c.DropoutFrames < 1 {
		return fmt.Errorf("%w: music window and dropout_frames must be positive", ErrInvalidConfig)
	}
	if c.Exit > c.Enter {
		return fmt.Errorf("%w: music exit threshold above enter threshold", ErrInvalidConfig)
	}
	return nil
}

// Validate checks the whole analysis configuration.
func (c *Config) Validate() error {
	if c.HistorySize < 1 {
		return fmt.Errorf("%w: history_size must be positive", ErrInvalidConfig)
	}
	if c.Classifier.SilenceFloor <= 0 {
		return fmt.Errorf("%w: silence_floor must be positive", ErrInvalidConfig)
	}
	if err := c.Features.Validate(); err != nil {
		return err
	}
	if err := c.Beat.Validate(); err != nil {
		return err
	}
	return c.Music.Validate()
}
