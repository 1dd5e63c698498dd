package analysis

import (
	"math"
	"time"
)

// Controls are the operator settings an analysis cycle depends on.
type Controls struct {
	Sensitivity int // 0..100
	Gain        int // 0..100, 0 mutes
}

// Result is everything one analysis cycle produced.
type Result struct {
	Features       FeatureVector
	Beat           BeatState
	Classification Classification

	NoiseFloor float64
	NoiseGate  float64
	Muted      bool
}

// initialNoiseFloor is the ambient RMS assumed before any audio is heard.
const initialNoiseFloor = 0.01

// Analyzer chains the stages in pipeline order: extract, gate, push to
// history, beat update, classify. It owns all stage state and must be
// driven from a single goroutine.
type Analyzer struct {
	cfg Config

	extractor  *Extractor
	history    *FeatureHistory
	beat       *BeatDetector
	classifier *Classifier
	floor      *NoiseFloor

	prev    FeatureVector
	hasPrev bool
}

// NewAnalyzer validates cfg and builds every stage.
func NewAnalyzer(cfg Config) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ext, err := NewExtractor(cfg.Features)
	if err != nil {
		return nil, err
	}
	return &Analyzer{
		cfg:        cfg,
		extractor:  ext,
		history:    NewFeatureHistory(cfg.HistorySize),
		beat:       NewBeatDetector(cfg.Beat),
		classifier: NewClassifier(cfg.Classifier, cfg.Music),
		floor:      NewNoiseFloor(initialNoiseFloor),
	}, nil
}

// Process runs one frame through every stage. now is the frame's
// stream time, used for onset timing.
func (a *Analyzer) Process(samples []int16, ctl Controls, now time.Duration) Result {
	var prev *FeatureVector
	if a.hasPrev {
		prev = &a.prev
	}

	fv := a.extractor.Extract(samples, GainMultiplier(ctl.Gain), prev)
	a.floor.Observe(fv.RMS)

	gate := math.Max(NoiseGate(ctl.Sensitivity), a.floor.Value*1.2)
	fv = fv.Gate(gate)

	a.history.Push(fv)
	beat := a.beat.Update(fv, now)
	cls := a.classifier.Classify(a.history, beat, ctl.Sensitivity)

	a.prev = fv
	a.hasPrev = true

	return Result{
		Features:       fv,
		Beat:           beat,
		Classification: cls,
		NoiseFloor:     a.floor.Value,
		NoiseGate:      gate,
		Muted:          ctl.Gain <= 0,
	}
}

// History exposes the feature window, read-only by convention.
func (a *Analyzer) History() *FeatureHistory { return a.history }

// Reset clears every stage, e.g. when the audio source restarts.
func (a *Analyzer) Reset() {
	a.history.Reset()
	a.beat.Reset()
	a.classifier.Reset()
	a.floor.Value = initialNoiseFloor
	a.hasPrev = false
	a.prev = FeatureVector{}
}
