package analysis

import (
	"math"
	"time"
)

// BeatState is a read-only snapshot of the beat tracker.
type BeatState struct {
	// BPM is the tempo estimate; meaningful only when Known.
	BPM   float64 `json:"bpm"`
	Known bool    `json:"known"`

	// Confidence 0..1 in the tempo estimate.
	Confidence float64 `json:"confidence"`

	// LastBeat is the stream time of the most recent onset.
	LastBeat time.Duration `json:"last_beat"`

	// OnsetPending is true on the frame an onset was detected.
	OnsetPending bool `json:"onset"`

	// OnsetStrength 0..100 of the current frame's onset.
	OnsetStrength float64 `json:"onset_strength"`
}

// BeatPeriod returns the beat period for a known tempo, else 0.
func (s BeatState) BeatPeriod() time.Duration {
	if !s.Known || s.BPM <= 0 {
		return 0
	}
	return time.Duration(60 / s.BPM * float64(time.Second))
}

// BeatDetector finds onsets in spectral flux and tracks tempo from
// inter-onset intervals.
type BeatDetector struct {
	cfg BeatConfig

	flux      *Ring[float64]
	intervals *Ring[float64] // seconds
	prevFlux  float64

	haveOnset bool
	lastOnset time.Duration

	estimate   float64 // seconds per beat, 0 when unknown
	confidence float64

	state BeatState
}

// NewBeatDetector creates a beat detector.
func NewBeatDetector(cfg BeatConfig) *BeatDetector {
	return &BeatDetector{
		cfg:       cfg,
		flux:      NewRing[float64](cfg.FluxWindow),
		intervals: NewRing[float64](cfg.IntervalWindow),
	}
}

// Update feeds one feature vector observed at stream time now and
// returns the new state.
func (d *BeatDetector) Update(fv FeatureVector, now time.Duration) BeatState {
	flux := fv.Flux
	threshold := d.threshold()

	minGap := time.Duration(60 / d.cfg.MaxBPM * float64(time.Second))
	onset := flux > threshold &&
		flux >= d.prevFlux &&
		(!d.haveOnset || now-d.lastOnset >= minGap)

	d.flux.Push(flux)
	d.prevFlux = flux

	if onset {
		if d.haveOnset {
			d.addInterval((now - d.lastOnset).Seconds())
		}
		d.haveOnset = true
		d.lastOnset = now
	} else {
		limit := 2.0
		if d.estimate > 0 {
			limit = 2 * d.estimate
		}
		if !d.haveOnset || (now-d.lastOnset).Seconds() > limit {
			d.confidence -= d.cfg.AbsenceDecay
		}
	}
	d.confidence = math.Max(0, math.Min(1, d.confidence))

	d.state = BeatState{
		Confidence:   d.confidence,
		LastBeat:     d.lastOnset,
		OnsetPending: onset,
	}
	if onset {
		d.state.OnsetStrength = math.Min(100, 50*flux/threshold)
	}
	if d.estimate > 0 && d.confidence >= d.cfg.MinConfidence {
		d.state.BPM = 60 / d.estimate
		d.state.Known = true
	}
	return d.state
}

// State returns the latest snapshot.
func (d *BeatDetector) State() BeatState { return d.state }

// Reset forgets all onsets and the tempo estimate.
func (d *BeatDetector) Reset() {
	d.flux.Reset()
	d.intervals.Reset()
	d.prevFlux = 0
	d.haveOnset = false
	d.lastOnset = 0
	d.estimate = 0
	d.confidence = 0
	d.state = BeatState{}
}

// threshold is max(MinFlux, mean + K*std) over the stored flux values.
func (d *BeatDetector) threshold() float64 {
	n := d.flux.Len()
	if n == 0 {
		return d.cfg.MinFlux
	}
	var sum, sumSq float64
	d.flux.Each(func(_ int, v float64) {
		sum += v
		sumSq += v * v
	})
	mean := sum / float64(n)
	variance := math.Max(0, sumSq/float64(n)-mean*mean)
	return math.Max(d.cfg.MinFlux, mean+d.cfg.ThresholdK*math.Sqrt(variance))
}

// addInterval folds iv into the tempo range and updates the estimate.
func (d *BeatDetector) addInterval(iv float64) {
	minIv := 60 / d.cfg.MaxBPM
	maxIv := 60 / d.cfg.MinBPM

	// A gap this long is a restart, not a beat.
	if iv <= 0 || iv > 2*maxIv {
		return
	}
	for iv > maxIv {
		iv /= 2
	}
	for iv < minIv {
		iv *= 2
	}

	consistent := d.estimate == 0 || math.Abs(iv-d.estimate)/d.estimate <= d.cfg.Tolerance

	d.intervals.Push(iv)
	d.estimate = d.estimateTempo()

	if consistent {
		d.confidence += d.cfg.ConfidenceRise
	} else {
		d.confidence *= d.cfg.IrregularDecay
	}
}

// estimateTempo scores every stored interval by the recency-weighted
// number of intervals agreeing with it. The best-supported candidate
// wins, ties going to the most recent one, and the estimate is the
// weighted mean of its supporters.
func (d *BeatDetector) estimateTempo() float64 {
	n := d.intervals.Len()
	if n == 0 {
		return 0
	}

	weight := func(i int) float64 {
		return math.Pow(d.cfg.Recency, float64(n-1-i))
	}
	agrees := func(a, b float64) bool {
		return math.Abs(a-b)/b <= d.cfg.Tolerance
	}

	best, bestScore := 0.0, -1.0
	for i := 0; i < n; i++ {
		c := d.intervals.At(i)
		score := 0.0
		for j := 0; j < n; j++ {
			if agrees(d.intervals.At(j), c) {
				score += weight(j)
			}
		}
		if score >= bestScore-1e-9 {
			best, bestScore = c, score
		}
	}

	var sum, wsum float64
	for j := 0; j < n; j++ {
		if iv := d.intervals.At(j); agrees(iv, best) {
			sum += weight(j) * iv
			wsum += weight(j)
		}
	}
	return sum / wsum
}
