package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// AudioType is the classifier's verdict for the current window.
type AudioType int

// Declaration order is tie-break precedence: earlier wins.
const (
	Silence AudioType = iota
	Music
	Speech
	Noise
)

var audioTypeNames = [...]string{"SILENCE", "MUSIC", "SPEECH", "NOISE"}

// String returns the upper-case type name.
func (t AudioType) String() string {
	if t < 0 || int(t) >= len(audioTypeNames) {
		return fmt.Sprintf("AudioType(%d)", int(t))
	}
	return audioTypeNames[t]
}

// MarshalText encodes the type by name.
func (t AudioType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a type name.
func (t *AudioType) UnmarshalText(b []byte) error {
	v, err := ParseAudioType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseAudioType parses a type name, case-insensitively.
func ParseAudioType(s string) (AudioType, error) {
	for i, name := range audioTypeNames {
		if strings.EqualFold(s, name) {
			return AudioType(i), nil
		}
	}
	return Silence, fmt.Errorf("analysis: unknown audio type %q", s)
}

// Scores holds one heuristic score per audio type.
type Scores [4]float64

// Winner returns the highest-scoring type. Ties resolve by precedence
// SILENCE > MUSIC > SPEECH > NOISE.
func (s Scores) Winner() AudioType {
	best := Silence
	for t := Music; t <= Noise; t++ {
		if s[t] > s[best] {
			best = t
		}
	}
	return best
}

// MarshalJSON encodes the scores keyed by type name.
func (s Scores) MarshalJSON() ([]byte, error) {
	m := make(map[string]float64, len(s))
	for i, v := range s {
		m[AudioType(i).String()] = math.Round(v*1000) / 1000
	}
	return json.Marshal(m)
}

// Classification is a fresh verdict over the current history window.
type Classification struct {
	Type       AudioType `json:"type"`
	Confidence float64   `json:"confidence"`
	Scores     Scores    `json:"scores"`
	Music      MusicGate `json:"music_gate"`
	Floor      float64   `json:"floor"`
}

// WindowStats are the aggregates the class scores are built from.
type WindowStats struct {
	Frames      int
	Presence    float64 // share of frames at or above the floor
	MeanEnergy  float64
	Burstiness  float64 // energy CV scaled to 0..1
	Bands       [NumBands]float64
	Flatness    float64
	FluxDensity float64 // share of active frames with flux above FluxActivity
}

// Classifier scores the history window for each audio type.
type Classifier struct {
	cfg   ClassifierConfig
	music *MusicDetector
}

// NewClassifier creates a classifier with its music detector sub-stage.
func NewClassifier(cfg ClassifierConfig, music MusicConfig) *Classifier {
	return &Classifier{
		cfg:   cfg,
		music: NewMusicDetector(music),
	}
}

// SilenceFloor returns the energy floor for sensitivity 0..100.
func (c *Classifier) SilenceFloor(sensitivity int) float64 {
	s := math.Max(0, math.Min(100, float64(sensitivity)))
	return c.cfg.SilenceFloor * (1.5 - s/100)
}

// Classify feeds the newest history entry to the music detector and
// scores the whole window. Call it once per frame, after pushing.
func (c *Classifier) Classify(history *FeatureHistory, beat BeatState, sensitivity int) Classification {
	if err := history.checkInvariant(); err != nil {
		panic(err)
	}

	var gate MusicGate
	if last, ok := history.Last(); ok {
		gate = c.music.Update(last, beat)
	}

	floor := c.SilenceFloor(sensitivity)
	stats := c.Stats(history, floor)
	scores := c.Score(stats, beat, gate)
	winner := scores.Winner()

	runnerUp := 0.0
	for t, v := range scores {
		if AudioType(t) != winner {
			runnerUp = math.Max(runnerUp, v)
		}
	}
	top := scores[winner]
	conf := math.Max(0, math.Min(1, 0.5*top+(top-runnerUp)))

	return Classification{
		Type:       winner,
		Confidence: conf,
		Scores:     scores,
		Music:      gate,
		Floor:      floor,
	}
}

// Stats aggregates the window. Energy statistics use every frame;
// spectral statistics use only frames at or above floor.
func (c *Classifier) Stats(history *FeatureHistory, floor float64) WindowStats {
	var st WindowStats
	st.Frames = history.Len()
	if st.Frames == 0 {
		return st
	}

	var sumE, sumE2 float64
	active, fluxy := 0, 0
	history.Each(func(_ int, fv FeatureVector) {
		sumE += fv.Energy
		sumE2 += fv.Energy * fv.Energy
		if fv.Energy < floor {
			return
		}
		active++
		var total float64
		for _, v := range fv.Bands {
			total += v
		}
		if total > 0 {
			for b, v := range fv.Bands {
				st.Bands[b] += v / total
			}
		}
		st.Flatness += fv.SpectralFlatness
		if fv.Flux > c.cfg.FluxActivity {
			fluxy++
		}
	})

	n := float64(st.Frames)
	st.MeanEnergy = sumE / n
	if st.MeanEnergy > 0 {
		std := math.Sqrt(math.Max(0, sumE2/n-st.MeanEnergy*st.MeanEnergy))
		st.Burstiness = math.Min(1, std/st.MeanEnergy/c.cfg.BurstinessScale)
	}

	st.Presence = float64(active) / n
	if active > 0 {
		a := float64(active)
		for b := range st.Bands {
			st.Bands[b] /= a
		}
		st.Flatness /= a
		st.FluxDensity = float64(fluxy) / a
	}
	return st
}

// Score turns window statistics into per-type scores.
func (c *Classifier) Score(st WindowStats, beat BeatState, gate MusicGate) Scores {
	var s Scores
	if st.Frames == 0 {
		s[Silence] = 1
		return s
	}

	s[Silence] = 1 - st.Presence
	if st.Presence == 0 {
		return s
	}

	maxBand := 0.0
	for _, v := range st.Bands {
		maxBand = math.Max(maxBand, v)
	}
	balance := clamp01(1 - (maxBand-1.0/3)/(2.0/3))
	tonality := clamp01(1 - st.Flatness)
	aperiodic := 1 - beat.Confidence

	mw, sw, nw := c.cfg.Music, c.cfg.Speech, c.cfg.Noise
	s[Music] = st.Presence * (mw.Beat*beat.Confidence +
		mw.Balance*balance +
		mw.Tonality*tonality +
		mw.Detector*gate.Confidence)
	s[Speech] = st.Presence * (sw.Mid*st.Bands[BandMid] +
		sw.Burst*st.Burstiness +
		sw.Aperiodic*aperiodic)
	s[Noise] = st.Presence * (nw.Flatness*st.Flatness +
		nw.Erratic*aperiodic*st.FluxDensity)
	return s
}

// Reset clears the music detector.
func (c *Classifier) Reset() {
	c.music.Reset()
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
