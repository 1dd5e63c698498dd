// Package status holds the process-wide status snapshot. The coordinator
// writes it once per frame; control commands write the operator settings;
// the HTTP, websocket and MQTT adapters read copies.
package status

import (
	"bytes"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/teslashibe/go-rave/pkg/analysis"
)

// BPM is a tempo that encodes as "unknown" when zero.
type BPM float64

// MarshalJSON encodes the tempo rounded to one decimal, or "unknown".
func (b BPM) MarshalJSON() ([]byte, error) {
	if b <= 0 {
		return []byte(`"unknown"`), nil
	}
	return strconv.AppendFloat(nil, float64(b), 'f', 1, 64), nil
}

// UnmarshalJSON accepts a number or "unknown".
func (b *BPM) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte(`"unknown"`)) || bytes.Equal(data, []byte("null")) {
		*b = 0
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = BPM(v)
	return nil
}

// Degraded flags actuators that stopped working. The pipeline keeps
// running without them.
type Degraded struct {
	Motion bool `json:"motion"`
	Eyes   bool `json:"eyes"`
	Audio  bool `json:"audio"`
}

// Any reports whether anything is degraded.
func (d Degraded) Any() bool { return d.Motion || d.Eyes || d.Audio }

// Snapshot is a value copy of the process status.
type Snapshot struct {
	// Operator settings.
	Sensitivity int  `json:"sensitivity"`
	Gain        int  `json:"gain"`
	Autonomous  bool `json:"autonomous"`

	// Input.
	AudioOK   bool    `json:"audio_ok"`
	Muted     bool    `json:"is_muted"`
	Gated     bool    `json:"is_gated"`
	NoiseGate float64 `json:"noise_gate"`

	// Analysis.
	Energy          float64                        `json:"energy"`
	AudioType       analysis.AudioType             `json:"audio_type"`
	AudioConfidence float64                        `json:"audio_type_confidence"`
	MusicGate       bool                           `json:"music_gate"`
	BPM             BPM                            `json:"bpm"`
	BPMConfidence   float64                        `json:"bpm_confidence"`
	Beat            bool                           `json:"is_beat"`
	BeatStrength    float64                        `json:"beat_strength"`
	Bands           [analysis.NumBands]float64     `json:"bands"`
	DominantBand    analysis.Band                  `json:"dominant_band"`
	Spectrum        [analysis.SpectrumBins]float64 `json:"spectrum"`

	// Dance.
	Dancing           bool   `json:"is_dancing"`
	DanceState        string `json:"dance_state"`
	Pattern           string `json:"pattern"`
	Move              string `json:"current_move"`
	Style             string `json:"style"`
	PatternsCompleted uint64 `json:"patterns_completed"`
	DanceReason       string `json:"dance_reason"`

	// Actuators.
	Eyes        string   `json:"eye_expression"`
	Motion      string   `json:"motion_state"`
	MotionFault string   `json:"motion_fault,omitempty"`
	Degraded    Degraded `json:"degraded"`

	Frames    uint64    `json:"frames"`
	SessionID string    `json:"session_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Controls is the operator-settings subset the audio loop reads per frame.
type Controls struct {
	Sensitivity int
	Gain        int
	Autonomous  bool
}

// Analysis returns the settings the analysis stages need.
func (c Controls) Analysis() analysis.Controls {
	return analysis.Controls{Sensitivity: c.Sensitivity, Gain: c.Gain}
}

// Defaults is the status at startup.
func Defaults() Snapshot {
	return Snapshot{
		Sensitivity:  50,
		Gain:         50,
		Autonomous:   true,
		AudioOK:      true,
		DominantBand: analysis.BandNone,
		DanceState:   "idle",
		Eyes:         "normal",
		Motion:       "idle",
		DanceReason:  "Waiting for music to start",
	}
}

// Store guards one Snapshot with a single mutex that is only held while
// copying; nothing does I/O under it.
type Store struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewStore creates a store holding initial.
func NewStore(initial Snapshot) *Store {
	return &Store{snap: initial}
}

// Snapshot returns a copy of the current status.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Update applies fn to the status under the lock. fn must not block.
func (s *Store) Update(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snap)
}

// Controls returns the operator settings in one locked read.
func (s *Store) Controls() Controls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Controls{
		Sensitivity: s.snap.Sensitivity,
		Gain:        s.snap.Gain,
		Autonomous:  s.snap.Autonomous,
	}
}

// SetSensitivity sets the sensitivity 0..100.
func (s *Store) SetSensitivity(v int) error {
	if err := checkRange("sensitivity", v); err != nil {
		return err
	}
	s.Update(func(snap *Snapshot) { snap.Sensitivity = v })
	return nil
}

// SetGain sets the input gain 0..100; 0 mutes.
func (s *Store) SetGain(v int) error {
	if err := checkRange("gain", v); err != nil {
		return err
	}
	s.Update(func(snap *Snapshot) {
		snap.Gain = v
		snap.Muted = v == 0
	})
	return nil
}

// SetAutonomous turns autonomous dancing on or off.
func (s *Store) SetAutonomous(on bool) {
	s.Update(func(snap *Snapshot) { snap.Autonomous = on })
}

// ToggleAutonomous flips autonomous mode and returns the new value.
func (s *Store) ToggleAutonomous() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Autonomous = !s.snap.Autonomous
	return s.snap.Autonomous
}
