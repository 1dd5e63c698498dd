package status

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-rave/pkg/analysis"
)

func TestStore_SetSensitivity(t *testing.T) {
	s := NewStore(Defaults())

	require.NoError(t, s.SetSensitivity(80))
	assert.Equal(t, 80, s.Controls().Sensitivity)

	err := s.SetSensitivity(101)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfRange)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "sensitivity", ve.Field)
	assert.Equal(t, 101, ve.Value)
	assert.Equal(t, 80, s.Snapshot().Sensitivity, "rejected values do not mutate")

	assert.ErrorIs(t, s.SetSensitivity(-1), ErrOutOfRange)
}

func TestStore_SetGainMutes(t *testing.T) {
	s := NewStore(Defaults())

	require.NoError(t, s.SetGain(0))
	snap := s.Snapshot()
	assert.Equal(t, 0, snap.Gain)
	assert.True(t, snap.Muted)

	require.NoError(t, s.SetGain(100))
	assert.False(t, s.Snapshot().Muted)
	assert.ErrorIs(t, s.SetGain(500), ErrOutOfRange)
	assert.Equal(t, 100, s.Controls().Gain)
}

func TestStore_ToggleAutonomous(t *testing.T) {
	s := NewStore(Defaults())
	assert.True(t, s.Controls().Autonomous)

	assert.False(t, s.ToggleAutonomous())
	assert.True(t, s.ToggleAutonomous())

	s.SetAutonomous(false)
	assert.False(t, s.Snapshot().Autonomous)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := NewStore(Defaults())
	s.Update(func(snap *Snapshot) { snap.Spectrum[3] = 42 })

	snap := s.Snapshot()
	snap.Spectrum[3] = 0
	snap.Pattern = "mutated"

	assert.Equal(t, 42.0, s.Snapshot().Spectrum[3])
	assert.Empty(t, s.Snapshot().Pattern)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore(Defaults())
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				s.Update(func(snap *Snapshot) { snap.Frames++ })
			}
		}()
		go func(v int) {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				_ = s.SetSensitivity(v)
				s.ToggleAutonomous()
			}
		}(i * 10)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				_ = s.Snapshot()
				_ = s.Controls()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(2000), s.Snapshot().Frames)
}

func TestBPM_JSON(t *testing.T) {
	snap := Defaults()
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"bpm":"unknown"`)
	assert.Contains(t, string(raw), `"audio_type":"SILENCE"`)
	assert.Contains(t, string(raw), `"dominant_band":"none"`)

	snap.BPM = 120.34
	raw, err = json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"bpm":120.3`)

	var back Snapshot
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.InDelta(t, 120.3, float64(back.BPM), 1e-9)

	var unknown BPM = 7
	require.NoError(t, json.Unmarshal([]byte(`"unknown"`), &unknown))
	assert.Zero(t, unknown)
}

func TestControls_Analysis(t *testing.T) {
	c := Controls{Sensitivity: 30, Gain: 70, Autonomous: true}
	assert.Equal(t, analysis.Controls{Sensitivity: 30, Gain: 70}, c.Analysis())
}
