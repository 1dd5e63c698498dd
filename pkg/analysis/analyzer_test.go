package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-rave/pkg/audioio"
)

var unity = Controls{Sensitivity: 50, Gain: 50}

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(DefaultConfig())
	require.NoError(t, err)
	return a
}

func TestAnalyzer_SilentFrame(t *testing.T) {
	a := newTestAnalyzer(t)

	res := a.Process(make([]int16, 2048), unity, 0)

	assert.Equal(t, 0.0, res.Features.Energy)
	assert.Equal(t, Silence, res.Classification.Type)
	assert.False(t, res.Beat.Known)
	assert.Equal(t, 1, a.History().Len())
}

func TestAnalyzer_ClickTrackIsMusic(t *testing.T) {
	a := newTestAnalyzer(t)
	audioCfg := audioio.DefaultConfig()
	period := audioCfg.FramePeriod()
	click := audioio.NewClickTrack(audioCfg, 120, 0.14)

	seq := 0
	process := func(frame []int16) Result {
		res := a.Process(frame, unity, time.Duration(seq)*period)
		seq++
		return res
	}

	for i := 0; i < 30; i++ {
		res := process(make([]int16, 2048))
		require.Equal(t, Silence, res.Classification.Type)
	}

	var res Result
	frame := make([]int16, 2048)
	for i := 0; i < 50; i++ {
		click.Fill(uint64(i), frame)
		res = process(frame)
		if click.IsBeat(uint64(i)) {
			assert.True(t, res.Beat.OnsetPending, "kick at click frame %d", i)
		}
	}

	assert.Equal(t, Music, res.Classification.Type, "scores %v", res.Classification.Scores)
	require.True(t, res.Beat.Known)
	assert.InDelta(t, 120, res.Beat.BPM, 3)
	assert.Greater(t, res.Features.Energy, 50.0)
}

func TestAnalyzer_QuietToneIsGated(t *testing.T) {
	a := newTestAnalyzer(t)

	res := a.Process(toneFrame(861, 0.007), unity, 0)

	assert.True(t, res.Features.Gated)
	assert.Equal(t, 0.0, res.Features.Energy)
	assert.Greater(t, res.Features.RMS, 0.0)
	assert.GreaterOrEqual(t, res.NoiseGate, NoiseGate(50))
}

func TestAnalyzer_Mute(t *testing.T) {
	a := newTestAnalyzer(t)

	res := a.Process(toneFrame(861, 0.5), Controls{Sensitivity: 50, Gain: 0}, 0)

	assert.True(t, res.Muted)
	assert.Equal(t, 0.0, res.Features.Energy)
	assert.Equal(t, Silence, res.Classification.Type)
}

func TestAnalyzer_Reset(t *testing.T) {
	a := newTestAnalyzer(t)
	a.Process(toneFrame(861, 0.3), unity, 0)
	a.Reset()

	assert.Equal(t, 0, a.History().Len())
	res := a.Process(toneFrame(861, 0.3), unity, 0)
	assert.Equal(t, 0.0, res.Features.Flux, "no previous vector after reset")
}

func TestAnalyzer_ResetRestoresNoiseFloor(t *testing.T) {
	a := newTestAnalyzer(t)

	var res Result
	for i := 0; i < 200; i++ {
		res = a.Process(toneFrame(861, 0.021), unity, 0)
	}
	require.Greater(t, res.NoiseFloor, 0.012, "steady hum raises the floor")

	a.Reset()
	res = a.Process(make([]int16, 2048), unity, 0)
	assert.InDelta(t, 0.0095, res.NoiseFloor, 1e-9, "one silent frame from the initial floor")
}

func TestNewAnalyzer_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Features.MidHz = 10

	_, err := NewAnalyzer(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
