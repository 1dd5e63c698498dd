package analysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// classifyWindow pushes frames one at a time, classifying after each push
// the way the analyzer does, and returns the last verdict.
func classifyWindow(t *testing.T, frames []FeatureVector, beat BeatState, sensitivity int) Classification {
	t.Helper()
	cfg := DefaultConfig()
	c := NewClassifier(cfg.Classifier, cfg.Music)
	h := NewFeatureHistory(cfg.HistorySize)

	var out Classification
	for _, fv := range frames {
		h.Push(fv)
		out = c.Classify(h, beat, sensitivity)
	}
	require.NotEmpty(t, frames)
	return out
}

func repeat(n int, fv FeatureVector) []FeatureVector {
	out := make([]FeatureVector, n)
	for i := range out {
		out[i] = fv
	}
	return out
}

func TestScores_WinnerPrecedence(t *testing.T) {
	tests := []struct {
		name   string
		scores Scores
		want   AudioType
	}{
		{"silence beats music on tie", Scores{0.5, 0.5, 0, 0}, Silence},
		{"music beats speech and noise", Scores{0, 0.3, 0.3, 0.3}, Music},
		{"speech beats noise", Scores{0, 0, 0.4, 0.4}, Speech},
		{"clear noise", Scores{0.1, 0.2, 0.3, 0.6}, Noise},
		{"all zero", Scores{}, Silence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.scores.Winner())
		})
	}
}

func TestClassify_EmptyHistoryIsSilence(t *testing.T) {
	cfg := DefaultConfig()
	c := NewClassifier(cfg.Classifier, cfg.Music)

	got := c.Classify(NewFeatureHistory(30), BeatState{}, 50)
	assert.Equal(t, Silence, got.Type)
	assert.Equal(t, 1.0, got.Scores[Silence])
}

func TestClassify_ZeroWindowIsSilence(t *testing.T) {
	got := classifyWindow(t, repeat(30, FeatureVector{DominantBand: BandNone}), BeatState{}, 50)

	assert.Equal(t, Silence, got.Type)
	assert.Equal(t, Scores{1, 0, 0, 0}, got.Scores)
	assert.Equal(t, 1.0, got.Confidence)
	assert.False(t, got.Music.IsMusic)
}

func TestClassify_Speech(t *testing.T) {
	syllable := FeatureVector{
		Energy:           50,
		SpectralFlatness: 0.2,
		SpectralCentroid: 1000,
		ZeroCrossingRate: 0.1,
		Flux:             0.01,
		Bands:            [NumBands]float64{0.1, 0.8, 0.1},
		DominantBand:     BandMid,
	}
	pause := FeatureVector{Energy: 3, DominantBand: BandNone}

	var frames []FeatureVector
	for len(frames) < 30 {
		frames = append(frames, syllable, syllable, syllable, pause, pause)
	}

	got := classifyWindow(t, frames, BeatState{}, 50)
	assert.Equal(t, Speech, got.Type, "scores %v", got.Scores)
	assert.Greater(t, got.Confidence, 0.0)
}

func TestClassify_Noise(t *testing.T) {
	hiss := FeatureVector{
		Energy:           40,
		SpectralFlatness: 0.85,
		SpectralCentroid: 3000,
		ZeroCrossingRate: 0.4,
		Flux:             0.3,
		Bands:            [NumBands]float64{0.3, 0.35, 0.35},
		DominantBand:     BandMid,
	}

	got := classifyWindow(t, repeat(30, hiss), BeatState{}, 50)
	assert.Equal(t, Noise, got.Type, "scores %v", got.Scores)
	assert.False(t, got.Music.IsMusic)
}

func TestClassify_Music(t *testing.T) {
	groove := FeatureVector{
		Energy:           60,
		SpectralFlatness: 0.1,
		SpectralCentroid: 1500,
		ZeroCrossingRate: 0.05,
		Bands:            [NumBands]float64{0.4, 0.35, 0.25},
		DominantBand:     BandLow,
	}
	beat := BeatState{BPM: 120, Known: true, Confidence: 0.8}

	got := classifyWindow(t, repeat(30, groove), beat, 50)
	assert.Equal(t, Music, got.Type, "scores %v", got.Scores)
	assert.True(t, got.Music.IsMusic)
	assert.Greater(t, got.Confidence, 0.5)
	assert.LessOrEqual(t, got.Confidence, 1.0)
}

func TestClassify_SensitivityScalesFloor(t *testing.T) {
	murmur := FeatureVector{
		Energy:           6,
		SpectralFlatness: 0.5,
		SpectralCentroid: 800,
		Bands:            [NumBands]float64{0.3, 0.4, 0.3},
		DominantBand:     BandMid,
	}

	deaf := classifyWindow(t, repeat(30, murmur), BeatState{}, 0)
	keen := classifyWindow(t, repeat(30, murmur), BeatState{}, 100)

	assert.Equal(t, Silence, deaf.Type)
	assert.NotEqual(t, Silence, keen.Type)
	assert.InDelta(t, 12, deaf.Floor, 1e-9)
	assert.InDelta(t, 4, keen.Floor, 1e-9)
}

func TestClassify_CorruptHistoryPanics(t *testing.T) {
	cfg := DefaultConfig()
	c := NewClassifier(cfg.Classifier, cfg.Music)
	h := NewFeatureHistory(2)
	h.n = 5

	assert.Panics(t, func() { c.Classify(h, BeatState{}, 50) })
}

func TestAudioType_Text(t *testing.T) {
	for _, typ := range []AudioType{Silence, Music, Speech, Noise} {
		parsed, err := ParseAudioType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)
	}
	_, err := ParseAudioType("jazz")
	assert.Error(t, err)

	b, err := json.Marshal(Classification{Type: Music})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"type":"MUSIC"`)
	assert.Contains(t, string(b), `"SILENCE":0`)
}
