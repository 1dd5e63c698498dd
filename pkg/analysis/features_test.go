package analysis

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = 44100

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := NewExtractor(DefaultFeatureConfig())
	require.NoError(t, err)
	return e
}

// toneFrame is a stationary sine at bin-centred frequency hz.
func toneFrame(hz, amplitude float64) []int16 {
	n := 2048
	bin := math.Round(hz * float64(n) / testRate)
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * 32767 * math.Sin(2*math.Pi*bin*float64(i)/float64(n)))
	}
	return out
}

func noiseFrame(seed uint64, amplitude float64) []int16 {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]int16, 2048)
	for i := range out {
		out[i] = int16((r.Float64()*2 - 1) * amplitude * 32767)
	}
	return out
}

func TestExtract_ZeroFrame(t *testing.T) {
	e := newTestExtractor(t)
	prev := e.Extract(toneFrame(861, 0.3), 1, nil)

	fv := e.Extract(make([]int16, 2048), 1, &prev)

	assert.Equal(t, 0.0, fv.Energy)
	assert.Equal(t, 0.0, fv.RMS)
	assert.Equal(t, 0.0, fv.Flux, "a drop in level is not an onset")
	assert.Equal(t, BandNone, fv.DominantBand)
}

func TestExtract_EnergyScale(t *testing.T) {
	e := newTestExtractor(t)

	// RMS of a sine is A/sqrt(2); reference RMS 0.25 maps to 100.
	fv := e.Extract(toneFrame(861, 0.2), 1, nil)
	assert.InDelta(t, 0.2/math.Sqrt2/0.25*100, fv.Energy, 0.5)

	loud := e.Extract(toneFrame(861, 0.9), 1, nil)
	assert.Equal(t, 100.0, loud.Energy, "energy is capped at 100")
}

func TestExtract_DominantBand(t *testing.T) {
	e := newTestExtractor(t)

	tests := []struct {
		hz   float64
		want Band
	}{
		{129, BandLow},
		{861, BandMid},
		{5168, BandHigh},
	}
	lastCentroid := 0.0
	for _, tt := range tests {
		fv := e.Extract(toneFrame(tt.hz, 0.3), 1, nil)
		assert.Equal(t, tt.want, fv.DominantBand, "tone at %.0f Hz", tt.hz)
		assert.Greater(t, fv.Bands[tt.want], 0.9)
		assert.Greater(t, fv.SpectralCentroid, lastCentroid)
		lastCentroid = fv.SpectralCentroid
	}
}

func TestExtract_Flatness(t *testing.T) {
	e := newTestExtractor(t)

	tone := e.Extract(toneFrame(861, 0.3), 1, nil)
	noise := e.Extract(noiseFrame(7, 0.3), 1, nil)

	assert.Less(t, tone.SpectralFlatness, 0.1)
	assert.Greater(t, noise.SpectralFlatness, 0.5)
	assert.Greater(t, noise.ZeroCrossingRate, tone.ZeroCrossingRate)
}

func TestExtract_Flux(t *testing.T) {
	e := newTestExtractor(t)
	frame := toneFrame(861, 0.3)

	first := e.Extract(frame, 1, nil)
	assert.Equal(t, 0.0, first.Flux, "no previous vector, no flux")

	same := e.Extract(frame, 1, &first)
	assert.Equal(t, 0.0, same.Flux, "identical frames have no flux")

	silent := e.Extract(make([]int16, 2048), 1, nil)
	onset := e.Extract(frame, 1, &silent)
	assert.Greater(t, onset.Flux, 0.1)
}

func TestExtract_Gain(t *testing.T) {
	e := newTestExtractor(t)
	frame := toneFrame(861, 0.1)

	unity := e.Extract(frame, GainMultiplier(50), nil)
	muted := e.Extract(frame, GainMultiplier(0), nil)
	boosted := e.Extract(frame, GainMultiplier(100), nil)

	assert.Equal(t, 0.0, muted.Energy)
	assert.InDelta(t, unity.RMS*10, boosted.RMS, 1e-6)
}

func TestExtract_ShortFrameIsPadded(t *testing.T) {
	e := newTestExtractor(t)
	fv := e.Extract(toneFrame(861, 0.3)[:1024], 1, nil)
	assert.Greater(t, fv.Energy, 0.0)
	assert.Equal(t, BandMid, fv.DominantBand)
}

func TestGainMultiplier(t *testing.T) {
	assert.Equal(t, 0.0, GainMultiplier(0))
	assert.InDelta(t, 1.0, GainMultiplier(50), 1e-12)
	assert.InDelta(t, 10.0, GainMultiplier(100), 1e-9)
	assert.Less(t, GainMultiplier(25), GainMultiplier(50))
}

func TestNoiseGate_SensitivityLowersGate(t *testing.T) {
	assert.Greater(t, NoiseGate(0), NoiseGate(50))
	assert.Greater(t, NoiseGate(50), NoiseGate(100))
	assert.InDelta(t, 0.01, NoiseGate(50), 1e-12)
}

func TestFeatureVector_Gate(t *testing.T) {
	fv := FeatureVector{Energy: 3, RMS: 0.005, Flux: 0.4, DominantBand: BandMid}

	gated := fv.Gate(0.01)
	assert.True(t, gated.Gated)
	assert.Equal(t, 0.0, gated.Energy)
	assert.Equal(t, 0.0, gated.Flux)
	assert.Equal(t, 0.005, gated.RMS)

	assert.Equal(t, fv, fv.Gate(0.001))
}

func TestNoiseFloor_LearnsOnlyQuietFrames(t *testing.T) {
	nf := NewNoiseFloor(0.01)
	for i := 0; i < 200; i++ {
		nf.Observe(0.2) // music, ignored
	}
	assert.Equal(t, 0.01, nf.Value)

	for i := 0; i < 200; i++ {
		nf.Observe(0.004)
	}
	assert.InDelta(t, 0.004, nf.Value, 1e-4)
}

func TestSmoothSpectrum(t *testing.T) {
	var display, cur [SpectrumBins]float64
	cur[0] = 1
	display[1] = 1

	out := SmoothSpectrum(display, cur, 0.5, 0.2)
	assert.InDelta(t, 0.5, out[0], 1e-12)
	assert.InDelta(t, 0.8, out[1], 1e-12)
}
