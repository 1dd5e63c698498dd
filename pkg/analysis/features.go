package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// SpectrumBins is the size of the log-spaced display spectrum.
const SpectrumBins = 32

const (
	spectrumMinHz = 20.0
	spectrumSpan  = 1000.0 // 20 Hz .. 20 kHz
	magFloor      = 1e-10
)

// Band identifies one of the three analysis bands.
type Band int

const (
	BandLow Band = iota
	BandMid
	BandHigh
	NumBands

	// BandNone means no band dominates (or the frame is silent).
	BandNone Band = -1
)

// String returns the band name used in status and logs.
func (b Band) String() string {
	switch b {
	case BandLow:
		return "bass"
	case BandMid:
		return "mid"
	case BandHigh:
		return "treble"
	default:
		return "none"
	}
}

// MarshalText encodes the band by name.
func (b Band) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText decodes a band name.
func (b *Band) UnmarshalText(text []byte) error {
	for _, v := range []Band{BandLow, BandMid, BandHigh, BandNone} {
		if v.String() == string(text) {
			*b = v
			return nil
		}
	}
	return fmt.Errorf("analysis: unknown band %q", text)
}

// FeatureVector is the per-frame summary every later stage consumes.
type FeatureVector struct {
	// Energy is RMS normalized to 0..100.
	Energy float64 `json:"energy"`

	RMS              float64 `json:"rms"`
	Peak             float64 `json:"peak"`
	ZeroCrossingRate float64 `json:"zcr"`

	// SpectralCentroid in Hz.
	SpectralCentroid float64 `json:"spectral_centroid"`
	// SpectralFlatness 0 (tonal) .. 1 (noise).
	SpectralFlatness float64 `json:"spectral_flatness"`
	// SpectralRolloff in Hz.
	SpectralRolloff float64 `json:"spectral_rolloff"`

	// Flux is the positive spectral change from the previous vector.
	Flux float64 `json:"flux"`

	// Bands holds each band's share of the frame's power.
	Bands        [NumBands]float64 `json:"bands"`
	DominantBand Band              `json:"dominant_band"`

	// Spectrum sums magnitudes into log-spaced bins from 20 Hz to 20 kHz.
	Spectrum [SpectrumBins]float64 `json:"-"`

	// Gated marks a frame zeroed by the noise gate.
	Gated bool `json:"gated"`
}

// Gate zeroes fv when its RMS is under threshold. The RMS itself is kept
// so noise-floor tracking still sees the room level.
func (fv FeatureVector) Gate(threshold float64) FeatureVector {
	if fv.RMS >= threshold {
		return fv
	}
	return FeatureVector{RMS: fv.RMS, DominantBand: BandNone, Gated: true}
}

// Extractor computes FeatureVectors. It keeps FFT plans and scratch
// buffers, so one Extractor must not be shared between goroutines.
type Extractor struct {
	cfg FeatureConfig

	fft       *fourier.FFT
	window    []float64
	windowSum float64
	freqs     []float64
	bandOf    []Band // per FFT bin, BandNone outside [LowHz, MaxHz)
	specOf    []int  // per FFT bin, -1 outside the display range

	buf    []float64
	coeffs []complex128
	mags   []float64
}

// NewExtractor creates an extractor for cfg.
func NewExtractor(cfg FeatureConfig) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := cfg.FrameSize
	bins := n/2 + 1
	e := &Extractor{
		cfg:    cfg,
		fft:    fourier.NewFFT(n),
		window: make([]float64, n),
		freqs:  make([]float64, bins),
		bandOf: make([]Band, bins),
		specOf: make([]int, bins),
		buf:    make([]float64, n),
		coeffs: make([]complex128, bins),
		mags:   make([]float64, bins),
	}

	for i := range e.window {
		e.window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		e.windowSum += e.window[i]
	}

	logSpan := math.Log(spectrumSpan)
	for i := range e.freqs {
		f := float64(i) * float64(cfg.SampleRate) / float64(n)
		e.freqs[i] = f

		switch {
		case f >= cfg.LowHz && f < cfg.MidHz:
			e.bandOf[i] = BandLow
		case f >= cfg.MidHz && f < cfg.HighHz:
			e.bandOf[i] = BandMid
		case f >= cfg.HighHz && f < cfg.MaxHz:
			e.bandOf[i] = BandHigh
		default:
			e.bandOf[i] = BandNone
		}

		e.specOf[i] = -1
		if f >= spectrumMinHz {
			k := int(math.Log(f/spectrumMinHz) / logSpan * SpectrumBins)
			if k < SpectrumBins {
				e.specOf[i] = k
			}
		}
	}

	return e, nil
}

// Config returns the extractor configuration.
func (e *Extractor) Config() FeatureConfig { return e.cfg }

// Extract computes the feature vector of one frame. gain is a linear
// multiplier (see GainMultiplier); prev is the previous frame's vector
// or nil. The result depends only on the arguments.
func (e *Extractor) Extract(samples []int16, gain float64, prev *FeatureVector) FeatureVector {
	var fv FeatureVector
	n := len(e.buf)

	// Right-align short frames, keep the newest samples of long ones.
	if len(samples) > n {
		samples = samples[len(samples)-n:]
	}
	pad := n - len(samples)
	clear(e.buf[:pad])

	var sumSq, peak float64
	crossings := 0
	for i, s := range samples {
		x := float64(s) / 32768 * gain
		e.buf[pad+i] = x
		sumSq += x * x
		peak = math.Max(peak, math.Abs(x))
		if i > 0 && (x >= 0) != (e.buf[pad+i-1] >= 0) {
			crossings++
		}
	}

	fv.RMS = math.Sqrt(sumSq / float64(n))
	fv.Peak = peak
	if len(samples) > 1 {
		fv.ZeroCrossingRate = float64(crossings) / float64(len(samples))
	}
	fv.Energy = math.Min(100, fv.RMS/e.cfg.ReferenceRMS*100)
	fv.DominantBand = BandNone

	if fv.RMS == 0 {
		return fv
	}

	for i := range e.buf {
		e.buf[i] *= e.window[i]
	}
	e.fft.Coefficients(e.coeffs, e.buf)

	// Amplitude-normalized magnitudes: a full-scale sine peaks near 1.
	norm := 2 / e.windowSum
	var magSum, weighted, logSum, power float64
	var bandPower [NumBands]float64
	for i, c := range e.coeffs {
		m := math.Max(math.Hypot(real(c), imag(c))*norm, magFloor)
		e.mags[i] = m
		magSum += m
		weighted += m * e.freqs[i]
		logSum += math.Log(m)
		p := m * m
		power += p
		if b := e.bandOf[i]; b != BandNone {
			bandPower[b] += p
		}
		if k := e.specOf[i]; k >= 0 {
			fv.Spectrum[k] += m
		}
	}

	bins := float64(len(e.mags))
	fv.SpectralCentroid = weighted / magSum
	fv.SpectralFlatness = math.Exp(logSum/bins) / (magSum / bins)

	target := e.cfg.RolloffFraction * magSum
	var cum float64
	for i, m := range e.mags {
		cum += m
		if cum >= target {
			fv.SpectralRolloff = e.freqs[i]
			break
		}
	}

	best := 0.0
	for b := range bandPower {
		fv.Bands[b] = bandPower[b] / power
		if fv.Bands[b] > best {
			best = fv.Bands[b]
			fv.DominantBand = Band(b)
		}
	}
	if best < e.cfg.DominantMin {
		fv.DominantBand = BandNone
	}

	if prev != nil {
		for k, m := range fv.Spectrum {
			if d := m - prev.Spectrum[k]; d > 0 {
				fv.Flux += d
			}
		}
	}

	return fv
}

// GainMultiplier maps the operator gain 0..100 to a linear multiplier:
// 0 mutes, 50 is unity, 100 is x10.
func GainMultiplier(gain int) float64 {
	if gain <= 0 {
		return 0
	}
	return math.Pow(10, float64(gain-50)/50)
}

// NoiseGate returns the RMS gate for a sensitivity 0..100. Higher
// sensitivity lowers the gate.
func NoiseGate(sensitivity int) float64 {
	return 0.1 * math.Pow(10, -float64(sensitivity)/50)
}

// NoiseFloor tracks the ambient RMS level with a slow EMA that only
// learns from quiet frames.
type NoiseFloor struct {
	Value float64
}

// NewNoiseFloor starts the tracker at initial.
func NewNoiseFloor(initial float64) *NoiseFloor {
	return &NoiseFloor{Value: initial}
}

// Observe feeds one frame's RMS.
func (n *NoiseFloor) Observe(rms float64) {
	if rms < n.Value*2 {
		n.Value = n.Value*0.95 + rms*0.05
	}
}

// SmoothSpectrum eases a display spectrum toward cur with separate
// attack and release rates, returning the new display values.
func SmoothSpectrum(display, cur [SpectrumBins]float64, attack, release float64) [SpectrumBins]float64 {
	for i := range display {
		rate := release
		if cur[i] > display[i] {
			rate = attack
		}
		display[i] += (cur[i] - display[i]) * rate
	}
	return display
}

// String is a compact log representation.
func (fv FeatureVector) String() string {
	return fmt.Sprintf("energy=%.1f flux=%.3f centroid=%.0fHz band=%s", fv.Energy, fv.Flux, fv.SpectralCentroid, fv.DominantBand)
}
