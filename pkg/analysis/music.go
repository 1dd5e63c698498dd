package analysis

// MusicGate is the MusicDetector's verdict.
type MusicGate struct {
	IsMusic    bool    `json:"is_music"`
	Confidence float64 `json:"confidence"` // mean frame score 0..1
	Score      float64 `json:"score"`      // current frame score
}

// MusicDetector accumulates per-frame musical evidence over a short
// window and gates it with enter/exit hysteresis.
type MusicDetector struct {
	cfg     MusicConfig
	scores  *Ring[float64]
	isMusic bool
	lowRun  int
}

// NewMusicDetector creates a music detector.
func NewMusicDetector(cfg MusicConfig) *MusicDetector {
	return &MusicDetector{
		cfg:    cfg,
		scores: NewRing[float64](cfg.Window),
	}
}

// frameScore rates how music-like a single frame is, 0..1.
func (m *MusicDetector) frameScore(fv FeatureVector, beat BeatState) float64 {
	if fv.Energy < m.cfg.ActiveEnergy {
		return 0
	}
	score := 0.1 // audible
	if fv.SpectralFlatness < 0.3 {
		score += 0.25
	}
	if fv.Bands[BandLow] > 0.15 {
		score += 0.15
	}
	if fv.SpectralCentroid > 200 && fv.SpectralCentroid < 5000 {
		score += 0.1
	}
	if fv.ZeroCrossingRate < 0.2 {
		score += 0.1
	}
	score += 0.3 * beat.Confidence
	return min(score, 1)
}

// Update scores fv and returns the current gate.
func (m *MusicDetector) Update(fv FeatureVector, beat BeatState) MusicGate {
	score := m.frameScore(fv, beat)
	m.scores.Push(score)

	var sum float64
	m.scores.Each(func(_ int, v float64) { sum += v })
	mean := sum / float64(m.scores.Len())

	if score < m.cfg.DropoutScore {
		m.lowRun++
	} else {
		m.lowRun = 0
	}

	if m.isMusic {
		if mean < m.cfg.Exit || m.lowRun >= m.cfg.DropoutFrames {
			m.isMusic = false
		}
	} else if mean >= m.cfg.Enter && m.scores.Len() >= (m.cfg.Window+1)/2 {
		m.isMusic = true
	}

	return MusicGate{IsMusic: m.isMusic, Confidence: mean, Score: score}
}

// Reset clears the detector.
func (m *MusicDetector) Reset() {
	m.scores.Reset()
	m.isMusic = false
	m.lowRun = 0
}
