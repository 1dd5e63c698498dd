package audioio

import (
	"math"
	"time"
)

// Generator produces synthetic audio for the mock source.
type Generator interface {
	// Fill writes the audio for frame number seq into frame.
	Fill(seq uint64, frame []int16)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(seq uint64, frame []int16)

// Fill calls f.
func (f GeneratorFunc) Fill(seq uint64, frame []int16) { f(seq, frame) }

// Silence returns a generator of all-zero frames.
func Silence() Generator {
	return GeneratorFunc(func(_ uint64, frame []int16) {
		clear(frame)
	})
}

// Tone returns a stationary sine generator. Every frame starts at phase
// zero, so consecutive frames are identical.
func Tone(freqHz, amplitude float64, sampleRate int) Generator {
	return GeneratorFunc(func(_ uint64, frame []int16) {
		for i := range frame {
			v := amplitude * math.Sin(2*math.Pi*freqHz*float64(i)/float64(sampleRate))
			frame[i] = toPCM(v)
		}
	})
}

// ClickTrack synthesizes a minimal piece of music: a steady three-voice
// chord (bass, mid, treble) with a kick drum on every beat.
type ClickTrack struct {
	BPM       float64
	Amplitude float64 // per chord voice, 0..1
	KickGain  float64 // kick amplitude relative to Amplitude

	frameSize   int
	framePeriod time.Duration
	bins        [3]int
	kickBin     int
}

// NewClickTrack creates a click track laid out for cfg's frames.
func NewClickTrack(cfg Config, bpm, amplitude float64) *ClickTrack {
	binOf := func(hz float64) int {
		b := int(math.Round(hz * float64(cfg.FrameSize) / float64(cfg.SampleRate)))
		return max(b, 1)
	}
	return &ClickTrack{
		BPM:         bpm,
		Amplitude:   amplitude,
		KickGain:    2,
		frameSize:   cfg.FrameSize,
		framePeriod: cfg.FramePeriod(),
		bins:        [3]int{binOf(129), binOf(861), binOf(5168)},
		kickBin:     binOf(86),
	}
}

// FramesPerBeat returns the beat period in frames.
func (c *ClickTrack) FramesPerBeat() float64 {
	beat := 60 / c.BPM
	return beat / c.framePeriod.Seconds()
}

// IsBeat reports whether frame seq carries a kick.
func (c *ClickTrack) IsBeat(seq uint64) bool {
	fpb := c.FramesPerBeat()
	i := math.Round(float64(seq) / fpb)
	return uint64(math.Round(i*fpb)) == seq
}

// Fill implements Generator.
func (c *ClickTrack) Fill(seq uint64, frame []int16) {
	n := float64(c.frameSize)
	beat := c.IsBeat(seq)
	for i := range frame {
		x := 2 * math.Pi * float64(i) / n
		var v float64
		for _, b := range c.bins {
			v += c.Amplitude * math.Sin(float64(b)*x)
		}
		if beat {
			v += c.KickGain * c.Amplitude * math.Sin(float64(c.kickBin)*x)
		}
		frame[i] = toPCM(v)
	}
}

// Segment is one part of a Sequence.
type Segment struct {
	Frames int
	Gen    Generator
}

// Sequence plays segments back to back. Each segment sees frame numbers
// relative to its own start. With loop set it starts over at the end,
// otherwise the last segment repeats forever.
func Sequence(loop bool, segments ...Segment) Generator {
	total := 0
	for _, s := range segments {
		total += s.Frames
	}
	return GeneratorFunc(func(seq uint64, frame []int16) {
		if len(segments) == 0 {
			clear(frame)
			return
		}
		pos := int(seq)
		if loop && total > 0 {
			pos %= total
		}
		for _, s := range segments {
			if pos < s.Frames {
				s.Gen.Fill(uint64(pos), frame)
				return
			}
			pos -= s.Frames
		}
		last := segments[len(segments)-1]
		last.Gen.Fill(uint64(pos+last.Frames), frame)
	})
}

func toPCM(v float64) int16 {
	v = math.Max(-1, math.Min(1, v))
	return int16(v * 32767)
}
