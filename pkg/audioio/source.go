package audioio

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNoAudio is returned when no frame arrived within one frame period.
	ErrNoAudio = errors.New("audioio: no audio within frame period")

	// ErrNotStarted is returned when CaptureFrame is called before Start.
	ErrNotStarted = errors.New("audioio: source not started")
)

// Frame is one fixed-length block of mono PCM16 samples.
// Frames are treated as immutable once handed out.
type Frame struct {
	// Seq is the monotonically increasing frame number.
	Seq uint64

	// Samples holds exactly FrameSize mono samples.
	Samples []int16

	// SampleRate of Samples in Hz.
	SampleRate int

	// CapturedAt is the wall-clock capture time.
	CapturedAt time.Time

	// Synthetic marks frames fabricated by the pipeline after a capture failure.
	Synthetic bool
}

// SilentFrame returns a zero frame, used in place of a failed capture.
func SilentFrame(seq uint64, cfg Config) Frame {
	return Frame{
		Seq:        seq,
		Samples:    make([]int16, cfg.FrameSize),
		SampleRate: cfg.SampleRate,
		CapturedAt: time.Now(),
		Synthetic:  true,
	}
}

// Duration returns the length of audio covered by the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(len(f.Samples)) / float64(f.SampleRate) * float64(time.Second))
}

// Source captures audio frames from a microphone or other input.
type Source interface {
	// Start begins capture. Calling Start twice is a no-op.
	Start(ctx context.Context) error

	// CaptureFrame returns the next frame, blocking up to about one
	// frame period. A source with nothing to hand out returns ErrNoAudio.
	CaptureFrame(ctx context.Context) (Frame, error)

	// Config returns the capture configuration.
	Config() Config

	// Name returns the backend name ("mock", "remote").
	Name() string

	// Close stops capture and releases resources.
	io.Closer
}

// SourceStats contains statistics about the audio source.
type SourceStats struct {
	// FramesCaptured is the total number of frames handed out.
	FramesCaptured int64 `json:"frames_captured"`

	// Overruns is the number of frames dropped because the consumer lagged.
	Overruns int64 `json:"overruns"`

	// Reconnects counts remote link re-dials.
	Reconnects int64 `json:"reconnects"`

	// Connected reports whether the backend currently has a live input.
	Connected bool `json:"connected"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}
