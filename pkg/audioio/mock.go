package audioio

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a synthetic audio source for tests and dry runs.
// It produces silence unless configured with a generator.
type MockSource struct {
	cfg    Config
	logger *slog.Logger
	gen    Generator

	// failAt, when set, makes CaptureFrame fail for matching frames.
	failAt func(seq uint64) error

	mu      sync.Mutex
	running bool
	closed  bool
	seq     uint64
	next    time.Time

	framesCaptured atomic.Int64
	failures       atomic.Int64
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithGenerator sets the audio generator.
func WithGenerator(g Generator) MockSourceOption {
	return func(m *MockSource) {
		m.gen = g
	}
}

// WithSineWave configures the mock to generate a stationary sine wave.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.gen = Tone(frequency, amplitude, m.cfg.SampleRate)
	}
}

// WithCaptureError makes CaptureFrame return fn(seq) when it is non-nil.
func WithCaptureError(fn func(seq uint64) error) MockSourceOption {
	return func(m *MockSource) {
		m.failAt = fn
	}
}

// NewMockSource creates a new mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:    cfg,
		logger: logger.With("component", "audioio.mock"),
		gen:    Silence(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start begins generating audio.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}

	m.running = true
	m.next = time.Now()

	m.logger.Info("mock audio source started",
		"sample_rate", m.cfg.SampleRate,
		"frame_size", m.cfg.FrameSize,
		"paced", m.cfg.Paced,
	)

	return nil
}

// CaptureFrame generates the next frame. When paced it first waits
// until the frame is due.
func (m *MockSource) CaptureFrame(ctx context.Context) (Frame, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Frame{}, io.EOF
	}
	if !m.running {
		m.mu.Unlock()
		return Frame{}, ErrNotStarted
	}
	seq := m.seq
	m.seq++
	due := m.next
	m.next = m.next.Add(m.cfg.FramePeriod())
	m.mu.Unlock()

	if m.cfg.Paced {
		if wait := time.Until(due); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Frame{}, ctx.Err()
			case <-timer.C:
			}
		}
	}

	if m.failAt != nil {
		if err := m.failAt(seq); err != nil {
			m.failures.Add(1)
			return Frame{}, err
		}
	}

	samples := make([]int16, m.cfg.FrameSize)
	m.gen.Fill(seq, samples)
	m.framesCaptured.Add(1)

	return Frame{
		Seq:        seq,
		Samples:    samples,
		SampleRate: m.cfg.SampleRate,
		CapturedAt: time.Now(),
	}, nil
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return string(BackendMock)
}

// Close releases resources. It is safe to call more than once.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.running = false
	m.logger.Info("mock audio source closed", "frames", m.framesCaptured.Load())
	return nil
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SourceStats{
		FramesCaptured: m.framesCaptured.Load(),
		Connected:      running,
		Backend:        string(BackendMock),
	}
}

// Ensure MockSource implements SourceWithStats.
var _ SourceWithStats = (*MockSource)(nil)
