package audioio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"gopkg.in/hraban/opus.v2"

	"github.com/teslashibe/go-rave/pkg/protocol"
)

const (
	remoteHandshakeTimeout = 5 * time.Second
	remoteReadTimeout      = 5 * time.Second
	remoteFrameBuffer      = 8

	// 120 ms at 48 kHz, the largest Opus frame.
	maxOpusFrameSamples = 5760
)

type decoderKey struct {
	rate     int
	channels int
}

// RemoteSource receives microphone audio from the robot over a websocket
// carrying protocol "mic" messages (PCM16 or Opus), resamples it to the
// analysis rate and slices it into overlapping frames.
type RemoteSource struct {
	cfg    Config
	logger *slog.Logger
	dialer websocket.Dialer
	header http.Header

	frames chan Frame

	mu      sync.Mutex
	running bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}

	// owned by the receive goroutine
	framer   *Framer
	decoders map[decoderKey]*opus.Decoder
	pcm      []int16

	seq            atomic.Uint64
	framesCaptured atomic.Int64
	overruns       atomic.Int64
	reconnects     atomic.Int64
	connected      atomic.Bool
}

// NewRemoteSource creates a remote source. Nothing is dialed until Start.
func NewRemoteSource(cfg Config, logger *slog.Logger) *RemoteSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteSource{
		cfg:    cfg,
		logger: logger.With("component", "audioio.remote", "url", cfg.RemoteURL),
		dialer: websocket.Dialer{
			HandshakeTimeout: remoteHandshakeTimeout,
		},
		header:   http.Header{},
		frames:   make(chan Frame, remoteFrameBuffer),
		framer:   NewFramer(cfg.FrameSize, cfg.HopSize),
		decoders: make(map[decoderKey]*opus.Decoder),
		pcm:      make([]int16, maxOpusFrameSamples*2),
	}
}

// Start launches the receive loop. It keeps redialing until Close.
func (r *RemoteSource) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return io.ErrClosedPipe
	}
	if r.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go r.run(ctx)

	r.logger.Info("remote audio source started")
	return nil
}

func (r *RemoteSource) run(ctx context.Context) {
	defer close(r.done)

	for {
		err := r.session(ctx)
		r.connected.Store(false)
		r.framer.Reset()

		if ctx.Err() != nil {
			return
		}
		r.reconnects.Add(1)
		r.logger.Warn("mic link lost, redialing", "error", err, "delay", r.cfg.ReconnectDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.cfg.ReconnectDelay):
		}
	}
}

// session dials once and pumps messages until the link fails.
func (r *RemoteSource) session(ctx context.Context) error {
	conn, resp, err := r.dialer.DialContext(ctx, r.cfg.RemoteURL, r.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	r.connected.Store(true)
	r.logger.Info("mic link connected")

	for {
		conn.SetReadDeadline(time.Now().Add(remoteReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			r.logger.Debug("ignoring malformed message", "error", err)
			continue
		}

		switch msg.Type {
		case protocol.TypeMic:
			mic, err := msg.GetMicData()
			if err != nil {
				r.logger.Debug("bad mic payload", "error", err)
				continue
			}
			samples, err := r.decode(mic)
			if err != nil {
				r.logger.Debug("mic decode failed", "format", mic.Format, "error", err)
				continue
			}
			for _, block := range r.framer.Push(samples) {
				r.deliver(block)
			}

		case protocol.TypePing:
			ping, err := msg.GetPingData()
			if err != nil {
				continue
			}
			pong, err := protocol.NewPongMessage(ping.ID, ping.Timestamp, time.Now().UnixMilli())
			if err != nil {
				continue
			}
			if b, err := pong.Bytes(); err == nil {
				conn.WriteMessage(websocket.TextMessage, b)
			}
		}
	}
}

// decode turns one mic message into mono samples at the analysis rate.
func (r *RemoteSource) decode(mic *protocol.MicData) ([]int16, error) {
	if mic.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", mic.SampleRate)
	}
	channels := max(mic.Channels, 1)

	raw, err := mic.DecodeMicData()
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}

	var samples []int16
	switch mic.Format {
	case protocol.FormatPCM16, "":
		samples = BytesToSamples(raw)
	case protocol.FormatOpus:
		key := decoderKey{mic.SampleRate, channels}
		dec, ok := r.decoders[key]
		if !ok {
			dec, err = opus.NewDecoder(mic.SampleRate, channels)
			if err != nil {
				return nil, fmt.Errorf("opus decoder: %w", err)
			}
			r.decoders[key] = dec
		}
		buf := r.pcm[:maxOpusFrameSamples*channels]
		n, err := dec.Decode(raw, buf)
		if err != nil {
			return nil, fmt.Errorf("opus: %w", err)
		}
		samples = make([]int16, n*channels)
		copy(samples, buf[:n*channels])
	default:
		return nil, fmt.Errorf("unsupported format %q", mic.Format)
	}

	samples = Downmix(samples, channels)
	return Resample(samples, mic.SampleRate, r.cfg.SampleRate), nil
}

// deliver queues a frame, dropping the oldest one if the consumer lags.
func (r *RemoteSource) deliver(samples []int16) {
	f := Frame{
		Seq:        r.seq.Add(1) - 1,
		Samples:    samples,
		SampleRate: r.cfg.SampleRate,
		CapturedAt: time.Now(),
	}
	for {
		select {
		case r.frames <- f:
			return
		default:
		}
		select {
		case <-r.frames:
			r.overruns.Add(1)
		default:
		}
	}
}

// CaptureFrame returns the next received frame, waiting at most one
// frame period.
func (r *RemoteSource) CaptureFrame(ctx context.Context) (Frame, error) {
	r.mu.Lock()
	running, closed := r.running, r.closed
	r.mu.Unlock()
	if closed {
		return Frame{}, io.EOF
	}
	if !running {
		return Frame{}, ErrNotStarted
	}

	timer := time.NewTimer(r.cfg.FramePeriod())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case f := <-r.frames:
		r.framesCaptured.Add(1)
		return f, nil
	case <-timer.C:
		return Frame{}, ErrNoAudio
	}
}

// Config returns the audio configuration.
func (r *RemoteSource) Config() Config {
	return r.cfg
}

// Name returns "remote".
func (r *RemoteSource) Name() string {
	return string(BackendRemote)
}

// Close stops the receive loop and waits for it to exit.
func (r *RemoteSource) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	running := r.running
	r.running = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if running {
		cancel()
		<-done
	}
	r.logger.Info("remote audio source closed",
		"frames", r.framesCaptured.Load(),
		"overruns", r.overruns.Load(),
	)
	return nil
}

// Stats returns source statistics.
func (r *RemoteSource) Stats() SourceStats {
	return SourceStats{
		FramesCaptured: r.framesCaptured.Load(),
		Overruns:       r.overruns.Load(),
		Reconnects:     r.reconnects.Load(),
		Connected:      r.connected.Load(),
		Backend:        string(BackendRemote),
	}
}

// IsTimeout reports whether err means "no audio this period" rather
// than a broken source.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrNoAudio)
}

var _ SourceWithStats = (*RemoteSource)(nil)
