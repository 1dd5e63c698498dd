package audioio

import (
	"fmt"
	"log/slog"
)

// NewSource creates an audio source for cfg.Backend. Extra options only
// apply to the mock backend.
func NewSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("creating audio source",
		"backend", cfg.Backend,
		"sample_rate", cfg.SampleRate,
		"frame_size", cfg.FrameSize,
		"frame_period_ms", cfg.FramePeriod().Milliseconds(),
	)

	switch cfg.Backend {
	case BackendMock:
		return NewMockSource(cfg, logger, opts...), nil
	case BackendRemote:
		return NewRemoteSource(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
}

// DemoGenerator loops 10 s of silence and 20 s of a 120 BPM click track.
// Used for dry runs without a robot.
func DemoGenerator(cfg Config) Generator {
	perSecond := int(1 / cfg.FramePeriod().Seconds())
	return Sequence(true,
		Segment{Frames: 10 * perSecond, Gen: Silence()},
		Segment{Frames: 20 * perSecond, Gen: NewClickTrack(cfg, 120, 0.14)},
	)
}
