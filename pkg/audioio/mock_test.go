package audioio

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func unpaced() Config {
	cfg := DefaultConfig()
	cfg.Paced = false
	return cfg
}

func TestMockSource_StartClose(t *testing.T) {
	src := NewMockSource(unpaced(), nil)
	ctx := context.Background()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// Starting again should be a no-op
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}

	if err := src.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Second Close failed: %v", err)
	}

	if err := src.Start(ctx); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Start after Close = %v, want io.ErrClosedPipe", err)
	}
	if _, err := src.CaptureFrame(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("CaptureFrame after Close = %v, want io.EOF", err)
	}
}

func TestMockSource_NotStarted(t *testing.T) {
	src := NewMockSource(unpaced(), nil)
	defer src.Close()

	if _, err := src.CaptureFrame(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("CaptureFrame before Start = %v, want ErrNotStarted", err)
	}
}

func TestMockSource_SilenceByDefault(t *testing.T) {
	cfg := unpaced()
	src := NewMockSource(cfg, nil)
	defer src.Close()
	src.Start(context.Background())

	for i := 0; i < 3; i++ {
		f, err := src.CaptureFrame(context.Background())
		if err != nil {
			t.Fatalf("CaptureFrame failed: %v", err)
		}
		if f.Seq != uint64(i) {
			t.Errorf("Seq = %d, want %d", f.Seq, i)
		}
		if len(f.Samples) != cfg.FrameSize {
			t.Fatalf("Expected %d samples, got %d", cfg.FrameSize, len(f.Samples))
		}
		for _, s := range f.Samples {
			if s != 0 {
				t.Fatal("Expected silence")
			}
		}
	}

	if got := src.Stats().FramesCaptured; got != 3 {
		t.Errorf("FramesCaptured = %d, want 3", got)
	}
}

func TestMockSource_SineWave(t *testing.T) {
	src := NewMockSource(unpaced(), nil, WithSineWave(440, 0.5))
	defer src.Close()
	src.Start(context.Background())

	f, err := src.CaptureFrame(context.Background())
	if err != nil {
		t.Fatalf("CaptureFrame failed: %v", err)
	}

	var peak int16
	for _, s := range f.Samples {
		peak = max(peak, s)
	}
	if peak < 16000 || peak > 16400 {
		t.Errorf("Expected peak near 16383, got %d", peak)
	}
}

func TestMockSource_CaptureError(t *testing.T) {
	boom := errors.New("mic unplugged")
	src := NewMockSource(unpaced(), nil, WithCaptureError(func(seq uint64) error {
		if seq == 1 {
			return boom
		}
		return nil
	}))
	defer src.Close()
	src.Start(context.Background())

	ctx := context.Background()
	if _, err := src.CaptureFrame(ctx); err != nil {
		t.Fatalf("frame 0: %v", err)
	}
	if _, err := src.CaptureFrame(ctx); !errors.Is(err, boom) {
		t.Fatalf("frame 1 = %v, want %v", err, boom)
	}
	f, err := src.CaptureFrame(ctx)
	if err != nil {
		t.Fatalf("frame 2: %v", err)
	}
	if f.Seq != 2 {
		t.Errorf("Seq = %d, want 2", f.Seq)
	}
}

func TestMockSource_Paced(t *testing.T) {
	cfg := DefaultConfig()
	src := NewMockSource(cfg, nil)
	defer src.Close()
	src.Start(context.Background())

	start := time.Now()
	for i := 0; i < 5; i++ {
		if _, err := src.CaptureFrame(context.Background()); err != nil {
			t.Fatalf("CaptureFrame failed: %v", err)
		}
	}
	// First frame is due immediately, the next four one period apart.
	if elapsed := time.Since(start); elapsed < 4*cfg.FramePeriod()-5*time.Millisecond {
		t.Errorf("5 paced frames took %v, want at least %v", elapsed, 4*cfg.FramePeriod())
	}
}

func TestMockSource_PacedHonoursContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HopSize = cfg.FrameSize // ~46 ms period
	src := NewMockSource(cfg, nil)
	defer src.Close()
	src.Start(context.Background())

	src.CaptureFrame(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.CaptureFrame(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("CaptureFrame with cancelled ctx = %v, want context.Canceled", err)
	}
}
