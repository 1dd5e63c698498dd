// Package audioio provides the frame-level audio capture capability the
// dance pipeline runs on.
//
// Two backends exist:
//   - Mock   - synthetic frames (silence, tones, click tracks) for tests and dry runs
//   - Remote - microphone audio streamed from the robot over a websocket
//
// Every backend hands out fixed-size frames at a fixed cadence.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendMock generates synthetic frames.
	BackendMock Backend = "mock"
	// BackendRemote receives mic audio from the robot over a websocket.
	BackendRemote Backend = "remote"
)

// Config holds audio capture configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "mock"
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the analysis sample rate in Hz. Remote audio is
	// resampled to this rate.
	// Default: 44100
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// FrameSize is the number of samples in one analysis frame.
	// Default: 2048
	FrameSize int `yaml:"frame_size" json:"frame_size"`

	// HopSize is the number of new samples between consecutive frames.
	// The pipeline cadence is HopSize/SampleRate.
	// Default: 1024 (~23 ms, ~43 frames/s)
	HopSize int `yaml:"hop_size" json:"hop_size"`

	// RemoteURL is the websocket URL of the robot's mic stream.
	// Example: ws://rave-bot.local:9000/ws/mic
	RemoteURL string `yaml:"remote_url" json:"remote_url"`

	// ReconnectDelay is how long the remote source waits before redialing.
	// Default: 750ms
	ReconnectDelay time.Duration `yaml:"reconnect_delay" json:"reconnect_delay"`

	// Paced makes the mock source block for one frame period per frame,
	// like a real microphone. Tests turn it off.
	// Default: true
	Paced bool `yaml:"paced" json:"paced"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendMock,
		SampleRate:     44100,
		FrameSize:      2048,
		HopSize:        1024,
		ReconnectDelay: 750 * time.Millisecond,
		Paced:          true,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.FrameSize <= 0 || c.FrameSize&(c.FrameSize-1) != 0 {
		return fmt.Errorf("frame_size must be a positive power of two, got %d", c.FrameSize)
	}
	if c.HopSize <= 0 || c.HopSize > c.FrameSize {
		return fmt.Errorf("hop_size must be in (0, frame_size], got %d", c.HopSize)
	}
	switch c.Backend {
	case BackendMock:
	case BackendRemote:
		if c.RemoteURL == "" {
			return fmt.Errorf("remote backend requires remote_url")
		}
	default:
		return fmt.Errorf("unsupported backend: %q", c.Backend)
	}
	return nil
}

// FramePeriod returns the time between consecutive frames.
func (c *Config) FramePeriod() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(c.HopSize) / float64(c.SampleRate) * float64(time.Second))
}
