package audioio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-rave/pkg/protocol"
)

// micServer streams the given PCM chunks as mic messages to each client.
func micServer(t *testing.T, chunks [][]int16, rate int) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, c := range chunks {
			msg, _ := protocol.NewMicMessage(SamplesToBytes(c), rate)
			b, _ := msg.Bytes()
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
		// Hold the link open until the client goes away.
		conn.ReadMessage()
	}))
}

func remoteConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendRemote
	cfg.RemoteURL = "ws" + strings.TrimPrefix(url, "http")
	cfg.ReconnectDelay = 20 * time.Millisecond
	return cfg
}

func TestRemoteSource_FramesFromPCM(t *testing.T) {
	cfg := DefaultConfig()
	chunk := make([]int16, cfg.HopSize)
	for i := range chunk {
		chunk[i] = 1000
	}
	// Window needs FrameSize samples, then one frame per hop.
	chunks := [][]int16{chunk, chunk, chunk, chunk}

	srv := micServer(t, chunks, cfg.SampleRate)
	defer srv.Close()

	src := NewRemoteSource(remoteConfig(srv.URL), nil)
	defer src.Close()
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var frames []Frame
	deadline := time.Now().Add(2 * time.Second)
	for len(frames) < 3 && time.Now().Before(deadline) {
		f, err := src.CaptureFrame(context.Background())
		if err != nil {
			continue
		}
		frames = append(frames, f)
	}

	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	for i, f := range frames {
		if f.Seq != uint64(i) {
			t.Errorf("frame %d has Seq %d", i, f.Seq)
		}
		if len(f.Samples) != cfg.FrameSize {
			t.Errorf("frame %d has %d samples", i, len(f.Samples))
		}
		if f.Samples[0] != 1000 {
			t.Errorf("frame %d sample = %d, want 1000", i, f.Samples[0])
		}
	}
	if !src.Stats().Connected {
		t.Error("expected source to report connected")
	}
}

func TestRemoteSource_NoAudioTimesOut(t *testing.T) {
	srv := micServer(t, nil, 44100)
	defer srv.Close()

	src := NewRemoteSource(remoteConfig(srv.URL), nil)
	defer src.Close()
	src.Start(context.Background())

	_, err := src.CaptureFrame(context.Background())
	if !IsTimeout(err) {
		t.Errorf("CaptureFrame = %v, want ErrNoAudio", err)
	}
}

func TestRemoteSource_Redials(t *testing.T) {
	cfg := remoteConfig("http://127.0.0.1:1")
	src := NewRemoteSource(cfg, nil)
	src.Start(context.Background())

	time.Sleep(100 * time.Millisecond)
	src.Close()

	if src.Stats().Reconnects == 0 {
		t.Error("expected redial attempts against a dead endpoint")
	}
}

func TestRemoteSource_DecodeResamplesAndDownmixes(t *testing.T) {
	cfg := DefaultConfig()
	src := NewRemoteSource(cfg, nil)

	stereo := make([]int16, 2*480) // 10 ms at 48 kHz
	for i := range stereo {
		stereo[i] = 200
	}
	msg, _ := protocol.NewMicMessage(SamplesToBytes(stereo), 48000)
	mic, _ := msg.GetMicData()
	mic.Channels = 2

	out, err := src.decode(mic)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(out) != 441 {
		t.Errorf("got %d samples, want 441", len(out))
	}
	if out[10] != 200 {
		t.Errorf("sample = %d, want 200", out[10])
	}

	mic.Format = "flac"
	if _, err := src.decode(mic); err == nil {
		t.Error("expected error for unsupported format")
	}
}
