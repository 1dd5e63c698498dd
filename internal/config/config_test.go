package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-rave/pkg/audioio"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rave.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, audioio.BackendMock, cfg.Audio.Backend)
	assert.Equal(t, ":8080", cfg.Web.Addr)
	assert.Empty(t, cfg.Telemetry.Broker)
	assert.Equal(t, cfg.Audio.FramePeriod(), cfg.Coordinator.FramePeriod)
	assert.InDelta(t, 23.22, float64(cfg.Coordinator.FramePeriod)/float64(time.Millisecond), 0.01)
}

func TestLoad_YAMLOverDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, `
log_level: debug
dry_run: true
audio:
  backend: remote
  remote_url: ws://bot.local:9000/ws/mic
web:
  addr: ":9090"
telemetry:
  broker: tcp://broker:1883
  publish_interval: 250ms
robot:
  timeout: 750ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, audioio.BackendRemote, cfg.Audio.Backend)
	assert.Equal(t, 2048, cfg.Audio.FrameSize, "unset keys keep defaults")
	assert.Equal(t, ":9090", cfg.Web.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Telemetry.PublishInterval)
	assert.Equal(t, "rave", cfg.Telemetry.Prefix)
	assert.Equal(t, 750*time.Millisecond, cfg.Robot.Timeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, "web:\n  addr: \":9090\"\n")
	t.Setenv("RAVE_WEB_ADDR", ":7070")
	t.Setenv("RAVE_DRY_RUN", "true")
	t.Setenv("RAVE_MQTT_BROKER", "tcp://env:1883")
	t.Setenv("RAVE_ROBOT_TIMEOUT", "1s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Web.Addr)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "tcp://env:1883", cfg.Telemetry.Broker)
	assert.Equal(t, time.Second, cfg.Robot.Timeout)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("RAVE_JOURNAL_PATH=/tmp/from-dotenv.db\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("RAVE_JOURNAL_PATH") })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/from-dotenv.db", cfg.Journal.Path)
}

func TestLoad_Errors(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name string
		yaml string
		env  map[string]string
		want string
	}{
		{name: "bad yaml", yaml: "audio: [", want: "parse"},
		{name: "bad frame size", yaml: "audio:\n  frame_size: 1000\n", want: "audio"},
		{name: "remote without url", yaml: "audio:\n  backend: remote\n", want: "remote_url"},
		{name: "bad qos", yaml: "telemetry:\n  broker: tcp://b:1883\n  qos: 5\n", want: "telemetry"},
		{name: "bad bool", env: map[string]string{"RAVE_DRY_RUN": "maybe"}, want: "RAVE_DRY_RUN"},
		{name: "bad duration", env: map[string]string{"RAVE_ROBOT_TIMEOUT": "soon"}, want: "RAVE_ROBOT_TIMEOUT"},
		{name: "no motor url", yaml: "robot:\n  motor_url: \"\"\n", want: "motor_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeFile(t, tt.yaml)
			}
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	assert.ErrorIs(t, err, os.ErrNotExist)
}
