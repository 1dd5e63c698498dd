// Package config loads the rave configuration: defaults, then an optional
// YAML file, then RAVE_* environment variables (a .env file is honored).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-rave/pkg/analysis"
	"github.com/teslashibe/go-rave/pkg/audioio"
	"github.com/teslashibe/go-rave/pkg/coordinator"
	"github.com/teslashibe/go-rave/pkg/dance"
	"github.com/teslashibe/go-rave/pkg/eyes"
	"github.com/teslashibe/go-rave/pkg/journal"
	"github.com/teslashibe/go-rave/pkg/motion"
	"github.com/teslashibe/go-rave/pkg/telemetry"
	"github.com/teslashibe/go-rave/pkg/web"
)

// Robot addresses the hardware daemons.
type Robot struct {
	// MotorURL is the wheel daemon. Default: http://127.0.0.1:8010
	MotorURL string `yaml:"motor_url" json:"motor_url"`

	// EyesURL is the LED daemon. Default: http://127.0.0.1:8020
	EyesURL string `yaml:"eyes_url" json:"eyes_url"`

	// Timeout bounds each daemon call. Default: 2s
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// Config is the whole application configuration.
type Config struct {
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	// DryRun drives mock actuators instead of the robot daemons.
	DryRun bool `yaml:"dry_run" json:"dry_run"`

	Audio       audioio.Config     `yaml:"audio" json:"audio"`
	Analysis    analysis.Config    `yaml:"analysis" json:"analysis"`
	Dance       dance.Config       `yaml:"dance" json:"dance"`
	Motion      motion.Config      `yaml:"motion" json:"motion"`
	Eyes        eyes.Config        `yaml:"eyes" json:"eyes"`
	Coordinator coordinator.Config `yaml:"coordinator" json:"coordinator"`
	Web         web.Config         `yaml:"web" json:"web"`
	Telemetry   telemetry.Config   `yaml:"telemetry" json:"telemetry"`
	Journal     journal.Config     `yaml:"journal" json:"journal"`
	Robot       Robot              `yaml:"robot" json:"robot"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:    "info",
		LogFormat:   "text",
		Audio:       audioio.DefaultConfig(),
		Analysis:    analysis.DefaultConfig(),
		Dance:       dance.DefaultConfig(),
		Motion:      motion.DefaultConfig(),
		Eyes:        eyes.DefaultConfig(),
		Coordinator: coordinator.DefaultConfig(),
		Web:         web.DefaultConfig(),
		Telemetry:   telemetry.DefaultConfig(),
		Journal:     journal.DefaultConfig(),
		Robot: Robot{
			MotorURL: "http://127.0.0.1:8010",
			EyesURL:  "http://127.0.0.1:8020",
			Timeout:  2 * time.Second,
		},
	}
}

// Load builds the configuration. path may be empty; a missing .env is
// fine, a missing YAML file named by path is not.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	// The coordinator paces on the audio cadence.
	cfg.Coordinator.FramePeriod = cfg.Audio.FramePeriod()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("RAVE_LOG_LEVEL", &c.LogLevel)
	str("RAVE_LOG_FORMAT", &c.LogFormat)
	boolean("RAVE_DRY_RUN", &c.DryRun)

	var backend string
	str("RAVE_AUDIO_BACKEND", &backend)
	if backend != "" {
		c.Audio.Backend = audioio.Backend(backend)
	}
	str("RAVE_AUDIO_URL", &c.Audio.RemoteURL)

	str("RAVE_WEB_ADDR", &c.Web.Addr)
	str("RAVE_MQTT_BROKER", &c.Telemetry.Broker)
	str("RAVE_MQTT_USERNAME", &c.Telemetry.Username)
	str("RAVE_MQTT_PASSWORD", &c.Telemetry.Password)
	str("RAVE_MQTT_PREFIX", &c.Telemetry.Prefix)
	str("RAVE_JOURNAL_PATH", &c.Journal.Path)

	str("RAVE_MOTOR_URL", &c.Robot.MotorURL)
	str("RAVE_EYES_URL", &c.Robot.EyesURL)
	duration("RAVE_ROBOT_TIMEOUT", &c.Robot.Timeout)

	return errors.Join(errs...)
}

// Validate checks every section.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"audio", &c.Audio},
		{"analysis", &c.Analysis},
		{"dance", &c.Dance},
		{"motion", &c.Motion},
		{"eyes", &c.Eyes},
		{"coordinator", &c.Coordinator},
		{"web", &c.Web},
		{"telemetry", &c.Telemetry},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("config: %s: %w", s.name, err)
		}
	}
	if !c.DryRun && (c.Robot.MotorURL == "" || c.Robot.EyesURL == "") {
		return errors.New("config: robot: motor_url and eyes_url are required unless dry_run")
	}
	if c.Robot.Timeout <= 0 {
		return errors.New("config: robot: timeout must be positive")
	}
	return nil
}
