// Rave - listens to music and dances to it
//
// Captures audio, follows the beat and drives the wheels and eye LEDs.
// A web control surface and optional MQTT telemetry run alongside.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/teslashibe/go-rave/internal/config"
	"github.com/teslashibe/go-rave/internal/log"
	"github.com/teslashibe/go-rave/pkg/audioio"
	"github.com/teslashibe/go-rave/pkg/rave"
)

var version = "0.1.0"

// CLI defines the command-line interface. Flags override the config file.
type CLI struct {
	Version   kong.VersionFlag `short:"v" help:"Show version information"`
	Config    string           `short:"c" type:"path" env:"RAVE_CONFIG" help:"Path to YAML config file (optional)"`
	LogLevel  string           `name:"log-level" help:"Log level (debug, info, warn, error)"`
	LogFormat string           `name:"log-format" help:"Log format (text, json)"`
	Source    string           `help:"Audio source: mock, remote, or a ws:// mic URL"`
	DryRun    bool             `name:"dry-run" help:"Drive mock actuators instead of the robot daemons"`
	Port      int              `help:"Control surface port (overrides web.addr)"`
	Seed      uint64           `help:"Seed for pattern and expression choice (0 = random)"`
}

func main() {
	cli := &CLI{}
	kong.Parse(cli,
		kong.Name("rave"),
		kong.Description("Music-reactive dancing robot"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}
	if err := cli.apply(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.LogLevel, cfg.LogFormat)
	logger := log.L()

	app, err := rave.New(cfg, rave.Options{Seed: cli.Seed}, logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := app.Init(); err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		logger.Error("runtime error", "error", err)
		app.Shutdown()
		os.Exit(1)
	}
}

func (c *CLI) apply(cfg *config.Config) error {
	if c.LogLevel != "" {
		cfg.LogLevel = c.LogLevel
	}
	if c.LogFormat != "" {
		cfg.LogFormat = c.LogFormat
	}
	if c.DryRun {
		cfg.DryRun = true
	}
	if c.Port != 0 {
		cfg.Web.Addr = fmt.Sprintf(":%d", c.Port)
	}
	switch {
	case c.Source == "":
	case strings.HasPrefix(c.Source, "ws://"), strings.HasPrefix(c.Source, "wss://"):
		cfg.Audio.Backend = audioio.BackendRemote
		cfg.Audio.RemoteURL = c.Source
	default:
		cfg.Audio.Backend = audioio.Backend(c.Source)
	}
	return cfg.Validate()
}
