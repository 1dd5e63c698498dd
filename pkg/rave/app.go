// Package rave wires the dance pipeline into a runnable application:
// audio capture, analysis, choreography, actuators, web control surface,
// MQTT telemetry and the session journal.
package rave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-rave/internal/config"
	"github.com/teslashibe/go-rave/internal/httpc"
	"github.com/teslashibe/go-rave/pkg/analysis"
	"github.com/teslashibe/go-rave/pkg/audioio"
	"github.com/teslashibe/go-rave/pkg/coordinator"
	"github.com/teslashibe/go-rave/pkg/dance"
	"github.com/teslashibe/go-rave/pkg/eyes"
	"github.com/teslashibe/go-rave/pkg/journal"
	"github.com/teslashibe/go-rave/pkg/motion"
	"github.com/teslashibe/go-rave/pkg/protocol"
	"github.com/teslashibe/go-rave/pkg/robot"
	"github.com/teslashibe/go-rave/pkg/status"
	"github.com/teslashibe/go-rave/pkg/telemetry"
	"github.com/teslashibe/go-rave/pkg/web"
)

// shutdownTimeout bounds turning the eyes off on exit.
const shutdownTimeout = 2 * time.Second

// Options are the knobs the command line adds on top of the config file.
type Options struct {
	// Seed drives pattern and expression choice. Zero picks one from the
	// clock.
	Seed uint64

	// Source replaces the source built from the audio config.
	Source audioio.Source
}

// App owns every component of a running robot.
type App struct {
	cfg    config.Config
	opts   Options
	logger *slog.Logger

	source  audioio.Source
	motion  *motion.Controller
	eyes    *eyes.Controller
	coord   *coordinator.Coordinator
	server  *web.Server
	journal *journal.Journal
	bridge  *telemetry.Bridge
}

// New validates cfg.
func New(cfg config.Config, opts Options, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Seed == 0 {
		opts.Seed = uint64(time.Now().UnixNano())
	}
	return &App{cfg: cfg, opts: opts, logger: logger}, nil
}

// Init builds all components. Optional ones (journal, telemetry) that
// fail to come up are logged and left out.
// Call this after New() and before Run().
func (a *App) Init() error {
	motorDriver, eyeDisplay := a.actuators()

	source := a.opts.Source
	if source == nil {
		var opts []audioio.MockSourceOption
		if a.cfg.Audio.Backend == audioio.BackendMock {
			opts = append(opts, audioio.WithGenerator(audioio.DemoGenerator(a.cfg.Audio)))
		}
		var err error
		if source, err = audioio.NewSource(a.cfg.Audio, a.logger, opts...); err != nil {
			return fmt.Errorf("audio source: %w", err)
		}
	}
	a.source = source

	analyzer, err := analysis.NewAnalyzer(a.cfg.Analysis)
	if err != nil {
		return fmt.Errorf("analyzer: %w", err)
	}
	engine := dance.NewEngine(a.cfg.Dance, dance.DefaultCatalog(), a.opts.Seed)
	a.eyes = eyes.NewController(eyeDisplay, a.cfg.Eyes, a.logger, a.opts.Seed)

	var sinks coordinator.Sinks
	var sessions web.SessionStore
	if a.cfg.Journal.Path != "" {
		j, err := journal.Open(a.cfg.Journal, a.logger)
		if err != nil {
			a.logger.Warn("journal disabled", "error", err)
		} else {
			a.journal = j
			sinks = append(sinks, j)
			sessions = j
		}
	}

	var coord *coordinator.Coordinator
	// The fault handler is only called from the motion worker, which
	// Run starts after coord is set.
	a.motion = motion.NewController(motorDriver, a.cfg.Motion, a.logger,
		motion.WithFaultHandler(func(err error) { coord.MotionFault(err) }))

	if client, err := telemetry.Dial(a.cfg.Telemetry, a.logger); err == nil {
		// The bridge needs the coordinator as its controller; bind it below.
		a.bridge = telemetry.NewBridge(client, &lateController{app: a}, a.cfg.Telemetry, a.logger)
		sinks = append(sinks, a.bridge)
	} else if !errors.Is(err, telemetry.ErrDisabled) {
		a.logger.Warn("telemetry disabled", "error", err)
	}

	var events coordinator.EventSink
	if len(sinks) > 0 {
		events = sinks
	}
	coord, err = coordinator.New(coordinator.Deps{
		Source:   a.source,
		Analyzer: analyzer,
		Engine:   engine,
		Motion:   a.motion,
		Eyes:     a.eyes,
		Status:   status.NewStore(status.Defaults()),
		Events:   events,
		Logger:   a.logger,
	}, a.cfg.Coordinator)
	if err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}
	a.coord = coord

	a.server = web.NewServer(coord, dance.DefaultCatalog(), sessions, a.cfg.Web, a.logger)

	a.logger.Info("rave initialized",
		"dry_run", a.cfg.DryRun,
		"audio", a.source.Name(),
		"journal", a.journal != nil,
		"telemetry", a.bridge != nil,
		"seed", a.opts.Seed,
	)
	return nil
}

func (a *App) actuators() (robot.MotorDriver, robot.EyeDisplay) {
	if a.cfg.DryRun {
		return robot.NewMockMotor(), robot.NewMockEyes()
	}
	client := httpc.NewClient(a.cfg.Robot.Timeout)
	return robot.NewHTTPMotorDriver(a.cfg.Robot.MotorURL, client),
		robot.NewHTTPEyeDisplay(a.cfg.Robot.EyesURL, client)
}

// Run starts every component and blocks until ctx is cancelled or the
// audio loop or web server fails.
func (a *App) Run(ctx context.Context) error {
	if a.coord == nil {
		return errors.New("rave: Run called before Init")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.motion.Start(ctx)
	a.eyes.Start(ctx)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(name string, err error) {
		if err == nil || ctx.Err() != nil {
			return
		}
		errOnce.Do(func() {
			firstErr = fmt.Errorf("%s: %w", name, err)
			cancel()
		})
	}
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fail(name, fn(ctx))
		}()
	}

	run("audio loop", a.coord.Run)
	run("web", a.server.Run)
	if a.bridge != nil {
		run("telemetry", a.bridge.Run)
	}

	<-ctx.Done()
	wg.Wait()
	return firstErr
}

// Shutdown stops the actuators and flushes the journal.
func (a *App) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.source != nil {
		if err := a.source.Close(); err != nil {
			a.logger.Warn("close audio source", "error", err)
		}
	}
	if a.motion != nil {
		if err := a.motion.Close(); err != nil {
			a.logger.Warn("close motion", "error", err)
		}
	}
	if a.eyes != nil {
		if err := a.eyes.Close(ctx); err != nil {
			a.logger.Warn("turn eyes off", "error", err)
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn("close journal", "error", err)
		}
	}
	a.logger.Info("rave stopped")
}

// Coordinator returns the pipeline coordinator, nil before Init.
func (a *App) Coordinator() *coordinator.Coordinator { return a.coord }

// Server returns the web server, nil before Init.
func (a *App) Server() *web.Server { return a.server }

// lateController lets the telemetry bridge be built before the
// coordinator it controls.
type lateController struct{ app *App }

func (l *lateController) Status() status.Snapshot { return l.app.coord.Status() }

func (l *lateController) Apply(cmd protocol.CommandData) error { return l.app.coord.Apply(cmd) }
