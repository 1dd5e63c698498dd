// Package coordinator runs the audio loop: one goroutine captures a frame,
// analyses it, advances the dance engine, hands the resulting command to
// the motion mailbox, updates the eyes and publishes one status write per
// frame. It never waits on actuator I/O.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-rave/pkg/analysis"
	"github.com/teslashibe/go-rave/pkg/audioio"
	"github.com/teslashibe/go-rave/pkg/dance"
	"github.com/teslashibe/go-rave/pkg/eyes"
	"github.com/teslashibe/go-rave/pkg/motion"
	"github.com/teslashibe/go-rave/pkg/status"
)

// Motion is the part of motion.Controller the loop drives.
type Motion interface {
	Enqueue(cmd motion.Command) error
	StopNow()
	CurrentCommand() motion.Snapshot
	ClearFault()
}

// Eyes is the part of eyes.Controller the loop drives.
type Eyes interface {
	Update(in eyes.Input) eyes.Expression
	SetExpression(name string) error
	TriggerSpecial(name string) error
	DanceStarted()
	MusicStopped()
	Stats() eyes.Stats
}

// Deps are the collaborators of a Coordinator. Source and Events are
// optional; Step works without a source.
type Deps struct {
	Source   audioio.Source
	Analyzer *analysis.Analyzer
	Engine   *dance.Engine
	Motion   Motion
	Eyes     Eyes
	Status   *status.Store
	Events   EventSink
	Logger   *slog.Logger
}

// Coordinator owns the analyzer and the dance engine. Only the loop
// goroutine touches them; the control methods go through the status store
// and the motion mailbox.
type Coordinator struct {
	cfg    Config
	src    audioio.Source
	an     *analysis.Analyzer
	engine *dance.Engine
	motion Motion
	eyes   Eyes
	status *status.Store
	events EventSink
	logger *slog.Logger

	// Loop state, owned by the loop goroutine.
	frames     uint64
	quiet      int
	spectrum   [analysis.SpectrumBins]float64
	session    string
	lastType   analysis.AudioType
	eyeErrors  uint64
	eyeSent    uint64
	eyesFailed bool
	lastWarn   time.Time
	suppressed int

	// ctl orders autonomous dispatch against manual takeovers. manualGen
	// changes whenever an operator takes the wheels.
	ctl       sync.Mutex
	manualGen uint64
}

// New validates cfg and checks deps.
func New(deps Deps, cfg Config) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Analyzer == nil:
		return nil, fmt.Errorf("%w: analyzer", ErrMissingDependency)
	case deps.Engine == nil:
		return nil, fmt.Errorf("%w: dance engine", ErrMissingDependency)
	case deps.Motion == nil:
		return nil, fmt.Errorf("%w: motion", ErrMissingDependency)
	case deps.Eyes == nil:
		return nil, fmt.Errorf("%w: eyes", ErrMissingDependency)
	case deps.Status == nil:
		return nil, fmt.Errorf("%w: status", ErrMissingDependency)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:      cfg,
		src:      deps.Source,
		an:       deps.Analyzer,
		engine:   deps.Engine,
		motion:   deps.Motion,
		eyes:     deps.Eyes,
		status:   deps.Status,
		events:   deps.Events,
		logger:   logger.With("component", "coordinator"),
		lastType: analysis.Silence,
	}, nil
}

// Run starts the source and processes frames until ctx is done. Capture
// failures become silent frames; only a closed source ends the loop early.
func (c *Coordinator) Run(ctx context.Context) error {
	if c.src == nil {
		return ErrNoSource
	}
	if err := c.src.Start(ctx); err != nil {
		return fmt.Errorf("start audio source: %w", err)
	}

	c.logger.Info("audio loop started",
		"source", c.src.Name(),
		"frame_period", c.cfg.FramePeriod,
		"silence_frames", c.cfg.SilenceFrames,
	)
	defer c.shutdown()

	var seq uint64
	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := c.src.CaptureFrame(ctx)
		switch {
		case err == nil:
			seq = frame.Seq + 1
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, io.EOF):
			return fmt.Errorf("audio source closed: %w", err)
		default:
			c.warn("audio capture failed, substituting silence", err)
			frame = audioio.SilentFrame(seq, c.src.Config())
			seq++
			// ErrNoAudio already waited one period inside the source.
			if !errors.Is(err, audioio.ErrNoAudio) && !c.sleep(ctx, c.cfg.FramePeriod) {
				return nil
			}
		}

		c.Step(frame)
	}
}

func (c *Coordinator) shutdown() {
	c.engine.ForceIdle(dance.ReasonWaiting)
	c.motion.StopNow()
	c.logger.Info("audio loop stopped", "frames", c.frames)
}

func (c *Coordinator) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Coordinator) warn(msg string, err error) {
	if time.Since(c.lastWarn) <= c.cfg.WarnInterval {
		c.suppressed++
		return
	}
	c.logger.Warn(msg, "error", err, "suppressed", c.suppressed)
	c.lastWarn = time.Now()
	c.suppressed = 0
}

// Step runs one cycle on frame. A panic inside the cycle is logged and the
// frame is skipped.
func (c *Coordinator) Step(frame audioio.Frame) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("audio cycle panicked, frame skipped",
				"panic", r,
				"frame", c.frames,
				"stack", string(debug.Stack()),
			)
		}
	}()

	ctl := c.status.Controls()
	c.ctl.Lock()
	gen := c.manualGen
	c.ctl.Unlock()

	now := time.Duration(c.frames) * c.cfg.FramePeriod
	c.frames++

	res := c.an.Process(frame.Samples, ctl.Analysis(), now)
	fv := res.Features
	cls := res.Classification

	c.silenceGate(fv.Energy, ctl.Autonomous)

	out := c.engine.Tick(dance.Inputs{
		Now:            now,
		Classification: cls,
		Beat:           res.Beat,
		Energy:         fv.Energy,
		Band:           fv.DominantBand,
		Autonomous:     ctl.Autonomous,
		Quiet:          fv.Energy < c.cfg.LowEnergyThreshold,
		EnergyFloor:    c.cfg.LowEnergyThreshold,
	})
	c.handleTransitions(out, now, res)

	if out.Command != nil {
		c.dispatch(*out.Command, gen)
	}

	expr := c.eyes.Update(eyes.Input{
		Now:     now,
		Energy:  fv.Energy,
		Beat:    res.Beat,
		Music:   cls.Type == analysis.Music,
		Dancing: c.engine.Dancing(),
		Muted:   res.Muted,
		Hint:    out.Hint,
	})

	if cls.Type != c.lastType {
		c.record(Event{Kind: EventClassification, Stream: now, AudioType: cls.Type,
			Confidence: cls.Confidence, BPM: res.Beat.BPM, Energy: fv.Energy})
		c.lastType = cls.Type
	}

	c.spectrum = analysis.SmoothSpectrum(c.spectrum, displaySpectrum(fv.Spectrum),
		c.cfg.SpectrumAttack, c.cfg.SpectrumRelease)

	c.publish(frame, res, expr)
}

// silenceGate counts consecutive quiet frames and stops the robot exactly
// once per quiet run, when the count reaches SilenceFrames.
func (c *Coordinator) silenceGate(energy float64, autonomous bool) {
	if energy >= c.cfg.LowEnergyThreshold {
		c.quiet = 0
		return
	}
	c.quiet++
	if c.quiet != c.cfg.SilenceFrames {
		return
	}
	// A quiet room must not cancel an operator's manual move.
	if !autonomous && !c.engine.Dancing() {
		return
	}

	wasDancing := c.engine.ForceIdle(dance.ReasonMusicStopped)
	c.motion.StopNow()
	c.logger.Info("sustained silence, stopping", "frames", c.quiet, "was_dancing", wasDancing)
	if wasDancing {
		c.eyes.MusicStopped()
		c.record(Event{Kind: EventDanceStopped, SessionID: c.session,
			Stream: time.Duration(c.frames-1) * c.cfg.FramePeriod, Reason: dance.ReasonMusicStopped})
	}
}

func (c *Coordinator) handleTransitions(out dance.Output, now time.Duration, res analysis.Result) {
	for _, t := range out.Transitions {
		switch {
		case t.From == dance.Idle && t.To == dance.Selecting:
			c.session = uuid.NewString()
			c.eyes.DanceStarted()
			c.logger.Info("dance started",
				"session", c.session,
				"bpm", res.Beat.BPM,
				"energy", res.Features.Energy,
			)
			c.record(Event{Kind: EventDanceStarted, SessionID: c.session, Stream: now,
				AudioType: res.Classification.Type, Confidence: res.Classification.Confidence,
				BPM: res.Beat.BPM, Energy: res.Features.Energy})

		case t.From == dance.Selecting && t.To == dance.Dancing:
			snap := c.engine.Snapshot()
			c.logger.Debug("pattern selected", "pattern", snap.Pattern, "tempo", snap.Tempo)
			c.record(Event{Kind: EventPattern, SessionID: c.session, Stream: now,
				BPM: res.Beat.BPM, Energy: res.Features.Energy, Pattern: snap.Pattern})

		case t.To == dance.Idle:
			if out.Reason == dance.ReasonMusicStopped {
				c.motion.StopNow()
				c.eyes.MusicStopped()
			}
			c.logger.Info("dance stopped", "session", c.session, "reason", out.Reason)
			c.record(Event{Kind: EventDanceStopped, SessionID: c.session, Stream: now,
				AudioType: res.Classification.Type, Reason: out.Reason})
		}
	}
}

// dispatch hands an autonomous command to the mailbox unless an operator
// took over since the frame started.
func (c *Coordinator) dispatch(cmd motion.Command, gen uint64) {
	c.ctl.Lock()
	defer c.ctl.Unlock()
	if gen != c.manualGen {
		return
	}

	err := c.motion.Enqueue(cmd)
	switch {
	case err == nil:
	case errors.Is(err, motion.ErrManualPending), errors.Is(err, motion.ErrFaulted):
		c.logger.Debug("autonomous move refused", "move", cmd.Label, "error", err)
	default:
		c.warn("enqueue motion command failed", err)
	}
}

func (c *Coordinator) publish(frame audioio.Frame, res analysis.Result, expr eyes.Expression) {
	mot := c.motion.CurrentCommand()
	dn := c.engine.Snapshot()
	eyesDegraded := c.eyesDegraded()

	fv := res.Features
	cls := res.Classification
	bpm := status.BPM(0)
	if res.Beat.Known {
		bpm = status.BPM(res.Beat.BPM)
	}

	c.status.Update(func(s *status.Snapshot) {
		s.AudioOK = !frame.Synthetic
		s.Muted = res.Muted
		s.Gated = fv.Gated
		s.NoiseGate = res.NoiseGate

		s.Energy = fv.Energy
		s.AudioType = cls.Type
		s.AudioConfidence = cls.Confidence
		s.MusicGate = cls.Music.IsMusic
		s.BPM = bpm
		s.BPMConfidence = res.Beat.Confidence
		s.Beat = res.Beat.OnsetPending
		s.BeatStrength = res.Beat.OnsetStrength
		s.Bands = fv.Bands
		s.DominantBand = fv.DominantBand
		s.Spectrum = c.spectrum

		s.Dancing = dn.State == dance.Dancing
		s.DanceState = dn.State.String()
		s.Pattern = dn.Pattern
		s.Move = dn.Move
		s.Style = dn.Category
		s.PatternsCompleted = dn.PatternsCompleted
		s.DanceReason = dn.Reason

		s.Eyes = expr.String()
		s.Motion = mot.State.String()
		s.MotionFault = mot.Fault
		s.Degraded = status.Degraded{
			Motion: mot.State == motion.Faulted,
			Eyes:   eyesDegraded,
			Audio:  frame.Synthetic,
		}

		s.Frames = c.frames
		s.SessionID = c.session
		s.UpdatedAt = time.Now()
	})
}

// eyesDegraded is set when display writes fail and cleared by the next
// successful write.
func (c *Coordinator) eyesDegraded() bool {
	st := c.eyes.Stats()
	switch {
	case st.Errors > c.eyeErrors:
		c.eyesFailed = true
	case st.Sent > c.eyeSent:
		c.eyesFailed = false
	}
	c.eyeErrors, c.eyeSent = st.Errors, st.Sent
	return c.eyesFailed
}

func (c *Coordinator) record(ev Event) {
	if c.events == nil {
		return
	}
	ev.At = time.Now()
	c.events.Record(ev)
}

// displaySpectrum compresses summed bin magnitudes to a 0..100 meter.
func displaySpectrum(raw [analysis.SpectrumBins]float64) [analysis.SpectrumBins]float64 {
	var out [analysis.SpectrumBins]float64
	for i, m := range raw {
		if m > 0 {
			out[i] = math.Min(100, 100*math.Pow(m, 0.6))
		}
	}
	return out
}
