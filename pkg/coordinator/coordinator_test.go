package coordinator

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-rave/internal/log"
	"github.com/teslashibe/go-rave/pkg/analysis"
	"github.com/teslashibe/go-rave/pkg/audioio"
	"github.com/teslashibe/go-rave/pkg/dance"
	"github.com/teslashibe/go-rave/pkg/eyes"
	"github.com/teslashibe/go-rave/pkg/motion"
	"github.com/teslashibe/go-rave/pkg/protocol"
	"github.com/teslashibe/go-rave/pkg/robot"
	"github.com/teslashibe/go-rave/pkg/status"
)

// spyMotion records what the loop asks of the motion controller.
type spyMotion struct {
	mu       sync.Mutex
	enqueued []motion.Command
	stops    int
	cleared  int
	err      error
	snap     motion.Snapshot
}

func (m *spyMotion) Enqueue(cmd motion.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, cmd)
	return nil
}

func (m *spyMotion) StopNow() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
}

func (m *spyMotion) CurrentCommand() motion.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *spyMotion) ClearFault() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared++
}

func (m *spyMotion) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

func (m *spyMotion) Commands() []motion.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]motion.Command(nil), m.enqueued...)
}

// flakyEyes wraps the real controller and can panic or fake dispatch stats.
type flakyEyes struct {
	*eyes.Controller
	panicNext bool
	stats     eyes.Stats
}

func (e *flakyEyes) Update(in eyes.Input) eyes.Expression {
	if e.panicNext {
		e.panicNext = false
		panic("display state corrupted")
	}
	return e.Controller.Update(in)
}

func (e *flakyEyes) Stats() eyes.Stats { return e.stats }

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) Kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []EventKind
	for _, ev := range l.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (l *eventLog) Last(kind EventKind) (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Kind == kind {
			return l.events[i], true
		}
	}
	return Event{}, false
}

type harness struct {
	c      *Coordinator
	motion *spyMotion
	eyes   *flakyEyes
	status *status.Store
	engine *dance.Engine
	events *eventLog

	audio audioio.Config
	click *audioio.ClickTrack
	seq   uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	an, err := analysis.NewAnalyzer(analysis.DefaultConfig())
	require.NoError(t, err)

	audioCfg := audioio.DefaultConfig()
	audioCfg.Paced = false

	h := &harness{
		motion: &spyMotion{},
		eyes:   &flakyEyes{Controller: eyes.NewController(nil, eyes.DefaultConfig(), log.Discard(), 1)},
		status: status.NewStore(status.Defaults()),
		engine: dance.NewEngine(dance.DefaultConfig(), dance.DefaultCatalog(), 7),
		events: &eventLog{},
		audio:  audioCfg,
		click:  audioio.NewClickTrack(audioCfg, 120, 0.14),
	}
	h.c, err = New(Deps{
		Analyzer: an,
		Engine:   h.engine,
		Motion:   h.motion,
		Eyes:     h.eyes,
		Status:   h.status,
		Events:   h.events,
		Logger:   log.Discard(),
	}, DefaultConfig())
	require.NoError(t, err)
	return h
}

func (h *harness) silent(n int) {
	for i := 0; i < n; i++ {
		h.c.Step(audioio.Frame{Seq: h.seq, Samples: make([]int16, h.audio.FrameSize), SampleRate: h.audio.SampleRate})
		h.seq++
	}
}

// music steps n click-track frames and returns the index of the first frame
// on which the engine was dancing, or -1.
func (h *harness) music(n int) int {
	first := -1
	for i := 0; i < n; i++ {
		samples := make([]int16, h.audio.FrameSize)
		h.click.Fill(uint64(i), samples)
		h.c.Step(audioio.Frame{Seq: h.seq, Samples: samples, SampleRate: h.audio.SampleRate})
		h.seq++
		if first < 0 && h.engine.Dancing() {
			first = i
		}
	}
	return first
}

func TestNew_MissingDependency(t *testing.T) {
	_, err := New(Deps{}, DefaultConfig())
	assert.ErrorIs(t, err, ErrMissingDependency)

	cfg := DefaultConfig()
	cfg.SilenceFrames = 0
	_, err = New(Deps{}, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStep_SilenceThenMusicDances(t *testing.T) {
	h := newHarness(t)

	h.silent(30)
	snap := h.status.Snapshot()
	assert.Equal(t, analysis.Silence, snap.AudioType)
	assert.Equal(t, 0.0, snap.Energy)
	assert.False(t, snap.Dancing)
	assert.Equal(t, dance.ReasonWaiting, snap.DanceReason)
	assert.Empty(t, h.motion.Commands())

	first := h.music(50)
	require.GreaterOrEqual(t, first, 0, "the robot starts dancing within 50 click frames")

	snap = h.status.Snapshot()
	assert.Equal(t, analysis.Music, snap.AudioType)
	assert.InDelta(t, 120, float64(snap.BPM), 3)
	assert.True(t, snap.Dancing)
	assert.NotEmpty(t, snap.Pattern)
	assert.NotEmpty(t, snap.Move)
	assert.NotEmpty(t, snap.SessionID)
	assert.Equal(t, uint64(80), snap.Frames)
	assert.True(t, snap.AudioOK)
	var level float64
	for _, v := range snap.Spectrum {
		level += v
	}
	assert.Greater(t, level, 0.0, "the display spectrum moves")

	cmds := h.motion.Commands()
	require.NotEmpty(t, cmds)
	for _, cmd := range cmds {
		assert.Equal(t, motion.Autonomous, cmd.Priority)
		assert.Equal(t, dance.Source, cmd.Source)
		assert.NotEqual(t, motion.Stop, cmd.Direction)
	}

	kinds := h.events.Kinds()
	assert.Contains(t, kinds, EventDanceStarted)
	assert.Contains(t, kinds, EventPattern)
	assert.Contains(t, kinds, EventClassification)
	started, _ := h.events.Last(EventDanceStarted)
	assert.Equal(t, snap.SessionID, started.SessionID)
}

func TestStep_QuietStopsOnceAtHysteresis(t *testing.T) {
	h := newHarness(t)
	h.silent(30)
	require.GreaterOrEqual(t, h.music(80), 0)
	require.True(t, h.engine.Dancing())

	base := h.motion.Stops()
	for i := 0; i < 60; i++ {
		h.silent(1)
		switch {
		case i < DefaultConfig().SilenceFrames-1:
			require.Equal(t, base, h.motion.Stops(), "no stop before quiet frame %d", i)
			require.True(t, h.engine.Dancing(), "still dancing at quiet frame %d", i)
		case i == DefaultConfig().SilenceFrames-1:
			require.Equal(t, base+1, h.motion.Stops(), "stop on quiet frame %d", i)
			require.Equal(t, dance.Idle, h.engine.State())
		}
	}
	assert.Equal(t, base+1, h.motion.Stops(), "exactly one stop per quiet run")

	snap := h.status.Snapshot()
	assert.False(t, snap.Dancing)
	assert.Equal(t, dance.ReasonMusicStopped, snap.DanceReason)

	stopped, ok := h.events.Last(EventDanceStopped)
	require.True(t, ok)
	assert.Equal(t, dance.ReasonMusicStopped, stopped.Reason)
}

func TestStep_SilenceKeepsManualMoves(t *testing.T) {
	h := newHarness(t)
	h.status.SetAutonomous(false)

	h.silent(40)

	assert.Zero(t, h.motion.Stops())
}

func TestStep_SyntheticFrameMarksAudioDown(t *testing.T) {
	h := newHarness(t)

	h.c.Step(audioio.SilentFrame(0, h.audio))
	snap := h.status.Snapshot()
	assert.False(t, snap.AudioOK)
	assert.True(t, snap.Degraded.Audio)

	h.silent(1)
	snap = h.status.Snapshot()
	assert.True(t, snap.AudioOK)
	assert.False(t, snap.Degraded.Any())
}

func TestStep_RecoversFromPanic(t *testing.T) {
	h := newHarness(t)
	h.eyes.panicNext = true

	assert.NotPanics(t, func() { h.silent(1) })
	assert.Equal(t, uint64(0), h.status.Snapshot().Frames, "the failed cycle publishes nothing")

	h.silent(1)
	assert.Equal(t, uint64(2), h.status.Snapshot().Frames)
}

func TestStep_PublishesDegradedActuators(t *testing.T) {
	h := newHarness(t)
	h.motion.snap = motion.Snapshot{State: motion.Faulted, Fault: "motor driver fault"}
	h.eyes.stats = eyes.Stats{Errors: 2}

	h.silent(1)
	snap := h.status.Snapshot()
	assert.True(t, snap.Degraded.Motion)
	assert.True(t, snap.Degraded.Eyes)
	assert.Equal(t, "faulted", snap.Motion)
	assert.Equal(t, "motor driver fault", snap.MotionFault)

	h.motion.mu.Lock()
	h.motion.snap = motion.Snapshot{}
	h.motion.mu.Unlock()
	h.eyes.stats = eyes.Stats{Errors: 2, Sent: 1}

	h.silent(1)
	snap = h.status.Snapshot()
	assert.False(t, snap.Degraded.Motion)
	assert.False(t, snap.Degraded.Eyes, "a successful write clears the flag")
}

func TestManual_Move(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.c.Manual("Forward"))

	assert.False(t, h.status.Snapshot().Autonomous)
	assert.Equal(t, 0, h.motion.Stops(), "a manual move does not brake")
	cmds := h.motion.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, motion.Forward, cmds[0].Direction)
	assert.Equal(t, motion.Manual, cmds[0].Priority)
	assert.Equal(t, 2*time.Second, cmds[0].Duration)
	assert.Equal(t, ManualSource, cmds[0].Source)
}

func TestManual_Rejects(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.c.Manual("sideways"), motion.ErrUnknownDirection)
	assert.ErrorIs(t, h.c.Manual("spin"), ErrUnsupportedDirection)
	assert.True(t, h.status.Snapshot().Autonomous, "rejected commands change nothing")

	h.motion.err = motion.ErrFaulted
	assert.ErrorIs(t, h.c.Manual("left"), motion.ErrFaulted)
}

func TestManual_MoveWaitsForInFlightMove(t *testing.T) {
	motor := robot.NewMockMotor()
	ctrl := motion.NewController(motor, motion.DefaultConfig(), log.Discard())
	ctrl.Start(context.Background())
	t.Cleanup(func() { _ = ctrl.Close() })

	h := newHarness(t)
	an, err := analysis.NewAnalyzer(analysis.DefaultConfig())
	require.NoError(t, err)
	h.c, err = New(Deps{
		Analyzer: an,
		Engine:   h.engine,
		Motion:   ctrl,
		Eyes:     h.eyes,
		Status:   h.status,
		Logger:   log.Discard(),
	}, DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, ctrl.Enqueue(motion.NewCommand(motion.Forward, 2*time.Second, motion.Autonomous, "dance")))
	require.Eventually(t, func() bool { return ctrl.CurrentCommand().Current != nil }, 2*time.Second, 5*time.Millisecond)
	stops := motor.Stops()

	require.NoError(t, h.c.Manual("left"))

	snap := ctrl.CurrentCommand()
	require.NotNil(t, snap.Current)
	assert.Equal(t, motion.Forward, snap.Current.Direction, "the in-flight move keeps running")
	require.NotNil(t, snap.Pending)
	assert.Equal(t, motion.Left, snap.Pending.Direction)
	assert.Equal(t, motion.Manual, snap.Pending.Priority)
	assert.Equal(t, stops, motor.Stops())
	assert.Len(t, motor.Drives(), 1)
}

func TestManual_StopPreemptsDance(t *testing.T) {
	an, err := analysis.NewAnalyzer(analysis.DefaultConfig())
	require.NoError(t, err)
	motor := robot.NewMockMotor()
	ctrl := motion.NewController(motor, motion.DefaultConfig(), log.Discard())
	ctrl.Start(context.Background())
	t.Cleanup(func() { _ = ctrl.Close() })

	h := newHarness(t)
	h.c, err = New(Deps{
		Analyzer: an,
		Engine:   h.engine,
		Motion:   ctrl,
		Eyes:     h.eyes,
		Status:   h.status,
		Logger:   log.Discard(),
	}, DefaultConfig())
	require.NoError(t, err)

	h.silent(30)
	require.GreaterOrEqual(t, h.music(80), 0)
	require.Eventually(t, func() bool { return len(motor.Drives()) >= 1 }, 2*time.Second, 5*time.Millisecond)
	stops := motor.Stops()

	require.NoError(t, h.c.Manual("stop"))
	require.Eventually(t, func() bool {
		s := ctrl.CurrentCommand()
		return motor.Stops() > stops && s.Current == nil && s.Pending == nil
	}, 2*time.Second, 5*time.Millisecond)
	drives := len(motor.Drives())

	h.music(40)
	time.Sleep(50 * time.Millisecond)

	assert.Len(t, motor.Drives(), drives, "nothing autonomous runs after a manual stop")
	snap := h.status.Snapshot()
	assert.False(t, snap.Autonomous)
	assert.False(t, snap.Dancing)
	assert.Equal(t, dance.ReasonAutoOff, snap.DanceReason)
}

func TestToggleAutonomous(t *testing.T) {
	h := newHarness(t)

	assert.False(t, h.c.ToggleAutonomous())
	assert.Equal(t, 1, h.motion.Stops())

	h.silent(1)
	assert.Equal(t, dance.ReasonAutoOff, h.status.Snapshot().DanceReason)

	assert.True(t, h.c.ToggleAutonomous())
	assert.Equal(t, 1, h.motion.Stops(), "turning on does not stop")
}

func TestControls(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.c.SetSensitivity(80))
	require.NoError(t, h.c.SetGain(0))
	var ve *status.ValidationError
	assert.ErrorAs(t, h.c.SetGain(101), &ve)
	assert.ErrorIs(t, h.c.SetSensitivity(-1), status.ErrOutOfRange)

	h.silent(1)
	snap := h.c.Status()
	assert.Equal(t, 80, snap.Sensitivity)
	assert.Equal(t, 0, snap.Gain)
	assert.True(t, snap.Muted)

	require.NoError(t, h.c.SetEyes("happy"))
	assert.ErrorIs(t, h.c.SetEyes("grumpy"), eyes.ErrUnknownExpression)
	require.NoError(t, h.c.TriggerSpecial("heart"))
	assert.ErrorIs(t, h.c.TriggerSpecial("confetti"), eyes.ErrUnknownSpecial)

	h.c.ClearMotionFault()
	assert.Equal(t, 1, h.motion.cleared)
}

func TestMotionFault_Recorded(t *testing.T) {
	h := newHarness(t)
	cmd := motion.NewCommand(motion.Spin, time.Second, motion.Autonomous, dance.Source)
	cmd.Label = "Spin 360"

	h.c.MotionFault(&motion.FaultError{Command: cmd, Err: robot.ErrMotorFault})

	ev, ok := h.events.Last(EventMotionFault)
	require.True(t, ok)
	assert.Equal(t, "Spin 360", ev.Pattern)
	assert.Contains(t, ev.Reason, "Spin 360")
}

func TestRun(t *testing.T) {
	h := newHarness(t)
	src := audioio.NewMockSource(h.audio, log.Discard(),
		audioio.WithGenerator(h.click),
		audioio.WithCaptureError(func(seq uint64) error {
			if seq == 3 {
				return errors.New("usb hiccup")
			}
			return nil
		}),
	)
	h.c.src = src

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.c.Run(ctx) }()

	require.Eventually(t, func() bool { return h.status.Snapshot().Frames >= 20 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.GreaterOrEqual(t, h.motion.Stops(), 1, "the wheels stop on the way out")
	assert.False(t, h.engine.Dancing())
}

func TestRun_SourceClosed(t *testing.T) {
	h := newHarness(t)
	h.c.src = audioio.NewMockSource(h.audio, log.Discard(),
		audioio.WithCaptureError(func(seq uint64) error {
			if seq == 5 {
				return io.EOF
			}
			return nil
		}),
	)

	err := h.c.Run(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, uint64(5), h.status.Snapshot().Frames)
}

func TestRun_NoSource(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.c.Run(context.Background()), ErrNoSource)
}

func TestApply(t *testing.T) {
	h := newHarness(t)
	ptr := func(v int) *int { return &v }

	require.NoError(t, h.c.Apply(protocol.CommandData{Action: protocol.ActionSensitivity, Value: ptr(70)}))
	require.NoError(t, h.c.Apply(protocol.CommandData{Action: protocol.ActionGain, Value: ptr(30)}))
	require.NoError(t, h.c.Apply(protocol.CommandData{Action: protocol.ActionEyes, Name: "star"}))
	require.NoError(t, h.c.Apply(protocol.CommandData{Action: protocol.ActionSpecial, Name: "wink"}))
	require.NoError(t, h.c.Apply(protocol.CommandData{Action: protocol.ActionResetFault}))
	require.NoError(t, h.c.Apply(protocol.CommandData{Action: protocol.ActionLeft}))

	ctl := h.status.Controls()
	assert.Equal(t, 70, ctl.Sensitivity)
	assert.Equal(t, 30, ctl.Gain)
	assert.False(t, ctl.Autonomous, "a manual move turns autonomous off")
	assert.Equal(t, 1, h.motion.cleared)
	require.Len(t, h.motion.Commands(), 1)
	assert.Equal(t, motion.Left, h.motion.Commands()[0].Direction)

	require.NoError(t, h.c.Apply(protocol.CommandData{Action: protocol.ActionToggleAuto}))
	assert.True(t, h.status.Controls().Autonomous)

	assert.ErrorIs(t, h.c.Apply(protocol.CommandData{Action: protocol.ActionGain}), ErrMissingValue)
	assert.ErrorIs(t, h.c.Apply(protocol.CommandData{Action: protocol.ActionGain, Value: ptr(500)}), status.ErrOutOfRange)
	assert.ErrorIs(t, h.c.Apply(protocol.CommandData{Action: "moonwalk"}), ErrUnknownAction)
}

func TestSinks_FanOut(t *testing.T) {
	a, b := &eventLog{}, &eventLog{}

	Sinks{a, b}.Record(Event{Kind: EventPattern, Pattern: "Shuffle"})

	assert.Equal(t, []EventKind{EventPattern}, a.Kinds())
	assert.Equal(t, []EventKind{EventPattern}, b.Kinds())
}
