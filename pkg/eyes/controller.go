package eyes

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-rave/pkg/analysis"
	"github.com/teslashibe/go-rave/pkg/motion"
	"github.com/teslashibe/go-rave/pkg/robot"
)

// Hint tells the eyes which way the body is about to move.
type Hint struct {
	Direction motion.Direction `json:"direction"`
	Duration  time.Duration    `json:"duration"`
}

// Input is one frame's worth of state for Update.
type Input struct {
	// Now is the frame's stream time.
	Now time.Duration

	Energy  float64
	Beat    analysis.BeatState
	Music   bool
	Dancing bool
	Muted   bool

	// Hint is set on frames where a new move was issued.
	Hint *Hint
}

// Stats are cumulative dispatch counters.
type Stats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
	Errors  uint64 `json:"errors"`
}

type displayOp struct {
	special bool
	name    string
}

var celebrations = [...]Special{SpecialHeart, SpecialStar, SpecialHappy}

// Controller decides the eye expression. Update is called from the audio
// loop; SetExpression and TriggerSpecial may be called from any goroutine.
type Controller struct {
	cfg     Config
	display robot.EyeDisplay
	logger  *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand

	now     time.Duration
	current Expression

	holdUntil  time.Duration // manual or mood hold
	reactUntil time.Duration
	lookUntil  time.Duration
	dizzyFrom  time.Duration
	dizzyUntil time.Duration

	highBeats   int
	lastSpecial time.Duration
	specialSeen bool
	nextBlink   time.Duration
	lastMood    time.Duration

	queue  chan displayOp
	done   chan struct{}
	cancel context.CancelFunc
	start  sync.Once

	sent    atomic.Uint64
	dropped atomic.Uint64
	errors  atomic.Uint64
}

// NewController creates an expression controller. display may be nil, in
// which case expressions are tracked but never sent.
func NewController(display robot.EyeDisplay, cfg Config, logger *slog.Logger, seed uint64) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	return &Controller{
		cfg:     cfg,
		display: display,
		logger:  logger.With("component", "eyes"),
		rng:     rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d)),
		current: Normal,
		queue:   make(chan displayOp, cfg.QueueSize),
		done:    make(chan struct{}),
	}
}

// Start launches the dispatch goroutine. Later calls are no-ops.
func (c *Controller) Start(ctx context.Context) {
	c.start.Do(func() {
		ctx, c.cancel = context.WithCancel(ctx)
		go c.dispatch(ctx)
	})
}

// Close stops dispatching and turns the eyes off.
func (c *Controller) Close(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	c.mu.Lock()
	c.current = Off
	c.mu.Unlock()

	if c.display == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DisplayTimeout)
	defer cancel()
	return c.display.SetExpression(ctx, Off.String())
}

// Current returns the expression last chosen.
func (c *Controller) Current() Expression {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Stats returns the dispatch counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Sent:    c.sent.Load(),
		Dropped: c.dropped.Load(),
		Errors:  c.errors.Load(),
	}
}

// Update advances the eyes by one frame and returns the current expression.
func (c *Controller) Update(in Input) Expression {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := in.Now
	c.now = now
	if c.nextBlink == 0 {
		c.scheduleBlink()
	}

	if in.Beat.OnsetPending && !in.Muted {
		c.onBeat(in)
	}
	if in.Hint != nil {
		c.onMove(*in.Hint)
	}

	if now < c.holdUntil {
		return c.current
	}

	switch {
	case now >= c.dizzyFrom && now < c.dizzyUntil:
		c.show(Dizzy)
	case now < c.reactUntil, now < c.lookUntil:
	case now-c.lastMood >= c.cfg.UpdateInterval:
		c.lastMood = now
		c.show(energyExpression(in.Energy, in.Dancing))
	}

	if !in.Dancing && !in.Music && now >= c.nextBlink {
		c.play(SpecialBlink)
		c.scheduleBlink()
	}
	return c.current
}

func (c *Controller) onBeat(in Input) {
	reaction := c.cfg.UnknownTempoReaction
	if p := in.Beat.BeatPeriod(); p > 0 {
		reaction = time.Duration(float64(p) * c.cfg.BeatReaction)
	}
	c.reactUntil = c.now + reaction

	if c.now >= c.holdUntil && !(c.now >= c.dizzyFrom && c.now < c.dizzyUntil) {
		switch {
		case in.Beat.OnsetStrength > 80 || in.Energy > 80:
			c.show(Wide)
		case in.Beat.OnsetStrength > 50:
			c.show(Excited)
		default:
			c.show(Medium)
		}
	}

	if in.Energy > c.cfg.HighEnergy {
		c.highBeats++
	} else {
		c.highBeats = 0
	}
	if c.highBeats >= c.cfg.SpecialBeats && (!c.specialSeen || c.now-c.lastSpecial > c.cfg.SpecialCooldown) {
		c.play(celebrations[c.rng.IntN(len(celebrations))])
		c.lastSpecial = c.now
		c.specialSeen = true
		c.highBeats = 0
	}
}

func (c *Controller) onMove(h Hint) {
	if h.Direction == motion.Spin && h.Duration > c.cfg.DizzySpin {
		c.dizzyFrom = c.now + h.Duration
		c.dizzyUntil = c.dizzyFrom + c.cfg.DizzyHold
	}
	if c.now < c.reactUntil || c.now < c.holdUntil {
		return
	}
	c.lookUntil = c.now + h.Duration
	c.show(lookFor(h.Direction))
}

func lookFor(d motion.Direction) Expression {
	switch d {
	case motion.Forward:
		return LookUp
	case motion.Backward:
		return LookDown
	case motion.Left:
		return LookLeft
	case motion.Right:
		return LookRight
	case motion.Spin:
		return Excited
	default:
		return Normal
	}
}

func energyExpression(energy float64, dancing bool) Expression {
	if dancing {
		switch {
		case energy > 80:
			return Excited
		case energy > 50:
			return Happy
		default:
			return Normal
		}
	}
	switch {
	case energy < 10:
		return Sleepy
	case energy < 30:
		return Normal
	default:
		return Happy
	}
}

// SetExpression shows an operator-chosen expression for ManualHold.
func (c *Controller) SetExpression(name string) error {
	e, err := ParseExpression(name)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holdUntil = c.now + c.cfg.ManualHold
	c.show(e)
	return nil
}

// TriggerSpecial plays a special animation and holds the automatic
// expressions off for ManualHold.
func (c *Controller) TriggerSpecial(name string) error {
	s, err := ParseSpecial(name)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holdUntil = c.now + c.cfg.ManualHold
	c.play(s)
	return nil
}

// DanceStarted shows excited eyes for MoodHold.
func (c *Controller) DanceStarted() { c.mood(Excited) }

// MusicStopped shows sleepy eyes for MoodHold.
func (c *Controller) MusicStopped() { c.mood(Sleepy) }

func (c *Controller) mood(e Expression) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holdUntil = max(c.holdUntil, c.now+c.cfg.MoodHold)
	c.reactUntil, c.lookUntil = 0, 0
	c.show(e)
}

func (c *Controller) scheduleBlink() {
	span := int64(c.cfg.BlinkMax - c.cfg.BlinkMin)
	jitter := time.Duration(0)
	if span > 0 {
		jitter = time.Duration(c.rng.Int64N(span))
	}
	c.nextBlink = c.now + c.cfg.BlinkMin + jitter
}

// show records e and sends it when it changed. Caller holds mu.
func (c *Controller) show(e Expression) {
	if e == c.current {
		return
	}
	c.current = e
	c.enqueue(displayOp{name: e.String()})
}

// play sends a special animation. Caller holds mu.
func (c *Controller) play(s Special) {
	c.enqueue(displayOp{special: true, name: s.String()})
}

func (c *Controller) enqueue(op displayOp) {
	if c.display == nil {
		return
	}
	select {
	case c.queue <- op:
	default:
		c.dropped.Add(1)
	}
}

func (c *Controller) dispatch(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-c.queue:
			c.send(ctx, op)
		}
	}
}

func (c *Controller) send(ctx context.Context, op displayOp) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DisplayTimeout)
	defer cancel()

	var err error
	if op.special {
		err = c.display.PlaySpecial(ctx, op.name)
	} else {
		err = c.display.SetExpression(ctx, op.name)
	}
	if err != nil {
		c.errors.Add(1)
		c.logger.Debug("eye display write failed", "op", op.name, "special", op.special, "error", err)
		return
	}
	c.sent.Add(1)
}
