package motion

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-rave/pkg/robot"
)

// State is the controller's actuation state.
type State int

const (
	Idle State = iota
	Running
	Faulted
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Faulted:
		return "faulted"
	default:
		return "idle"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a copy of the controller's queue and actuation state.
type Snapshot struct {
	State   State     `json:"state"`
	Current *Command  `json:"current,omitempty"`
	Pending *Command  `json:"pending,omitempty"`
	Since   time.Time `json:"since"`
	Fault   string    `json:"fault,omitempty"`
}

// Stats are cumulative controller counters.
type Stats struct {
	Executed     uint64 `json:"executed"`
	Replaced     uint64 `json:"replaced"`
	Dropped      uint64 `json:"dropped"`
	StopRequests uint64 `json:"stop_requests"`
	Faults       uint64 `json:"faults"`
}

// Controller is a coalescing mailbox in front of one actuation worker.
//
// The mailbox holds at most one pending move and one stop flag. Enqueue
// and StopNow never block; the worker drains the stop flag first, then
// the pending move, holding each move for its duration or until StopNow.
type Controller struct {
	driver robot.MotorDriver
	cfg    Config
	logger *slog.Logger

	onFault func(error)

	mu        sync.Mutex
	pending   *Command
	stopReq   bool
	inflight  *Command
	interrupt chan struct{} // closed by StopNow to end the in-flight wait
	since     time.Time
	state     State
	fault     error
	closed    bool

	wake   chan struct{}
	done   chan struct{}
	cancel context.CancelFunc
	start  sync.Once

	executed     atomic.Uint64
	replaced     atomic.Uint64
	dropped      atomic.Uint64
	stopRequests atomic.Uint64
	faults       atomic.Uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithFaultHandler registers fn to be called once per driver fault, from
// the worker goroutine.
func WithFaultHandler(fn func(error)) Option {
	return func(c *Controller) {
		c.onFault = fn
	}
}

// NewController creates a controller for driver. Call Start to launch
// the worker; commands enqueued before that wait in the mailbox.
func NewController(driver robot.MotorDriver, cfg Config, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		driver: driver,
		cfg:    cfg,
		logger: logger.With("component", "motion"),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		since:  time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the worker. Later calls are no-ops.
func (c *Controller) Start(ctx context.Context) {
	c.start.Do(func() {
		ctx, c.cancel = context.WithCancel(ctx)
		go c.run(ctx)
		c.logger.Info("motion worker started",
			"min_move", c.cfg.MinMoveDuration,
			"driver_timeout", c.cfg.DriverTimeout,
		)
	})
}

// Enqueue places cmd in the mailbox. A stop command is StopNow. A move
// replaces a pending move of equal or lower priority and never affects
// the in-flight one. While a manual move is pending or running,
// autonomous moves are refused with ErrManualPending.
func (c *Controller) Enqueue(cmd Command) error {
	if cmd.Direction == Stop {
		c.StopNow()
		return nil
	}
	cmd = c.normalize(cmd)

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.state == Faulted:
		c.mu.Unlock()
		return ErrFaulted
	case c.pending != nil && c.pending.Priority > cmd.Priority,
		c.inflight != nil && c.inflight.Priority > cmd.Priority:
		c.mu.Unlock()
		c.dropped.Add(1)
		return ErrManualPending
	}
	if c.pending != nil {
		c.replaced.Add(1)
	}
	c.pending = &cmd
	c.mu.Unlock()

	c.signal()
	return nil
}

// StopNow clears the pending move, interrupts the in-flight one and has
// the worker stop the wheels before anything else. Idempotent.
func (c *Controller) StopNow() {
	c.mu.Lock()
	c.pending = nil
	first := !c.stopReq
	c.stopReq = true
	if c.interrupt != nil {
		close(c.interrupt)
		c.interrupt = nil
	}
	c.mu.Unlock()

	if first {
		c.stopRequests.Add(1)
	}
	c.signal()
}

// CurrentCommand returns a snapshot of the in-flight and pending commands.
func (c *Controller) CurrentCommand() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{State: c.state, Since: c.since}
	if c.inflight != nil {
		cur := *c.inflight
		s.Current = &cur
	}
	if c.pending != nil {
		p := *c.pending
		s.Pending = &p
	}
	if c.fault != nil {
		s.Fault = c.fault.Error()
	}
	return s
}

// Faulted reports whether a driver fault is latched.
func (c *Controller) Faulted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Faulted
}

// ClearFault re-arms the controller after an operator has checked the
// hardware. It does not replay anything.
func (c *Controller) ClearFault() {
	c.mu.Lock()
	was := c.fault
	if c.state == Faulted {
		c.state = Idle
		c.since = time.Now()
	}
	c.fault = nil
	c.mu.Unlock()

	if was != nil {
		c.logger.Info("motion fault cleared", "fault", was)
	}
}

// Stats returns the counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Executed:     c.executed.Load(),
		Replaced:     c.replaced.Load(),
		Dropped:      c.dropped.Load(),
		StopRequests: c.stopRequests.Load(),
		Faults:       c.faults.Load(),
	}
}

// Close stops the worker and brakes the wheels.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.pending = nil
	if c.interrupt != nil {
		close(c.interrupt)
		c.interrupt = nil
	}
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		<-c.done
		return nil
	}
	// Never started: the wheels may still be in whatever state a previous
	// owner left them.
	return c.brake(context.Background())
}

func (c *Controller) normalize(cmd Command) Command {
	if cmd.ID == uuid.Nil {
		cmd.ID = uuid.New()
	}
	if cmd.Label == "" {
		cmd.Label = string(cmd.Direction)
	}
	if cmd.Direction.Moving() && cmd.Left.Idle() && cmd.Right.Idle() {
		cmd.Left, cmd.Right = cmd.Direction.Wheels(100)
	}
	cmd.Duration = max(c.cfg.MinMoveDuration, min(c.cfg.MaxMoveDuration, cmd.Duration))
	return cmd
}

func (c *Controller) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			_ = c.brake(context.Background())
			c.logger.Info("motion worker stopped")
			return
		case <-c.wake:
			c.drain(ctx)
		}
	}
}

// drain executes mailbox contents until it is empty.
func (c *Controller) drain(ctx context.Context) {
	for ctx.Err() == nil {
		c.mu.Lock()
		if c.stopReq {
			c.stopReq = false
			c.mu.Unlock()
			if err := c.brake(ctx); err != nil {
				c.stopFailed(ctx, StopCommand("stop"), err)
				return
			}
			continue
		}
		if c.pending == nil || c.state == Faulted {
			c.mu.Unlock()
			return
		}
		cmd := *c.pending
		c.pending = nil
		interrupt := make(chan struct{})
		c.inflight = &cmd
		c.interrupt = interrupt
		c.state = Running
		c.since = time.Now()
		c.mu.Unlock()

		if err := c.apply(ctx, cmd); err != nil {
			c.fail(ctx, cmd, err)
			return
		}
		c.executed.Add(1)
		c.logger.Debug("move started", "move", cmd.Label, "duration", cmd.Duration, "priority", cmd.Priority)

		timer := time.NewTimer(cmd.Duration)
		select {
		case <-timer.C:
		case <-interrupt:
		case <-ctx.Done():
		}
		timer.Stop()

		c.mu.Lock()
		c.inflight = nil
		if c.interrupt == interrupt {
			c.interrupt = nil
		}
		more := c.pending != nil || c.stopReq
		if c.state == Running {
			c.state = Idle
			c.since = time.Now()
		}
		c.mu.Unlock()

		if !more && ctx.Err() == nil {
			if err := c.brake(ctx); err != nil {
				c.stopFailed(ctx, StopCommand(cmd.Source), err)
				return
			}
		}
	}
}

func (c *Controller) apply(ctx context.Context, cmd Command) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DriverTimeout)
	defer cancel()
	if !cmd.Direction.Moving() {
		return c.driver.Stop(ctx)
	}
	return c.driver.Drive(ctx, cmd.Left, cmd.Right, cmd.Duration)
}

func (c *Controller) brake(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DriverTimeout)
	defer cancel()
	return c.driver.Stop(ctx)
}

// fail latches the fault. The worker makes one best-effort stop and
// accepts nothing further until ClearFault.
func (c *Controller) fail(ctx context.Context, cmd Command, err error) {
	c.faults.Add(1)
	fault := &FaultError{Command: cmd, Err: err}

	stopErr := c.brake(context.WithoutCancel(ctx))

	c.mu.Lock()
	c.state = Faulted
	c.fault = fault
	c.pending = nil
	c.stopReq = false
	c.inflight = nil
	c.interrupt = nil
	c.since = time.Now()
	c.mu.Unlock()

	c.logger.Error("motor driver fault, motion disabled until cleared",
		"move", cmd.Label,
		"error", err,
		"stop_error", stopErr,
	)
	if c.onFault != nil {
		c.onFault(fault)
	}
}

// stopFailed latches a failed stop like any other driver fault. A stop
// cut short by shutdown is left to the worker's final brake.
func (c *Controller) stopFailed(ctx context.Context, cmd Command, err error) {
	if ctx.Err() != nil {
		c.logger.Warn("stop interrupted by shutdown", "error", err)
		return
	}
	c.fail(ctx, cmd, err)
}

// IsFault reports whether err came from a driver fault.
func IsFault(err error) bool {
	var fe *FaultError
	return errors.As(err, &fe) || errors.Is(err, ErrFaulted)
}
