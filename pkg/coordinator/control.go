package coordinator

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-rave/pkg/motion"
	"github.com/teslashibe/go-rave/pkg/protocol"
	"github.com/teslashibe/go-rave/pkg/status"
)

var (
	// ErrUnsupportedDirection is returned by Manual for directions an
	// operator cannot request directly.
	ErrUnsupportedDirection = errors.New("coordinator: unsupported manual direction")

	// ErrUnknownAction is returned by Apply for an unrecognized command.
	ErrUnknownAction = errors.New("coordinator: unknown action")

	// ErrMissingValue is returned by Apply when a command lacks its
	// argument.
	ErrMissingValue = errors.New("coordinator: missing command value")
)

// ManualSource tags commands issued through Manual.
const ManualSource = "manual"

// SetSensitivity sets the analysis sensitivity 0..100.
func (c *Coordinator) SetSensitivity(v int) error {
	if err := c.status.SetSensitivity(v); err != nil {
		return err
	}
	c.logger.Info("sensitivity changed", "value", v)
	return nil
}

// SetGain sets the input gain 0..100; 0 mutes.
func (c *Coordinator) SetGain(v int) error {
	if err := c.status.SetGain(v); err != nil {
		return err
	}
	c.logger.Info("gain changed", "value", v)
	return nil
}

// ToggleAutonomous flips autonomous dancing and returns the new mode.
// Turning it off stops the wheels; the loop idles the engine on its next
// frame.
func (c *Coordinator) ToggleAutonomous() bool {
	c.ctl.Lock()
	on := c.status.ToggleAutonomous()
	if !on {
		c.manualGen++
		c.motion.StopNow()
	}
	c.ctl.Unlock()

	c.logger.Info("autonomous mode changed", "on", on)
	return on
}

// Manual drives the robot in direction for ManualMoveDuration, or stops it.
// Any manual command turns autonomous mode off. A manual move replaces a
// queued autonomous move and runs once the in-flight move finishes; only
// stop interrupts the wheels.
func (c *Coordinator) Manual(direction string) error {
	dir, err := motion.ParseDirection(direction)
	if err != nil {
		return err
	}
	switch dir {
	case motion.Forward, motion.Backward, motion.Left, motion.Right, motion.Stop:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedDirection, dir)
	}

	c.ctl.Lock()
	defer c.ctl.Unlock()

	c.status.SetAutonomous(false)
	c.manualGen++
	if dir == motion.Stop {
		c.motion.StopNow()
		c.logger.Info("manual stop")
		return nil
	}

	cmd := motion.NewCommand(dir, c.cfg.ManualMoveDuration, motion.Manual, ManualSource)
	if err := c.motion.Enqueue(cmd); err != nil {
		return fmt.Errorf("manual %s: %w", dir, err)
	}
	c.logger.Info("manual move", "direction", dir, "duration", c.cfg.ManualMoveDuration)
	return nil
}

// SetEyes holds a named expression for a few seconds.
func (c *Coordinator) SetEyes(name string) error {
	return c.eyes.SetExpression(name)
}

// TriggerSpecial plays a named eye animation.
func (c *Coordinator) TriggerSpecial(name string) error {
	return c.eyes.TriggerSpecial(name)
}

// ClearMotionFault re-arms the motion controller after a driver fault.
func (c *Coordinator) ClearMotionFault() {
	c.motion.ClearFault()
}

// Status returns a copy of the current status.
func (c *Coordinator) Status() status.Snapshot {
	return c.status.Snapshot()
}

// MotionFault is the motion controller's fault handler. It runs on the
// motion worker, so it only records the fault; the next frame publishes
// the degraded state.
func (c *Coordinator) MotionFault(err error) {
	ev := Event{Kind: EventMotionFault, Reason: err.Error()}
	var fe *motion.FaultError
	if errors.As(err, &fe) {
		ev.Pattern = fe.Command.Label
	}
	c.record(ev)
}

// Apply runs an operator command received over the websocket or MQTT.
func (c *Coordinator) Apply(cmd protocol.CommandData) error {
	switch cmd.Action {
	case protocol.ActionToggleAuto:
		c.ToggleAutonomous()
		return nil
	case protocol.ActionResetFault:
		c.ClearMotionFault()
		return nil
	case protocol.ActionForward, protocol.ActionBackward, protocol.ActionLeft,
		protocol.ActionRight, protocol.ActionStop:
		return c.Manual(cmd.Action)
	case protocol.ActionSensitivity, protocol.ActionGain:
		if cmd.Value == nil {
			return fmt.Errorf("%w: %s", ErrMissingValue, cmd.Action)
		}
		if cmd.Action == protocol.ActionGain {
			return c.SetGain(*cmd.Value)
		}
		return c.SetSensitivity(*cmd.Value)
	case protocol.ActionEyes:
		return c.SetEyes(cmd.Name)
	case protocol.ActionSpecial:
		return c.TriggerSpecial(cmd.Name)
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
}
