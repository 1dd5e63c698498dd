// Package motion owns the wheel actuators. A Controller accepts commands
// from any goroutine and replays them on a single worker, the only writer
// to the robot.MotorDriver.
package motion

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-rave/pkg/robot"
)

// Direction is what a command asks the robot body to do.
type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
	Left     Direction = "left"
	Right    Direction = "right"
	Spin     Direction = "spin"
	Hold     Direction = "hold" // timed pause with the wheels braked
	Stop     Direction = "stop" // immediate stop, never queued
)

var directions = []Direction{Forward, Backward, Left, Right, Spin, Hold, Stop}

// ParseDirection validates an external direction name.
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range directions {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDirection, s)
}

// Moving reports whether the direction turns the wheels.
func (d Direction) Moving() bool {
	return d != Hold && d != Stop && d != ""
}

// Wheels maps the direction to per-wheel actions at power (0..100).
// Turning in place drives the wheels in opposite directions; spin is a
// clockwise turn held for longer.
func (d Direction) Wheels(power float64) (left, right robot.WheelAction) {
	fwd := robot.WheelAction{Rotation: robot.Forward, Power: power}
	rev := robot.WheelAction{Rotation: robot.Reverse, Power: power}
	switch d {
	case Forward:
		return fwd, fwd
	case Backward:
		return rev, rev
	case Left:
		return rev, fwd
	case Right, Spin:
		return fwd, rev
	default:
		return robot.WheelAction{}, robot.WheelAction{}
	}
}

// Priority orders command sources. Higher wins.
type Priority int

const (
	Autonomous Priority = iota
	Manual
)

func (p Priority) String() string {
	if p == Manual {
		return "manual"
	}
	return "autonomous"
}

// MarshalText encodes the priority by name.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Command is one timed wheel instruction.
type Command struct {
	ID        uuid.UUID
	Direction Direction
	Left      robot.WheelAction
	Right     robot.WheelAction
	Duration  time.Duration
	Priority  Priority
	Source    string // e.g. "dance", "web", "mqtt"
	Label     string // move name, for status and logs
}

// NewCommand creates a full-power command for dir.
func NewCommand(dir Direction, duration time.Duration, priority Priority, source string) Command {
	left, right := dir.Wheels(100)
	return Command{
		ID:        uuid.New(),
		Direction: dir,
		Left:      left,
		Right:     right,
		Duration:  duration,
		Priority:  priority,
		Source:    source,
		Label:     string(dir),
	}
}

// StopCommand is a manual stop request.
func StopCommand(source string) Command {
	return NewCommand(Stop, 0, Manual, source)
}

// MarshalJSON encodes the command with its duration in milliseconds.
func (c Command) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID         string            `json:"id"`
		Direction  Direction         `json:"direction"`
		Left       robot.WheelAction `json:"left"`
		Right      robot.WheelAction `json:"right"`
		DurationMS int64             `json:"duration_ms"`
		Priority   Priority          `json:"priority"`
		Source     string            `json:"source,omitempty"`
		Label      string            `json:"label,omitempty"`
	}{
		ID:         c.ID.String(),
		Direction:  c.Direction,
		Left:       c.Left,
		Right:      c.Right,
		DurationMS: c.Duration.Milliseconds(),
		Priority:   c.Priority,
		Source:     c.Source,
		Label:      c.Label,
	})
}

func (c Command) String() string {
	return fmt.Sprintf("%s %s %dms (%s)", c.Priority, c.Label, c.Duration.Milliseconds(), c.Source)
}
