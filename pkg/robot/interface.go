// Package robot defines the hardware capabilities the dance pipeline drives
// and ships implementations for them.
//
// The interfaces are deliberately small. Consumers depend only on the
// capability they use: the motion worker on MotorDriver, the expression
// dispatcher on EyeDisplay.
package robot

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMotorFault is reported by drivers that detect a hardware fault.
var ErrMotorFault = errors.New("robot: motor fault")

// Rotation is the spin direction of one wheel.
type Rotation int8

const (
	Brake   Rotation = 0
	Forward Rotation = 1
	Reverse Rotation = -1
)

// String returns the wire name of the rotation.
func (r Rotation) String() string {
	switch r {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return "brake"
	}
}

// MarshalText encodes the rotation by name.
func (r Rotation) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a rotation name.
func (r *Rotation) UnmarshalText(b []byte) error {
	switch string(b) {
	case "forward":
		*r = Forward
	case "reverse":
		*r = Reverse
	case "brake", "":
		*r = Brake
	default:
		return fmt.Errorf("robot: unknown rotation %q", b)
	}
	return nil
}

// WheelAction is what one wheel should do: a rotation at a duty cycle.
type WheelAction struct {
	Rotation Rotation `json:"dir"`
	Power    float64  `json:"power"` // duty cycle 0..100
}

// Clamp limits Power to 0..100 and zeroes it when braking.
func (w WheelAction) Clamp() WheelAction {
	if w.Rotation == Brake {
		return WheelAction{}
	}
	w.Power = max(0, min(100, w.Power))
	return w
}

// Idle reports whether the wheel does not turn.
func (w WheelAction) Idle() bool {
	return w.Rotation == Brake || w.Power <= 0
}

// MotorDriver drives the two wheels. Implementations are called from a
// single worker goroutine and may block for network or bus I/O.
type MotorDriver interface {
	// Drive applies left and right actions. duration is a hint; the
	// caller issues Stop when the move ends.
	Drive(ctx context.Context, left, right WheelAction, duration time.Duration) error

	// Stop brakes both wheels.
	Stop(ctx context.Context) error
}

// EyeDisplay renders eye expressions. Calls are fire-and-forget from the
// pipeline's point of view.
type EyeDisplay interface {
	SetExpression(ctx context.Context, name string) error
	PlaySpecial(ctx context.Context, name string) error
}

// Body is a robot with both capabilities.
type Body interface {
	MotorDriver
	EyeDisplay
}
