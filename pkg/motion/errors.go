package motion

import (
	"errors"
	"fmt"
)

var (
	// ErrFaulted is returned by Enqueue after a driver fault until
	// ClearFault is called.
	ErrFaulted = errors.New("motion: controller faulted")

	// ErrManualPending is returned when an autonomous command would
	// replace a queued manual one. The autonomous command is dropped.
	ErrManualPending = errors.New("motion: manual command pending")

	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("motion: controller closed")

	// ErrUnknownDirection is returned by ParseDirection.
	ErrUnknownDirection = errors.New("motion: unknown direction")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("motion: invalid config")
)

// FaultError records the command the driver failed on.
type FaultError struct {
	Command Command
	Err     error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("motion: driver fault on %s: %v", e.Command.Label, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }
