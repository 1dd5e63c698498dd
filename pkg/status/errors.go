package status

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is wrapped by every ValidationError.
var ErrOutOfRange = errors.New("status: value out of range")

// ValidationError reports a rejected operator setting.
type ValidationError struct {
	Field    string
	Value    int
	Min, Max int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("status: %s %d not in [%d, %d]", e.Field, e.Value, e.Min, e.Max)
}

func (e *ValidationError) Unwrap() error { return ErrOutOfRange }

func checkRange(field string, v int) error {
	if v < 0 || v > 100 {
		return &ValidationError{Field: field, Value: v, Min: 0, Max: 100}
	}
	return nil
}
