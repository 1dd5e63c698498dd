package analysis

import "errors"

var (
	// ErrInvalidConfig is returned for unusable stage configuration.
	ErrInvalidConfig = errors.New("analysis: invalid config")

	// ErrHistoryOverflow signals a broken ring buffer invariant.
	ErrHistoryOverflow = errors.New("analysis: history exceeds capacity")
)
