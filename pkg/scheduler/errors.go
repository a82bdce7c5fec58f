package scheduler

import "errors"

var (
	// ErrInvalidInterval indicates a non-positive interval.
	ErrInvalidInterval = errors.New("invalid schedule interval")
	// ErrStopped indicates that Go was called after Stop.
	ErrStopped = errors.New("scheduler stopped")
)
