package taskqueue

import "errors"

var (
	// ErrInvalidLease is returned when a lease is unknown, expired, or held by
	// another runner or task. Results for terminal tasks also land here since
	// their lease is gone.
	ErrInvalidLease = errors.New("invalid lease")
	// ErrTaskNotFound is returned when a lease points at a task that does not exist.
	ErrTaskNotFound = errors.New("task not found")
)
