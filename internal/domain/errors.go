package domain

import "errors"

// Common domain errors
var (
	// ErrNotFound is returned when a machine, VM or task id does not
	// resolve against the simulator.
	ErrNotFound = errors.New("resource not found")

	// ErrResourceExhausted is returned when no machine can host the
	// requested VM or task.
	ErrResourceExhausted = errors.New("resources exhausted")

	// ErrConflict is returned when an operation collides with current
	// state, e.g. migrating a VM that is already migrating.
	ErrConflict = errors.New("conflict with current state")

	// ErrInvalidState is returned when a machine is no longer in the
	// sleep state a decision was based on.
	ErrInvalidState = errors.New("machine in unexpected state")

	// ErrOperationFailed is returned when an actuator call fails.
	ErrOperationFailed = errors.New("operation failed")
)
