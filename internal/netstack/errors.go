package netstack

import "errors"

// Domain errors for the netstack package.
var (
	// ErrBringUpTimeout is returned by the Monitor when the first bring-up does
	// not complete within the configured timeout.
	ErrBringUpTimeout = errors.New("netstack: bring-up timed out")

	// ErrStackRequired is returned when a task is built without a stack.
	ErrStackRequired = errors.New("netstack: stack is required")
)
