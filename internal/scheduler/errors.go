package scheduler

import "errors"

// Sentinel errors for scheduler operations.
var (
	// ErrRunning is returned by Spawn once Run has started.
	// The task set is fixed before the scheduler starts.
	ErrRunning = errors.New("scheduler: already running")

	// ErrDuplicateTask is returned when two tasks share a name.
	ErrDuplicateTask = errors.New("scheduler: duplicate task name")

	// ErrNilTask is returned when Spawn is called with a nil task.
	ErrNilTask = errors.New("scheduler: nil task")

	// ErrNoTasks is returned by Run when nothing was spawned.
	ErrNoTasks = errors.New("scheduler: no tasks spawned")

	// ErrPending is returned by Future.Result before the future completes.
	ErrPending = errors.New("scheduler: future not complete")
)
