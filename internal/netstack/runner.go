package netstack

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-sensor/internal/scheduler"
)

// RunnerTaskName is the scheduler task name of the stack runner.
const RunnerTaskName = "netstack"

// DefaultPollInterval is how often the Runner refreshes the stack.
const DefaultPollInterval = 100 * time.Millisecond

// Logger defines the logging interface for the netstack tasks.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Runner is the background task that keeps the stack's view of the
// interface fresh.
type Runner struct {
	stack    Stack
	interval time.Duration
	changed  *scheduler.Signal
	logger   Logger

	last     snapshot
	primed   bool
	failing  bool
	polls    uint64
	failures uint64
}

// NewRunner creates a runner polling stack every interval. A zero interval
// selects DefaultPollInterval.
func NewRunner(stack Stack, interval time.Duration) (*Runner, error) {
	if stack == nil {
		return nil, ErrStackRequired
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Runner{
		stack:    stack,
		interval: interval,
		changed:  scheduler.NewSignal("netstack-changed"),
		logger:   noopLogger{},
	}, nil
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	r.logger = logger
}

// Changed returns the signal fired whenever link or address state changes.
func (r *Runner) Changed() *scheduler.Signal {
	return r.changed
}

// Name implements scheduler.Task.
func (r *Runner) Name() string {
	return RunnerTaskName
}

// Step implements scheduler.Task. Poll errors are logged once per failure
// streak and never stop the task.
func (r *Runner) Step(ctx context.Context, now time.Time) (scheduler.Wake, error) {
	r.polls++
	if err := r.stack.Poll(ctx); err != nil {
		r.failures++
		if !r.failing {
			r.logger.Warn("network stack poll failed", "error", err)
		}
		r.failing = true
	} else if r.failing {
		r.logger.Info("network stack poll recovered", "failures", r.failures)
		r.failing = false
	}

	snap := take(r.stack)
	if !r.primed || snap != r.last {
		r.logger.Debug("network state changed",
			"link_up", snap.linkUp,
			"address", snap.addr.String(),
		)
		r.last = snap
		r.primed = true
		r.changed.Fire()
	}

	return scheduler.Sleep("poll", now.Add(r.interval)), nil
}
