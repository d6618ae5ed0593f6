package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Task is a cooperative routine driven by the scheduler.
type Task interface {
	// Name identifies the task in logs. Names must be unique per scheduler.
	Name() string

	// Step runs the task up to its next suspension point. A non-nil error
	// is fatal to the whole scheduler.
	Step(ctx context.Context, now time.Time) (Wake, error)
}

// Wake describes a task's suspension point and what resumes it.
type Wake struct {
	// Point names the suspension point (e.g. "dns", "watch-disconnect").
	Point string

	// At resumes the task at or after this instant. Zero means no timer.
	At time.Time

	// On resumes the task when the signal is set. Nil means no signal.
	On *Signal
}

// Sleep suspends until the given instant.
func Sleep(point string, until time.Time) Wake {
	return Wake{Point: point, At: until}
}

// Await suspends until the signal fires.
func Await(point string, s *Signal) Wake {
	return Wake{Point: point, On: s}
}

// AwaitUntil suspends until the signal fires or the instant passes.
func AwaitUntil(point string, s *Signal, until time.Time) Wake {
	return Wake{Point: point, At: until, On: s}
}

// Yield gives other tasks a turn and resumes on the next pass.
func Yield(point string) Wake {
	return Wake{Point: point}
}

// ready reports whether a task suspended with w may run at now.
func (w Wake) ready(now time.Time) bool {
	if w.On == nil && w.At.IsZero() {
		return true
	}
	if w.On != nil && w.On.Fired() {
		return true
	}
	return !w.At.IsZero() && !now.Before(w.At)
}

// Logger defines the logging interface for the scheduler.
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

// entry is a registered task and its current suspension.
type entry struct {
	task  Task
	wake  Wake
	steps uint64
}

// Scheduler interleaves a fixed set of tasks on the calling goroutine.
//
// Thread Safety: Spawn, Tick and Run must be called from one goroutine.
// Signals and futures may be completed from any goroutine.
type Scheduler struct {
	clock  Clock
	logger Logger

	mu      sync.Mutex
	entries []*entry
	names   map[string]bool

	running atomic.Bool
	kick    chan struct{}
}

// New creates a scheduler that reads time from clock.
func New(clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock
	}
	return &Scheduler{
		clock:  clock,
		logger: noopLogger{},
		names:  make(map[string]bool),
		kick:   make(chan struct{}, 1),
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// Spawn registers a task. Tasks must all be spawned before Run; the first
// Step happens on the first pass, in registration order.
func (s *Scheduler) Spawn(t Task) error {
	if t == nil {
		return ErrNilTask
	}
	if s.running.Load() {
		return fmt.Errorf("%w: cannot spawn %q", ErrRunning, t.Name())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.names[t.Name()] {
		return fmt.Errorf("%w: %q", ErrDuplicateTask, t.Name())
	}
	s.names[t.Name()] = true
	s.entries = append(s.entries, &entry{task: t, wake: Yield("spawn")})
	return nil
}

// Tick runs one pass: every task that is ready at the current clock reading
// is stepped once, in registration order. It returns the number of steps
// taken. Tests use Tick to drive tasks forward deterministically.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	s.mu.Lock()
	entries := append([]*entry(nil), s.entries...)
	s.mu.Unlock()

	steps := 0
	for _, e := range entries {
		now := s.clock.Now()
		if !e.wake.ready(now) {
			continue
		}

		wake, err := e.task.Step(ctx, now)
		steps++
		s.mu.Lock()
		e.steps++
		s.mu.Unlock()
		if err != nil {
			s.logger.Error("task failed",
				"task", e.task.Name(),
				"point", e.wake.Point,
				"error", err,
			)
			return steps, fmt.Errorf("task %q: %w", e.task.Name(), err)
		}

		s.mu.Lock()
		e.wake = wake
		s.mu.Unlock()
		if wake.On != nil {
			wake.On.watch(s.kick)
		}
	}

	return steps, nil
}

// Run drives the tasks until ctx is cancelled or a task fails. Between passes
// it sleeps until the earliest timer expires or a signal fires.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	count := len(s.entries)
	s.mu.Unlock()
	if count == 0 {
		return ErrNoTasks
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}

	s.logger.Info("scheduler started", "tasks", count)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		steps, err := s.Tick(ctx)
		if err != nil {
			return err
		}
		if steps > 0 {
			continue
		}

		if err := s.idle(ctx); err != nil {
			return err
		}
	}
}

// idle blocks until the next timer deadline, a signal, or cancellation.
func (s *Scheduler) idle(ctx context.Context) error {
	deadline, ok := s.nextDeadline()

	var timerC <-chan time.Time
	if ok {
		d := deadline.Sub(s.clock.Now())
		if d <= 0 {
			return nil
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		timerC = timer.C
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.kick:
	case <-timerC:
	}
	return nil
}

// nextDeadline returns the earliest timer among suspended tasks.
func (s *Scheduler) nextDeadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var earliest time.Time
	found := false
	for _, e := range s.entries {
		if e.wake.At.IsZero() {
			continue
		}
		if !found || e.wake.At.Before(earliest) {
			earliest = e.wake.At
			found = true
		}
	}
	return earliest, found
}

// Suspension returns the current suspension of the named task.
func (s *Scheduler) Suspension(name string) (Wake, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.task.Name() == name {
			return e.wake, true
		}
	}
	return Wake{}, false
}

// Steps returns how many times the named task has been stepped.
func (s *Scheduler) Steps(name string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.task.Name() == name {
			return e.steps
		}
	}
	return 0
}
