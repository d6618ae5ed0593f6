package scheduler

import (
	"context"
	"fmt"
	"sync"
)

// Future is the one-shot result of a driver operation.
//
// The producer calls Complete exactly once (later calls are ignored). The
// consuming task suspends on Signal() and reads Result once the signal fires.
type Future[T any] struct {
	done *Signal

	mu       sync.Mutex
	complete bool
	val      T
	err      error
}

// NewFuture creates a pending future. The name shows up as the signal name.
func NewFuture[T any](name string) *Future[T] {
	return &Future[T]{done: NewSignal(name)}
}

// Resolved returns a future that is already complete.
func Resolved[T any](val T, err error) *Future[T] {
	f := NewFuture[T]("resolved")
	f.Complete(val, err)
	return f
}

// Go runs fn on its own goroutine and completes the returned future with its
// result. A panic in fn is converted into an error rather than crashing the
// process, since driver code is outside the task's control.
func Go[T any](ctx context.Context, name string, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := NewFuture[T](name)
	go func() {
		var zero T
		defer func() {
			if r := recover(); r != nil {
				f.Complete(zero, fmt.Errorf("%s: driver panic: %v", name, r))
			}
		}()
		val, err := fn(ctx)
		f.Complete(val, err)
	}()
	return f
}

// Complete stores the result and fires the signal. Only the first call has
// any effect.
func (f *Future[T]) Complete(val T, err error) {
	f.mu.Lock()
	if f.complete {
		f.mu.Unlock()
		return
	}
	f.complete = true
	f.val = val
	f.err = err
	f.mu.Unlock()

	f.done.Fire()
}

// Ready reports whether the future has completed.
func (f *Future[T]) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.complete
}

// Result returns the stored value and error, or ErrPending if the future
// has not completed yet.
func (f *Future[T]) Result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.complete {
		var zero T
		return zero, ErrPending
	}
	return f.val, f.err
}

// Signal returns the completion signal to suspend on.
func (f *Future[T]) Signal() *Signal {
	return f.done
}
