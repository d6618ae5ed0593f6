package scheduler

import "sync"

// Signal is a level-triggered notification shared between tasks and drivers.
//
// Fire sets the signal and wakes the scheduler if a task is suspended on it.
// The signal stays set until Reset, so a one-shot gate (address ready) is
// simply never reset, while a repeating event (radio disconnect) is reset
// by the task that consumes it.
//
// Thread Safety: Fire may be called from any goroutine.
type Signal struct {
	name string

	mu    sync.Mutex
	fired bool
	waker chan<- struct{}
}

// NewSignal creates an unfired signal.
func NewSignal(name string) *Signal {
	return &Signal{name: name}
}

// Name returns the signal name used in logs.
func (s *Signal) Name() string {
	return s.name
}

// Fire sets the signal. Firing an already-set signal is a no-op apart from
// waking the scheduler again.
func (s *Signal) Fire() {
	s.mu.Lock()
	s.fired = true
	waker := s.waker
	s.mu.Unlock()

	if waker != nil {
		notify(waker)
	}
}

// Fired reports whether the signal is set.
func (s *Signal) Fired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// Reset clears the signal.
func (s *Signal) Reset() {
	s.mu.Lock()
	s.fired = false
	s.mu.Unlock()
}

// watch registers the scheduler's wake channel. If the signal fired before
// registration the scheduler is woken immediately so the edge is not lost.
func (s *Signal) watch(waker chan<- struct{}) {
	s.mu.Lock()
	s.waker = waker
	fired := s.fired
	s.mu.Unlock()

	if fired {
		notify(waker)
	}
}

// notify performs a non-blocking send on a 1-buffered wake channel.
func notify(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
