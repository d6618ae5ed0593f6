// Package scheduler runs a fixed set of cooperative tasks on one goroutine.
//
// The sensor device has no operating system scheduler to lean on: the link
// manager, the network stack poll loop and the telemetry publisher share a
// single execution context and only give up control at explicit suspension
// points. This package reproduces that model in Go.
//
// # Model
//
// A Task is an explicit state machine. Each call to Step runs the task until
// its next suspension point and returns a Wake describing what it is waiting
// for:
//
//   - a timer (Sleep): resume at or after a given instant
//   - a Signal (Await): resume when another task or a driver fires it
//   - both (AwaitUntil): whichever comes first
//   - nothing (Yield): resume on the next pass
//
// Tasks never block inside Step. Blocking driver calls (DNS, TCP dial, MQTT
// handshake, sensor reads) are started with Go, which runs them on a helper
// goroutine and completes a Future. The task suspends on the future's Signal.
// This is the driver-completion path; task code itself always runs on the
// scheduler goroutine, so tasks never execute concurrently with each other.
//
// # Ordering
//
// When several tasks are ready in the same pass they are resumed in
// registration order. There are no priorities and no preemption.
//
// # Failure
//
// A task that returns an error from Step is fatal: Run stops and returns the
// error. There is no supervisor above the scheduler; recoverable failures must
// be handled inside the task.
//
// # Usage
//
//	s := scheduler.New(scheduler.SystemClock)
//	s.SetLogger(log)
//	_ = s.Spawn(linkManager)
//	_ = s.Spawn(stackRunner)
//	_ = s.Spawn(publisher)
//	if err := s.Run(ctx); err != nil {
//	    return fmt.Errorf("scheduler: %w", err)
//	}
package scheduler
