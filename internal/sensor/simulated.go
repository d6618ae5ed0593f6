package sensor

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-sensor/internal/scheduler"
	"github.com/nerrad567/gray-logic-sensor/internal/telemetry"
)

// Simulated readings swing around a room-like baseline.
const (
	simBaseTemperature = 215 // 21.5 C
	simBaseHumidity    = 450 // 45.0 %
	simSwing           = 20  // +-2.0 units
)

// Simulated is a deterministic sensor for bench use.
type Simulated struct {
	// FailEvery makes every n-th measurement fail. 0 never fails.
	FailEvery int

	mu    sync.Mutex
	count int
}

// NewSimulated creates a simulated sensor.
func NewSimulated(failEvery int) *Simulated {
	return &Simulated{FailEvery: failEvery}
}

// Measure completes immediately with the next reading in the sequence.
func (s *Simulated) Measure(_ context.Context) *scheduler.Future[telemetry.Reading] {
	s.mu.Lock()
	s.count++
	n := s.count
	s.mu.Unlock()

	if s.FailEvery > 0 && n%s.FailEvery == 0 {
		return scheduler.Resolved(telemetry.Reading{}, fmt.Errorf("%w: measurement %d", ErrSimulatedFailure, n))
	}
	return scheduler.Resolved(simulatedReading(n), nil)
}

// simulatedReading walks a triangle wave of period 4*simSwing measurements.
func simulatedReading(n int) telemetry.Reading {
	phase := n % (4 * simSwing)
	var offset int
	switch {
	case phase <= simSwing:
		offset = phase
	case phase <= 3*simSwing:
		offset = 2*simSwing - phase
	default:
		offset = phase - 4*simSwing
	}
	return telemetry.Reading{
		Temperature: int16(simBaseTemperature + offset),
		Humidity:    uint16(simBaseHumidity - offset),
	}
}
