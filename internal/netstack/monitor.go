package netstack

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-sensor/internal/scheduler"
)

// MonitorTaskName is the scheduler task name of the bring-up monitor.
const MonitorTaskName = "netmon"

// DefaultCheckInterval is how often the Monitor re-checks the stack when no
// change has been signalled.
const DefaultCheckInterval = 500 * time.Millisecond

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	// CheckInterval bounds how long the monitor sleeps between checks.
	CheckInterval time.Duration

	// BringUpTimeout limits the first bring-up. Zero waits forever.
	BringUpTimeout time.Duration
}

// Phase is where the monitor currently waits.
type Phase string

const (
	PhaseWaitLink    Phase = "wait-link"
	PhaseWaitAddress Phase = "wait-address"
	PhaseTracking    Phase = "tracking"
)

// Monitor is the scheduler task that gates telemetry on IP bring-up.
type Monitor struct {
	stack   Stack
	changed *scheduler.Signal
	ready   *scheduler.Signal
	cfg     MonitorConfig
	logger  Logger

	mu    sync.RWMutex
	phase Phase
	addr  Address

	deadline time.Time
	armed    bool
}

// NewMonitor creates a monitor over stack. changed is the Runner's change
// signal; it may be nil, in which case the monitor only polls.
func NewMonitor(stack Stack, changed *scheduler.Signal, cfg MonitorConfig) (*Monitor, error) {
	if stack == nil {
		return nil, ErrStackRequired
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if changed == nil {
		changed = scheduler.NewSignal("netstack-changed")
	}
	return &Monitor{
		stack:   stack,
		changed: changed,
		ready:   scheduler.NewSignal("net-ready"),
		cfg:     cfg,
		logger:  noopLogger{},
		phase:   PhaseWaitLink,
	}, nil
}

// SetLogger sets the logger for the monitor.
func (m *Monitor) SetLogger(logger Logger) {
	m.logger = logger
}

// Ready returns the one-shot signal fired on the first completed bring-up.
func (m *Monitor) Ready() *scheduler.Signal {
	return m.ready
}

// Phase returns where the monitor is currently waiting.
func (m *Monitor) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// Address returns the last address seen while the link was up.
func (m *Monitor) Address() (Address, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.addr, m.addr.IsValid()
}

// Name implements scheduler.Task.
func (m *Monitor) Name() string {
	return MonitorTaskName
}

// Step implements scheduler.Task.
func (m *Monitor) Step(_ context.Context, now time.Time) (scheduler.Wake, error) {
	if !m.armed {
		m.armed = true
		if m.cfg.BringUpTimeout > 0 {
			m.deadline = now.Add(m.cfg.BringUpTimeout)
		}
	}

	for {
		// Reset before reading state so a change racing the read re-fires.
		m.changed.Reset()

		switch m.Phase() {
		case PhaseWaitLink:
			if m.stack.IsLinkUp() {
				m.logger.Info("network link up")
				m.setPhase(PhaseWaitAddress)
				continue
			}
			return m.wait("link-up", now)

		case PhaseWaitAddress:
			if !m.stack.IsLinkUp() {
				m.setPhase(PhaseWaitLink)
				continue
			}
			addr, ok := m.stack.Address()
			if !ok {
				return m.wait("address", now)
			}
			m.setAddress(addr)
			if !m.ready.Fired() {
				m.logger.Info("network ready",
					"address", addr.String(),
					"gateway", addr.Gateway.String(),
				)
				m.ready.Fire()
			} else {
				m.logger.Info("network address reacquired", "address", addr.String())
			}
			m.setPhase(PhaseTracking)
			continue

		case PhaseTracking:
			if !m.stack.IsLinkUp() {
				m.logger.Warn("network link down")
				m.setAddress(Address{})
				m.setPhase(PhaseWaitLink)
				continue
			}
			addr, ok := m.stack.Address()
			if !ok {
				m.logger.Warn("network address lost")
				m.setAddress(Address{})
				m.setPhase(PhaseWaitAddress)
				continue
			}
			if prev, _ := m.Address(); addr != prev {
				m.logger.Info("network address changed", "from", prev.String(), "to", addr.String())
				m.setAddress(addr)
			}
			return scheduler.AwaitUntil("track", m.changed, now.Add(m.cfg.CheckInterval)), nil

		default:
			return scheduler.Wake{}, fmt.Errorf("netstack: unknown phase %q", m.Phase())
		}
	}
}

// wait suspends until the stack changes or the check interval passes. Before
// the first bring-up it also enforces the bring-up deadline.
func (m *Monitor) wait(point string, now time.Time) (scheduler.Wake, error) {
	next := now.Add(m.cfg.CheckInterval)

	if !m.ready.Fired() && !m.deadline.IsZero() {
		if !now.Before(m.deadline) {
			m.logger.Error("network bring-up timed out",
				"phase", m.Phase(),
				"timeout", m.cfg.BringUpTimeout,
			)
			return scheduler.Wake{}, fmt.Errorf("%w after %s waiting for %s",
				ErrBringUpTimeout, m.cfg.BringUpTimeout, point)
		}
		if m.deadline.Before(next) {
			next = m.deadline
		}
	}

	return scheduler.AwaitUntil(point, m.changed, next), nil
}

func (m *Monitor) setPhase(p Phase) {
	m.mu.Lock()
	m.phase = p
	m.mu.Unlock()
}

func (m *Monitor) setAddress(a Address) {
	m.mu.Lock()
	m.addr = a
	m.mu.Unlock()
}
