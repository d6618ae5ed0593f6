package link

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-sensor/internal/scheduler"
)

// State is the WiFi link state owned by the Manager.
type State string

const (
	StateDown         State = "down"
	StateStarting     State = "starting"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

// TaskName is the scheduler task name of the link manager.
const TaskName = "link"

// phase is the manager's position in its state machine. Phases are finer
// grained than State: they name where the task is suspended.
type phase int

const (
	phaseStart phase = iota
	phaseStarting
	phaseAssociate
	phaseAssociating
	phaseWatch
	phaseBackoff
)

// Logger defines the logging interface for the link manager.
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

// Config holds the dependencies of a Manager.
type Config struct {
	// Radio is the station-mode radio driver. Required.
	Radio Radio

	// Credentials are loaded into the radio before it starts.
	Credentials Credentials

	// Retry holds the fixed retry delays. Zero fields take the defaults.
	Retry RetryPolicy
}

// Manager is the scheduler task that owns the WiFi link.
type Manager struct {
	radio  Radio
	creds  Credentials
	retry  RetryPolicy
	logger Logger

	mu       sync.RWMutex
	state    State
	attempts int
	onChange func(from, to State)

	// Task-local state, only touched from Step.
	phase        phase
	next         phase
	resumeAt     time.Time
	backoffPoint string
	pending      *scheduler.Future[struct{}]
	associating  bool
}

// NewManager creates a link manager in StateDown.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Radio == nil {
		return nil, ErrRadioRequired
	}

	defaults := DefaultRetryPolicy()
	if cfg.Retry.InitialBackoff <= 0 {
		cfg.Retry.InitialBackoff = defaults.InitialBackoff
	}
	if cfg.Retry.DisconnectBackoff <= 0 {
		cfg.Retry.DisconnectBackoff = defaults.DisconnectBackoff
	}

	return &Manager{
		radio:  cfg.Radio,
		creds:  cfg.Credentials,
		retry:  cfg.Retry,
		logger: noopLogger{},
		state:  StateDown,
		phase:  phaseStart,
	}, nil
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// OnStateChange registers a callback invoked after every state transition.
// The callback runs on the scheduler goroutine and must not block.
func (m *Manager) OnStateChange(fn func(from, to State)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// State returns the current link state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Attempts returns the number of association attempts made so far.
func (m *Manager) Attempts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempts
}

// Name implements scheduler.Task.
func (m *Manager) Name() string {
	return TaskName
}

// Step implements scheduler.Task. It never returns an error for radio
// failures; those are retried. An error means the manager's own invariant
// was broken.
func (m *Manager) Step(ctx context.Context, now time.Time) (scheduler.Wake, error) {
	for {
		switch m.phase {
		case phaseStart:
			fut, err := m.ensureStarted(ctx)
			if err != nil {
				m.logger.Error("radio start failed", "ssid", m.creds.SSID, "error", err)
				m.setState(StateDisconnected)
				return m.backoff(now, m.retry.InitialBackoff, "start-retry", phaseStart), nil
			}
			if fut == nil {
				m.phase = phaseAssociate
				continue
			}
			m.pending = fut
			m.phase = phaseStarting
			return scheduler.Await("radio-start", fut.Signal()), nil

		case phaseStarting:
			if !m.pending.Ready() {
				return scheduler.Await("radio-start", m.pending.Signal()), nil
			}
			_, err := m.pending.Result()
			m.pending = nil
			if err != nil {
				m.logger.Error("radio start failed", "ssid", m.creds.SSID, "error", err)
				m.setState(StateDisconnected)
				return m.backoff(now, m.retry.InitialBackoff, "start-retry", phaseStart), nil
			}
			m.logger.Info("radio started")
			m.phase = phaseAssociate

		case phaseAssociate:
			fut, err := m.connect(ctx)
			if err != nil {
				return scheduler.Wake{}, err
			}
			m.pending = fut
			m.phase = phaseAssociating
			return scheduler.Await("associate", fut.Signal()), nil

		case phaseAssociating:
			if !m.pending.Ready() {
				return scheduler.Await("associate", m.pending.Signal()), nil
			}
			_, err := m.pending.Result()
			m.pending = nil
			m.associating = false
			if err != nil {
				m.logger.Error("wifi association failed",
					"ssid", m.creds.SSID,
					"attempt", m.Attempts(),
					"retry_in", m.retry.InitialBackoff,
					"error", err,
				)
				m.setState(StateDisconnected)
				return m.backoff(now, m.retry.InitialBackoff, "connect-retry", phaseStart), nil
			}
			m.logger.Info("wifi connected", "ssid", m.creds.SSID, "attempt", m.Attempts())
			m.setState(StateConnected)
			m.phase = phaseWatch

		case phaseWatch:
			return m.watchDisconnect(now), nil

		case phaseBackoff:
			if now.Before(m.resumeAt) {
				return scheduler.Sleep(m.backoffPoint, m.resumeAt), nil
			}
			m.phase = m.next

		default:
			return scheduler.Wake{}, fmt.Errorf("link: unknown phase %d", m.phase)
		}
	}
}

// ensureStarted configures and starts the radio if it is not running. It
// returns a nil future when the radio is already started, in which case the
// link is left untouched.
func (m *Manager) ensureStarted(ctx context.Context) (*scheduler.Future[struct{}], error) {
	if m.radio.IsStarted() {
		return nil, nil
	}

	if err := m.radio.Configure(m.creds); err != nil {
		return nil, fmt.Errorf("configuring radio: %w", err)
	}

	m.setState(StateStarting)
	m.logger.Info("starting radio", "ssid", m.creds.SSID, "open", m.creds.Open())
	return m.radio.Start(ctx), nil
}

// connect starts one association attempt.
func (m *Manager) connect(ctx context.Context) (*scheduler.Future[struct{}], error) {
	if m.associating {
		return nil, ErrAssociationInFlight
	}

	m.setState(StateConnecting)
	m.radio.Disconnected().Reset()
	m.associating = true

	m.mu.Lock()
	m.attempts++
	attempt := m.attempts
	m.mu.Unlock()

	m.logger.Info("connecting to wifi", "ssid", m.creds.SSID, "attempt", attempt)
	return m.radio.Connect(ctx), nil
}

// watchDisconnect parks the task on the radio's disconnect event while
// connected. When the event fires the link goes to StateDisconnected and the
// task waits the settle delay before re-associating.
func (m *Manager) watchDisconnect(now time.Time) scheduler.Wake {
	sig := m.radio.Disconnected()
	if !sig.Fired() {
		return scheduler.Await("watch-disconnect", sig)
	}

	sig.Reset()
	m.logger.Warn("wifi disconnected",
		"ssid", m.creds.SSID,
		"reconnect_in", m.retry.DisconnectBackoff,
	)
	m.setState(StateDisconnected)
	return m.backoff(now, m.retry.DisconnectBackoff, "disconnect-settle", phaseStart)
}

// backoff parks the task until now+d, then resumes at next.
func (m *Manager) backoff(now time.Time, d time.Duration, point string, next phase) scheduler.Wake {
	m.phase = phaseBackoff
	m.next = next
	m.resumeAt = now.Add(d)
	m.backoffPoint = point
	return scheduler.Sleep(point, m.resumeAt)
}

// setState records a transition and notifies the callback.
func (m *Manager) setState(to State) {
	m.mu.Lock()
	from := m.state
	m.state = to
	fn := m.onChange
	m.mu.Unlock()

	if from == to {
		return
	}
	m.logger.Debug("link state changed", "from", from, "to", to)
	if fn != nil {
		fn(from, to)
	}
}
