package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status is the supervision state of a Manager.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusBackoff  Status = "backoff"
	StatusFailed   Status = "failed"
)

// maxLineLength bounds a single captured output line.
const maxLineLength = 4096

// Config describes the subprocess and its restart policy.
type Config struct {
	Name   string
	Binary string
	Args   []string

	// Env is appended to the parent environment.
	Env []string

	RestartOnFailure bool

	// RestartDelay is the delay before the first restart. Later restarts
	// double it up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// StableThreshold is how long a run must last for the restart counter
	// to reset.
	StableThreshold time.Duration

	// MaxRestartAttempts limits consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// OnStart is called each time the process starts.
	OnStart func(pid int)

	// OnExit is called when the process exits, with nil for a requested stop.
	OnExit func(err error)
}

// DefaultConfig returns a restarting Config for binary.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:               name,
		Binary:             binary,
		Args:               args,
		RestartOnFailure:   true,
		RestartDelay:       5 * time.Second,
		MaxRestartDelay:    5 * time.Minute,
		StableThreshold:    2 * time.Minute,
		MaxRestartAttempts: 10,
		GracefulTimeout:    10 * time.Second,
	}
}

// Logger is the logging interface used by the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// child is one run of the subprocess.
type child struct {
	cmd     *exec.Cmd
	started time.Time
	exited  chan error // receives the Wait result once
}

// Manager runs a subprocess in its own process group and restarts it with
// exponential backoff when it exits without being asked to.
type Manager struct {
	cfg    Config
	logger Logger

	mu       sync.Mutex
	status   Status
	pid      int
	restarts int
	lastErr  error
	stopping bool
	stopCh   chan struct{}
	done     chan struct{}
}

// NewManager fills zero durations in cfg with the DefaultConfig values.
func NewManager(cfg Config) *Manager {
	def := DefaultConfig(cfg.Name, cfg.Binary, cfg.Args)
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = def.RestartDelay
	}
	if cfg.MaxRestartDelay <= 0 {
		cfg.MaxRestartDelay = def.MaxRestartDelay
	}
	if cfg.MaxRestartDelay < cfg.RestartDelay {
		cfg.MaxRestartDelay = cfg.RestartDelay
	}
	if cfg.StableThreshold <= 0 {
		cfg.StableThreshold = def.StableThreshold
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = def.GracefulTimeout
	}
	return &Manager{cfg: cfg, logger: noopLogger{}, status: StatusStopped}
}

// SetLogger sets the logger. Call it before Start.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// Start launches the subprocess and supervises it until Stop, ctx
// cancellation, or the restart policy gives up. A Manager can be started
// again once Done is closed.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.done != nil && !closed(m.done) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, m.cfg.Name)
	}
	m.status = StatusStarting
	m.restarts = 0
	m.lastErr = nil
	m.stopping = false
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	c, err := m.launch()
	if err != nil {
		m.setStatus(StatusFailed, err)
		close(done)
		return err
	}
	go m.supervise(ctx, c)
	return nil
}

// launch starts one run with its output capture.
func (m *Manager) launch() (*child, error) {
	if _, err := exec.LookPath(m.cfg.Binary); err != nil {
		return nil, &permanentError{err: fmt.Errorf("locating %s: %w", m.cfg.Name, err)}
	}

	cmd := exec.Command(m.cfg.Binary, m.cfg.Args...) //nolint:gosec // binary comes from validated config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if m.cfg.Env != nil {
		cmd.Env = append(os.Environ(), m.cfg.Env...)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", m.cfg.Name, err)
	}

	c := &child{cmd: cmd, started: time.Now(), exited: make(chan error, 1)}

	// Wait must not run before the pipes are drained.
	var capture sync.WaitGroup
	capture.Add(2)
	go m.captureOutput(&capture, "stdout", stdout)
	go m.captureOutput(&capture, "stderr", stderr)
	go func() {
		capture.Wait()
		c.exited <- cmd.Wait()
	}()

	pid := cmd.Process.Pid
	m.mu.Lock()
	m.status = StatusRunning
	m.pid = pid
	m.mu.Unlock()

	m.logger.Info("process started", "name", m.cfg.Name, "pid", pid, "args", m.cfg.Args)
	if m.cfg.OnStart != nil {
		m.cfg.OnStart(pid)
	}
	return c, nil
}

func (m *Manager) captureOutput(wg *sync.WaitGroup, stream string, r io.Reader) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 512), maxLineLength)
	for scanner.Scan() {
		m.logger.Debug("process output", "name", m.cfg.Name, "stream", stream, "line", scanner.Text())
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		m.logger.Debug("output capture ended", "name", m.cfg.Name, "stream", stream, "error", err)
		// Keep the pipe drained so the child never blocks on a full buffer.
		_, _ = io.Copy(io.Discard, r)
	}
}

// supervise owns the subprocess until the manager stops.
func (m *Manager) supervise(ctx context.Context, c *child) {
	defer close(m.done)

	for {
		var err error
		select {
		case err = <-c.exited:
		case <-ctx.Done():
			m.terminate(c)
			m.stopped()
			return
		case <-m.stopCh:
			m.terminate(c)
			m.stopped()
			return
		}

		if err == nil {
			err = ErrUnexpectedExit
		}
		ran := time.Since(c.started)
		m.logger.Warn("process exited unexpectedly", "name", m.cfg.Name, "runtime", ran, "error", err)
		m.setStatus(StatusFailed, err)
		if m.cfg.OnExit != nil {
			m.cfg.OnExit(err)
		}
		if !m.cfg.RestartOnFailure {
			return
		}

		if ran >= m.cfg.StableThreshold {
			m.mu.Lock()
			m.restarts = 0
			m.mu.Unlock()
		}
		next, ok := m.restart(ctx)
		if !ok {
			return
		}
		c = next
	}
}

// restart waits out the backoff and relaunches, retrying failed launches.
// It returns false when supervision should end.
func (m *Manager) restart(ctx context.Context) (*child, bool) {
	for {
		m.mu.Lock()
		m.restarts++
		attempt := m.restarts
		m.mu.Unlock()

		if m.cfg.MaxRestartAttempts > 0 && attempt > m.cfg.MaxRestartAttempts {
			m.logger.Error("giving up on process", "name", m.cfg.Name, "restarts", attempt-1)
			return nil, false
		}

		delay := m.backoff(attempt)
		m.setStatus(StatusBackoff, nil)
		m.logger.Info("restarting process", "name", m.cfg.Name, "attempt", attempt, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.setStatus(StatusStopped, nil)
			return nil, false
		case <-m.stopCh:
			timer.Stop()
			m.setStatus(StatusStopped, nil)
			return nil, false
		case <-timer.C:
		}

		c, err := m.launch()
		if err == nil {
			return c, true
		}
		m.logger.Error("restart failed", "name", m.cfg.Name, "error", err)
		m.setStatus(StatusFailed, err)
		if !IsRecoverable(err) {
			return nil, false
		}
	}
}

// backoff returns the delay before restart n (1-based).
func (m *Manager) backoff(n int) time.Duration {
	d := m.cfg.RestartDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= m.cfg.MaxRestartDelay {
			return m.cfg.MaxRestartDelay
		}
	}
	return d
}

// terminate sends SIGTERM to the process group and SIGKILL after
// GracefulTimeout, then waits for the exit.
func (m *Manager) terminate(c *child) {
	pid := c.cmd.Process.Pid
	m.logger.Info("stopping process", "name", m.cfg.Name, "pid", pid)

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Warn("SIGTERM failed", "name", m.cfg.Name, "error", err)
	}

	timer := time.NewTimer(m.cfg.GracefulTimeout)
	defer timer.Stop()
	select {
	case <-c.exited:
		return
	case <-timer.C:
	}

	m.logger.Warn("process ignored SIGTERM, killing", "name", m.cfg.Name, "timeout", m.cfg.GracefulTimeout)
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Error("SIGKILL failed", "name", m.cfg.Name, "error", err)
	}
	<-c.exited
}

func (m *Manager) stopped() {
	m.setStatus(StatusStopped, nil)
	m.logger.Info("process stopped", "name", m.cfg.Name)
	if m.cfg.OnExit != nil {
		m.cfg.OnExit(nil)
	}
}

// Stop ends supervision and waits for the subprocess to exit. It is safe to
// call at any time, including before Start.
func (m *Manager) Stop() error {
	m.mu.Lock()
	done := m.done
	if done != nil && !m.stopping {
		m.stopping = true
		close(m.stopCh)
	}
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	return nil
}

// Done is closed when supervision ends. It is nil before Start.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

func (m *Manager) setStatus(s Status, err error) {
	m.mu.Lock()
	m.status = s
	if s != StatusRunning {
		m.pid = 0
	}
	if err != nil {
		m.lastErr = err
	}
	m.mu.Unlock()
}

// Status returns the supervision state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// IsRunning reports whether the subprocess is currently up.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// PID returns the subprocess pid, or 0 when it is not running.
func (m *Manager) PID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pid
}

// LastError returns the most recent exit or launch error.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// RestartCount returns the restart attempts since the last stable run.
func (m *Manager) RestartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restarts
}

func closed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
