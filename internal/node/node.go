package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensor/internal/link"
	"github.com/nerrad567/gray-logic-sensor/internal/netstack"
	"github.com/nerrad567/gray-logic-sensor/internal/scheduler"
	"github.com/nerrad567/gray-logic-sensor/internal/telemetry"
)

// ErrHardwareMissing is returned when an adapter is not supplied.
var ErrHardwareMissing = errors.New("node: hardware adapter missing")

// Logger is the logging interface shared by every task.
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

// Hardware holds the adapters the tasks drive.
type Hardware struct {
	Radio     link.Radio
	Stack     netstack.Stack
	Transport telemetry.Transport
	Sessions  telemetry.SessionFactory
	Sensor    telemetry.Sensor

	// Clock defaults to scheduler.SystemClock.
	Clock scheduler.Clock
}

// Node is the assembled task set.
type Node struct {
	Scheduler *scheduler.Scheduler
	Link      *link.Manager
	Runner    *netstack.Runner
	Monitor   *netstack.Monitor
	Publisher *telemetry.Publisher
}

// Build validates the credentials and wires the four tasks. Invalid
// credentials are a startup error; nothing is spawned.
func Build(cfg config.DeviceConfig, hw Hardware, logger Logger) (*Node, error) {
	if hw.Radio == nil || hw.Stack == nil || hw.Transport == nil || hw.Sessions == nil || hw.Sensor == nil {
		return nil, ErrHardwareMissing
	}
	if hw.Clock == nil {
		hw.Clock = scheduler.SystemClock
	}
	if logger == nil {
		logger = noopLogger{}
	}

	creds, err := link.NewCredentials(cfg.WiFi.SSID, cfg.WiFi.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("wifi credentials: %w", err)
	}

	linkMgr, err := link.NewManager(link.Config{
		Radio:       hw.Radio,
		Credentials: creds,
		Retry: link.RetryPolicy{
			InitialBackoff:    cfg.Retry.InitialBackoff,
			DisconnectBackoff: cfg.Retry.DisconnectBackoff,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("link manager: %w", err)
	}

	runner, err := netstack.NewRunner(hw.Stack, cfg.Network.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("netstack runner: %w", err)
	}

	monitor, err := netstack.NewMonitor(hw.Stack, runner.Changed(), netstack.MonitorConfig{
		CheckInterval:  cfg.Network.CheckInterval,
		BringUpTimeout: cfg.Network.BringUpTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("bring-up monitor: %w", err)
	}

	codec, err := telemetry.NewCodec(cfg.Telemetry.Codec)
	if err != nil {
		return nil, err
	}

	pub, err := telemetry.NewPublisher(publisherConfig(cfg, codec), telemetry.Deps{
		Ready:     monitor.Ready(),
		Resolver:  hw.Stack,
		Transport: hw.Transport,
		Sessions:  hw.Sessions,
		Sensor:    hw.Sensor,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry publisher: %w", err)
	}

	linkMgr.SetLogger(logger)
	runner.SetLogger(logger)
	monitor.SetLogger(logger)
	pub.SetLogger(logger)

	sched := scheduler.New(hw.Clock)
	sched.SetLogger(logger)
	for _, task := range []scheduler.Task{linkMgr, runner, monitor, pub} {
		if err := sched.Spawn(task); err != nil {
			return nil, fmt.Errorf("spawning %s: %w", task.Name(), err)
		}
	}

	return &Node{
		Scheduler: sched,
		Link:      linkMgr,
		Runner:    runner,
		Monitor:   monitor,
		Publisher: pub,
	}, nil
}

// Run drives the tasks until ctx is cancelled or a task fails, then tears
// down any open broker connection.
func (n *Node) Run(ctx context.Context) error {
	err := n.Scheduler.Run(ctx)
	if closeErr := n.Publisher.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Status is a point-in-time view of the node.
type Status struct {
	Link         link.State
	LinkAttempts int
	Network      netstack.Phase
	Address      netstack.Address
	HasAddress   bool
	Telemetry    telemetry.Stats
}

// Status reports the current state of every task.
func (n *Node) Status() Status {
	addr, ok := n.Monitor.Address()
	return Status{
		Link:         n.Link.State(),
		LinkAttempts: n.Link.Attempts(),
		Network:      n.Monitor.Phase(),
		Address:      addr,
		HasAddress:   ok,
		Telemetry:    n.Publisher.Stats(),
	}
}

func publisherConfig(cfg config.DeviceConfig, codec telemetry.Codec) telemetry.Config {
	return telemetry.Config{
		BrokerHost:       cfg.Broker.Host,
		BrokerPort:       uint16(cfg.Broker.Port), //nolint:gosec // validated 1-65535
		Topic:            cfg.Telemetry.Topic,
		QoS:              byte(cfg.Telemetry.QoS), //nolint:gosec // validated 0-1
		Retain:           cfg.Telemetry.Retain,
		ClientIDPrefix:   cfg.Broker.ClientIDPrefix,
		KeepAlive:        cfg.Broker.GetKeepAlive(),
		MaxPacketSize:    uint32(cfg.Broker.MaxPacketSize), //nolint:gosec // validated non-negative
		IdleTimeout:      cfg.Telemetry.IdleTimeout,
		ReconnectBackoff: cfg.Telemetry.ReconnectBackoff,
		SamplePeriod:     cfg.Telemetry.SamplePeriod,
		Codec:            codec,
	}
}
