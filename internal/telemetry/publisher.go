package telemetry

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-sensor/internal/scheduler"
)

// TaskName is the scheduler task name of the publisher.
const TaskName = "telemetry"

// Defaults for Config fields left zero.
const (
	DefaultPort             = 1883
	DefaultTopic            = "testtopic/pjq/dht11"
	DefaultClientIDPrefix   = "glsensor"
	DefaultKeepAlive        = 60 * time.Second
	DefaultMaxPacketSize    = 100
	DefaultIdleTimeout      = 10 * time.Second
	DefaultReconnectBackoff = 5 * time.Second
	DefaultSamplePeriod     = 5 * time.Second
)

// Config configures a Publisher.
type Config struct {
	// BrokerHost is resolved through the Resolver on every outer pass.
	BrokerHost string

	// BrokerPort is the broker's TCP port.
	BrokerPort uint16

	// Topic is the fixed publish topic.
	Topic string

	// QoS is the publish quality of service.
	QoS byte

	// Retain sets the MQTT retain flag on every publish.
	Retain bool

	// ClientIDPrefix is joined with a fresh UUID for each session.
	ClientIDPrefix string

	KeepAlive     time.Duration
	MaxPacketSize uint32

	// IdleTimeout bounds the dial and every read or write on the connection.
	IdleTimeout time.Duration

	// ReconnectBackoff is the delay after a dial, handshake or publish failure.
	ReconnectBackoff time.Duration

	// SamplePeriod is the delay between samples on a live connection.
	SamplePeriod time.Duration

	// Codec serialises samples. Nil selects JSON.
	Codec Codec
}

// DefaultConfig returns at-least-once publishing without retain, a 10 s idle
// timeout, 5 s reconnect backoff and a 5 s sampling period.
func DefaultConfig() Config {
	return Config{
		BrokerPort:       DefaultPort,
		Topic:            DefaultTopic,
		QoS:              1,
		Retain:           false,
		ClientIDPrefix:   DefaultClientIDPrefix,
		KeepAlive:        DefaultKeepAlive,
		MaxPacketSize:    DefaultMaxPacketSize,
		IdleTimeout:      DefaultIdleTimeout,
		ReconnectBackoff: DefaultReconnectBackoff,
		SamplePeriod:     DefaultSamplePeriod,
	}
}

// Deps are the Publisher's collaborators.
type Deps struct {
	// Ready gates the first resolution. Nil starts immediately.
	Ready *scheduler.Signal

	Resolver  Resolver
	Transport Transport
	Sessions  SessionFactory
	Sensor    Sensor
}

// Stats counts publisher activity since start.
type Stats struct {
	Resolutions       uint64
	ResolveFailures   uint64
	Dials             uint64
	DialFailures      uint64
	Connects          uint64
	HandshakeFailures uint64
	Samples           uint64
	SensorFailures    uint64
	Publishes         uint64
	PublishFailures   uint64
}

// phase is the publisher's position in its loops.
type phase int

const (
	phaseAwaitReady phase = iota
	phaseResolve
	phaseResolving
	phaseDial
	phaseDialing
	phaseHandshake
	phaseHandshaking
	phaseSample
	phaseSampling
	phasePublishing
	phaseSleep
	phaseBackoff
)

// Logger defines the logging interface for the publisher.
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

// Publisher is the scheduler task that samples the sensor and publishes
// readings to the broker.
type Publisher struct {
	cfg    Config
	deps   Deps
	logger Logger

	newClientID func() string

	mu    sync.RWMutex
	stats Stats

	// Task-local state, only touched from Step and Close.
	phase    phase
	resumeAt time.Time
	seq      uint32
	attempt  *connectionAttempt

	pendingAddr    *scheduler.Future[netip.Addr]
	pendingConn    *scheduler.Future[net.Conn]
	pendingDone    *scheduler.Future[struct{}]
	pendingReading *scheduler.Future[Reading]
}

// NewPublisher creates a publisher. Zero Config fields take the defaults from
// DefaultConfig, except QoS and Retain which are used as given.
func NewPublisher(cfg Config, deps Deps) (*Publisher, error) {
	if deps.Resolver == nil || deps.Transport == nil || deps.Sessions == nil || deps.Sensor == nil {
		return nil, fmt.Errorf("%w: resolver, transport, sessions and sensor are required", ErrMissingDependency)
	}
	if cfg.BrokerHost == "" {
		return nil, fmt.Errorf("%w: broker host is required", ErrInvalidConfig)
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("%w: qos %d out of range", ErrInvalidConfig, cfg.QoS)
	}

	d := DefaultConfig()
	if cfg.BrokerPort == 0 {
		cfg.BrokerPort = d.BrokerPort
	}
	if cfg.Topic == "" {
		cfg.Topic = d.Topic
	}
	if cfg.ClientIDPrefix == "" {
		cfg.ClientIDPrefix = d.ClientIDPrefix
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = d.KeepAlive
	}
	if cfg.MaxPacketSize == 0 {
		cfg.MaxPacketSize = d.MaxPacketSize
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = d.IdleTimeout
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = d.ReconnectBackoff
	}
	if cfg.SamplePeriod <= 0 {
		cfg.SamplePeriod = d.SamplePeriod
	}
	if cfg.Codec == nil {
		cfg.Codec = jsonCodec{}
	}

	p := &Publisher{
		cfg:    cfg,
		deps:   deps,
		logger: noopLogger{},
		phase:  phaseAwaitReady,
	}
	p.newClientID = func() string {
		return p.cfg.ClientIDPrefix + "-" + uuid.NewString()
	}
	return p, nil
}

// SetLogger sets the logger for the publisher.
func (p *Publisher) SetLogger(logger Logger) {
	p.logger = logger
}

// Stats returns a snapshot of the publisher counters.
func (p *Publisher) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// Name implements scheduler.Task.
func (p *Publisher) Name() string {
	return TaskName
}

// Close tears down the current connection attempt, if any. It must not be
// called while the scheduler is running.
func (p *Publisher) Close() error {
	p.teardown()
	return nil
}

// Step implements scheduler.Task. It never returns an error.
func (p *Publisher) Step(ctx context.Context, now time.Time) (scheduler.Wake, error) {
	for {
		switch p.phase {
		case phaseAwaitReady:
			if p.deps.Ready != nil && !p.deps.Ready.Fired() {
				return scheduler.Await("net-ready", p.deps.Ready), nil
			}
			p.logger.Info("network ready, starting telemetry",
				"broker", p.cfg.BrokerHost,
				"port", p.cfg.BrokerPort,
				"topic", p.cfg.Topic,
			)
			p.phase = phaseResolve

		case phaseResolve:
			p.count(func(s *Stats) { s.Resolutions++ })
			p.pendingAddr = p.deps.Resolver.Resolve(ctx, p.cfg.BrokerHost)
			p.phase = phaseResolving
			return scheduler.Await("resolve", p.pendingAddr.Signal()), nil

		case phaseResolving:
			if !p.pendingAddr.Ready() {
				return scheduler.Await("resolve", p.pendingAddr.Signal()), nil
			}
			addr, err := p.pendingAddr.Result()
			p.pendingAddr = nil
			if err != nil {
				p.count(func(s *Stats) { s.ResolveFailures++ })
				p.logger.Error("broker dns resolution failed", "host", p.cfg.BrokerHost, "error", err)
				p.phase = phaseResolve
				return scheduler.Yield("resolve-retry"), nil
			}
			p.attempt = &connectionAttempt{broker: netip.AddrPortFrom(addr, p.cfg.BrokerPort)}
			p.logger.Debug("broker resolved", "host", p.cfg.BrokerHost, "addr", addr.String())
			p.phase = phaseDial

		case phaseDial:
			p.count(func(s *Stats) { s.Dials++ })
			p.pendingConn = p.deps.Transport.Dial(ctx, p.attempt.broker, p.cfg.IdleTimeout)
			p.phase = phaseDialing
			return scheduler.Await("dial", p.pendingConn.Signal()), nil

		case phaseDialing:
			if !p.pendingConn.Ready() {
				return scheduler.Await("dial", p.pendingConn.Signal()), nil
			}
			conn, err := p.pendingConn.Result()
			p.pendingConn = nil
			if err != nil {
				p.count(func(s *Stats) { s.DialFailures++ })
				p.logger.Error("broker connection failed",
					"broker", p.attempt.broker.String(),
					"retry_in", p.cfg.ReconnectBackoff,
					"error", err,
				)
				return p.backoff(now), nil
			}
			p.attempt.conn = conn
			p.phase = phaseHandshake

		case phaseHandshake:
			p.attempt.clientID = p.newClientID()
			p.attempt.session = p.deps.Sessions(p.attempt.conn, SessionConfig{
				ClientID:      p.attempt.clientID,
				KeepAlive:     p.cfg.KeepAlive,
				MaxPacketSize: p.cfg.MaxPacketSize,
				MaxQoS:        p.cfg.QoS,
				CleanStart:    true,
			})
			p.pendingDone = p.attempt.session.Connect(ctx)
			p.phase = phaseHandshaking
			return scheduler.Await("handshake", p.pendingDone.Signal()), nil

		case phaseHandshaking:
			if !p.pendingDone.Ready() {
				return scheduler.Await("handshake", p.pendingDone.Signal()), nil
			}
			_, err := p.pendingDone.Result()
			p.pendingDone = nil
			if err != nil {
				p.count(func(s *Stats) { s.HandshakeFailures++ })
				p.logger.Error("mqtt handshake failed",
					"broker", p.attempt.broker.String(),
					"client_id", p.attempt.clientID,
					"retry_in", p.cfg.ReconnectBackoff,
					"error", err,
				)
				return p.backoff(now), nil
			}
			p.count(func(s *Stats) { s.Connects++ })
			p.logger.Info("connected to mqtt broker",
				"broker", p.attempt.broker.String(),
				"client_id", p.attempt.clientID,
			)
			p.phase = phaseSample

		case phaseSample:
			p.pendingReading = p.deps.Sensor.Measure(ctx)
			p.phase = phaseSampling
			return scheduler.Await("measure", p.pendingReading.Signal()), nil

		case phaseSampling:
			if !p.pendingReading.Ready() {
				return scheduler.Await("measure", p.pendingReading.Signal()), nil
			}
			reading, err := p.pendingReading.Result()
			p.pendingReading = nil
			if err != nil {
				p.count(func(s *Stats) { s.SensorFailures++ })
				p.logger.Warn("sensor measurement failed", "error", err)
				return p.sleep(now), nil
			}
			p.count(func(s *Stats) { s.Samples++ })

			p.seq++
			sample := NewSample(p.seq, reading)
			payload, err := p.cfg.Codec.Encode(sample)
			if err != nil {
				p.logger.Error("encoding sample failed", "codec", p.cfg.Codec.Name(), "error", err)
				return p.sleep(now), nil
			}

			p.pendingDone = p.attempt.session.Publish(ctx, Message{
				Topic:       p.cfg.Topic,
				Payload:     payload,
				QoS:         p.cfg.QoS,
				Retain:      p.cfg.Retain,
				ContentType: p.cfg.Codec.ContentType(),
			})
			p.logger.Debug("publishing sample",
				"seq", sample.Sequence,
				"temperature", sample.Temperature,
				"humidity", sample.Humidity,
			)
			p.phase = phasePublishing
			return scheduler.Await("publish", p.pendingDone.Signal()), nil

		case phasePublishing:
			if !p.pendingDone.Ready() {
				return scheduler.Await("publish", p.pendingDone.Signal()), nil
			}
			_, err := p.pendingDone.Result()
			p.pendingDone = nil
			if err != nil {
				p.count(func(s *Stats) { s.PublishFailures++ })
				p.logger.Error("publish failed",
					"topic", p.cfg.Topic,
					"retry_in", p.cfg.ReconnectBackoff,
					"error", err,
				)
				return p.backoff(now), nil
			}
			p.count(func(s *Stats) { s.Publishes++ })
			return p.sleep(now), nil

		case phaseSleep:
			if now.Before(p.resumeAt) {
				return scheduler.Sleep("sample-period", p.resumeAt), nil
			}
			p.phase = phaseSample

		case phaseBackoff:
			if now.Before(p.resumeAt) {
				return scheduler.Sleep("reconnect-backoff", p.resumeAt), nil
			}
			p.phase = phaseResolve

		default:
			return scheduler.Wake{}, fmt.Errorf("telemetry: unknown phase %d", p.phase)
		}
	}
}

// sleep waits one sampling period on the live connection.
func (p *Publisher) sleep(now time.Time) scheduler.Wake {
	p.phase = phaseSleep
	p.resumeAt = now.Add(p.cfg.SamplePeriod)
	return scheduler.Sleep("sample-period", p.resumeAt)
}

// backoff discards the connection attempt and waits before the next outer
// pass.
func (p *Publisher) backoff(now time.Time) scheduler.Wake {
	p.teardown()
	p.phase = phaseBackoff
	p.resumeAt = now.Add(p.cfg.ReconnectBackoff)
	return scheduler.Sleep("reconnect-backoff", p.resumeAt)
}

func (p *Publisher) teardown() {
	p.attempt.close()
	p.attempt = nil
}

func (p *Publisher) count(fn func(*Stats)) {
	p.mu.Lock()
	fn(&p.stats)
	p.mu.Unlock()
}
