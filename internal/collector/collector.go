package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-sensor/internal/telemetry"
)

// storeTimeout bounds the database work done for one message.
const storeTimeout = 5 * time.Second

// Subscriber is the part of the MQTT client the collector uses.
// *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Mirror receives every stored sample. *influxdb.Client satisfies it.
type Mirror interface {
	WriteReading(topic string, sample telemetry.Sample, receivedAt time.Time)
}

// Logger is the logging interface used by the collector.
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

// Config contains collector settings.
type Config struct {
	// Topic is the subscription filter; wildcards are allowed.
	Topic string

	// QoS is the subscription QoS.
	QoS byte
}

// Deps holds the collector's collaborators. Mirror may be nil.
type Deps struct {
	Subscriber Subscriber
	Store      *Store
	Mirror     Mirror
	Logger     Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Stats counts what the collector has seen since Start.
type Stats struct {
	Received uint64
	Stored   uint64
	Rejected uint64
	Gaps     uint64
	Resets   uint64

	// Duplicates counts QoS 1 redeliveries of the last sequence.
	Duplicates uint64

	// Retained counts broker-stored copies skipped on subscribe.
	Retained uint64
}

// Collector subscribes to telemetry and stores each sample.
type Collector struct {
	cfg    Config
	sub    Subscriber
	store  *Store
	mirror Mirror
	logger Logger
	now    func() time.Time
	codecs []telemetry.Codec

	mu      sync.Mutex
	started bool
	lastSeq map[string]uint32
	stats   Stats
}

// New creates a collector. It does not subscribe until Start.
func New(cfg Config, deps Deps) (*Collector, error) {
	if cfg.Topic == "" {
		return nil, ErrTopicRequired
	}
	if err := mqtt.ValidateFilter(cfg.Topic); err != nil {
		return nil, fmt.Errorf("collector topic: %w", err)
	}
	if deps.Subscriber == nil {
		return nil, ErrNoSubscriber
	}
	if deps.Store == nil {
		return nil, ErrNoStore
	}

	jsonCodec, err := telemetry.NewCodec(telemetry.CodecJSON)
	if err != nil {
		return nil, err
	}
	cborCodec, err := telemetry.NewCodec(telemetry.CodecCBOR)
	if err != nil {
		return nil, err
	}

	c := &Collector{
		cfg:     cfg,
		sub:     deps.Subscriber,
		store:   deps.Store,
		mirror:  deps.Mirror,
		logger:  deps.Logger,
		now:     deps.Now,
		codecs:  []telemetry.Codec{jsonCodec, cborCodec},
		lastSeq: make(map[string]uint32),
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Start subscribes to the telemetry topic.
func (c *Collector) Start() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	if err := c.sub.Subscribe(c.cfg.Topic, c.cfg.QoS, c.handleMessage); err != nil {
		c.mu.Lock()
		c.started = false
		c.mu.Unlock()
		return fmt.Errorf("subscribing to %s: %w", c.cfg.Topic, err)
	}

	c.logger.Info("collector subscribed", "topic", c.cfg.Topic, "qos", c.cfg.QoS)
	return nil
}

// Stop unsubscribes. It is safe to call on a stopped collector.
func (c *Collector) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	c.mu.Unlock()

	if err := c.sub.Unsubscribe(c.cfg.Topic); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", c.cfg.Topic, err)
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// handleMessage is the MQTT handler. A returned error is logged by the
// MQTT client; undecodable payloads are stored as rejects and not errors.
//
// Sensors never publish retained, so a retained message is the broker's
// stored copy of something older and is skipped.
func (c *Collector) handleMessage(msg mqtt.Message) error {
	receivedAt := c.now()
	c.count(func(s *Stats) { s.Received++ })

	topic, payload := msg.Topic, msg.Payload
	if msg.Retained {
		c.count(func(s *Stats) { s.Retained++ })
		c.logger.Debug("skipping retained telemetry", "topic", topic, "size", len(payload))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	sample, codec, err := c.decode(payload)
	if err != nil {
		c.count(func(s *Stats) { s.Rejected++ })
		c.logger.Warn("rejecting telemetry payload", "topic", topic, "size", len(payload), "error", err)
		return c.store.RecordRejected(ctx, receivedAt, topic, err.Error(), payload)
	}

	id, err := c.store.Insert(ctx, Record{
		ReceivedAt: receivedAt,
		Topic:      topic,
		Codec:      codec,
		Sample:     sample,
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("storing reading: %w", err)
	}
	c.count(func(s *Stats) { s.Stored++ })
	c.trackSequence(topic, sample.Sequence)

	if c.mirror != nil {
		c.mirror.WriteReading(topic, sample, receivedAt)
	}

	c.logger.Debug("reading stored",
		"id", id,
		"topic", topic,
		"seq", sample.Sequence,
		"temperature", sample.Temperature,
		"humidity", sample.Humidity,
	)
	return nil
}

// decode picks the codec from the first byte: a JSON object starts with
// '{', a CBOR map has major type 5.
func (c *Collector) decode(payload []byte) (telemetry.Sample, string, error) {
	if len(payload) == 0 {
		return telemetry.Sample{}, "", fmt.Errorf("%w: empty payload", ErrUnknownEncoding)
	}

	var codec telemetry.Codec
	switch {
	case payload[0] == '{':
		codec = c.codecs[0]
	case payload[0]>>5 == 5:
		codec = c.codecs[1]
	default:
		return telemetry.Sample{}, "", fmt.Errorf("%w: leading byte 0x%02x", ErrUnknownEncoding, payload[0])
	}

	sample, err := codec.Decode(payload)
	if err != nil {
		return telemetry.Sample{}, "", err
	}
	return sample, codec.Name(), nil
}

// trackSequence logs gaps and resets in a topic's sequence numbers.
func (c *Collector) trackSequence(topic string, seq uint32) {
	c.mu.Lock()
	last, seen := c.lastSeq[topic]
	c.lastSeq[topic] = seq
	var gap, reset bool
	switch {
	case !seen:
	case seq == last:
		c.stats.Duplicates++
	case seq < last:
		reset = true
		c.stats.Resets++
	case seq > last+1:
		gap = true
		c.stats.Gaps++
	}
	c.mu.Unlock()

	if gap {
		c.logger.Warn("telemetry sequence gap", "topic", topic, "last", last, "seq", seq, "missing", seq-last-1)
	}
	if reset {
		c.logger.Info("telemetry sequence reset, device restarted", "topic", topic, "last", last, "seq", seq)
	}
}

func (c *Collector) count(fn func(*Stats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}
