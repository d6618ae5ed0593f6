package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-sensor/internal/telemetry"
)

const testTopic = "testtopic/pjq/dht11"

type fakeSubscriber struct {
	mu           sync.Mutex
	handlers     map[string]mqtt.MessageHandler
	qos          byte
	subscribeErr error
	unsubscribed []string
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeSubscriber) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.handlers[topic] = handler
	f.qos = qos
	return nil
}

func (f *fakeSubscriber) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	f.unsubscribed = append(f.unsubscribed, topic)
	return nil
}

// deliver invokes the handler registered for filter as the broker would.
func (f *fakeSubscriber) deliver(t *testing.T, filter, topic string, payload []byte) error {
	t.Helper()
	return f.deliverMessage(t, filter, mqtt.Message{Topic: topic, Payload: payload, QoS: 1})
}

func (f *fakeSubscriber) deliverMessage(t *testing.T, filter string, msg mqtt.Message) error {
	t.Helper()
	f.mu.Lock()
	h, ok := f.handlers[filter]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no handler subscribed for %q", filter)
	}
	return h(msg)
}

type mirrored struct {
	topic  string
	sample telemetry.Sample
}

type fakeMirror struct {
	mu     sync.Mutex
	writes []mirrored
}

func (m *fakeMirror) WriteReading(topic string, sample telemetry.Sample, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, mirrored{topic, sample})
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	infos []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	l.infos = append(l.infos, msg)
	l.mu.Unlock()
}
func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
func (l *recordingLogger) Error(string, ...any) {}

func encode(t *testing.T, codecName string, seq uint32, r telemetry.Reading) []byte {
	t.Helper()
	codec, err := telemetry.NewCodec(codecName)
	if err != nil {
		t.Fatal(err)
	}
	data, err := codec.Encode(telemetry.NewSample(seq, r))
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func newTestCollector(t *testing.T, filter string) (*Collector, *fakeSubscriber, *fakeMirror, *Store) {
	t.Helper()
	sub := newFakeSubscriber()
	mirror := &fakeMirror{}
	store := openTestStore(t)

	c, err := New(Config{Topic: filter, QoS: 1}, Deps{
		Subscriber: sub,
		Store:      store,
		Mirror:     mirror,
		Now:        func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return c, sub, mirror, store
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_Validation(t *testing.T) {
	store := &Store{}
	sub := newFakeSubscriber()

	tests := []struct {
		name    string
		cfg     Config
		deps    Deps
		wantErr error
	}{
		{"no topic", Config{}, Deps{Subscriber: sub, Store: store}, ErrTopicRequired},
		{"bad filter", Config{Topic: "a/#/b"}, Deps{Subscriber: sub, Store: store}, mqtt.ErrInvalidFilter},
		{"no subscriber", Config{Topic: testTopic}, Deps{Store: store}, ErrNoSubscriber},
		{"no store", Config{Topic: testTopic}, Deps{Subscriber: sub}, ErrNoStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, tt.deps)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStart_SubscribesOnce(t *testing.T) {
	c, sub, _, _ := newTestCollector(t, testTopic)

	if sub.qos != 1 {
		t.Errorf("subscription QoS = %d, want 1", sub.qos)
	}
	if err := c.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestStart_SubscribeError(t *testing.T) {
	sub := newFakeSubscriber()
	sub.subscribeErr = mqtt.ErrNotConnected
	c, err := New(Config{Topic: testTopic}, Deps{Subscriber: sub, Store: &Store{}})
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Start(); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Start() error = %v, want ErrNotConnected", err)
	}

	// A failed start can be retried.
	sub.subscribeErr = nil
	if err := c.Start(); err != nil {
		t.Errorf("retry Start() error = %v", err)
	}
}

func TestStop(t *testing.T) {
	c, sub, _, _ := newTestCollector(t, testTopic)

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(sub.unsubscribed) != 1 || sub.unsubscribed[0] != testTopic {
		t.Errorf("unsubscribed = %v, want [%s]", sub.unsubscribed, testTopic)
	}
	if err := c.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
	if len(sub.unsubscribed) != 1 {
		t.Errorf("second Stop() unsubscribed again: %v", sub.unsubscribed)
	}
}

// =============================================================================
// Message handling
// =============================================================================

func TestHandle_StoresAndMirrorsJSON(t *testing.T) {
	c, sub, mirror, store := newTestCollector(t, testTopic)

	payload := []byte(`{"d":0,"t":14.9,"h":0}`)
	if err := sub.deliver(t, testTopic, testTopic, payload); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	records, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("stored %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.Codec != telemetry.CodecJSON {
		t.Errorf("Codec = %q, want json", rec.Codec)
	}
	if rec.Sample.Temperature != 14.9 || rec.Sample.Humidity != 0 || rec.Sample.Sequence != 0 {
		t.Errorf("Sample = %+v, want {0 14.9 0}", rec.Sample)
	}
	if string(rec.Payload) != string(payload) {
		t.Errorf("Payload = %s, want %s", rec.Payload, payload)
	}

	if len(mirror.writes) != 1 || mirror.writes[0].topic != testTopic {
		t.Errorf("mirror writes = %+v, want one on %s", mirror.writes, testTopic)
	}
	if s := c.Stats(); s.Received != 1 || s.Stored != 1 || s.Rejected != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestHandle_CBOR(t *testing.T) {
	_, sub, _, store := newTestCollector(t, testTopic)

	payload := encode(t, telemetry.CodecCBOR, 7, telemetry.Reading{Temperature: -52, Humidity: 875})
	if err := sub.deliver(t, testTopic, testTopic, payload); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	records, _ := store.Recent(context.Background(), 1)
	if len(records) != 1 {
		t.Fatalf("stored %d records, want 1", len(records))
	}
	if records[0].Codec != telemetry.CodecCBOR {
		t.Errorf("Codec = %q, want cbor", records[0].Codec)
	}
	if records[0].Sample.Sequence != 7 || records[0].Sample.Temperature != -5.2 || records[0].Sample.Humidity != 87.5 {
		t.Errorf("Sample = %+v, want {7 -5.2 87.5}", records[0].Sample)
	}
}

func TestHandle_RejectsGarbage(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", []byte{}},
		{"plain text", []byte("hello")},
		{"truncated json", []byte(`{"d":1,"t":`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, sub, mirror, store := newTestCollector(t, testTopic)

			if err := sub.deliver(t, testTopic, testTopic, tt.payload); err != nil {
				t.Fatalf("handler error = %v, want nil for rejected payload", err)
			}

			readings, rejected, err := store.Count(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if readings != 0 || rejected != 1 {
				t.Errorf("Count() = %d, %d, want 0, 1", readings, rejected)
			}
			if len(mirror.writes) != 0 {
				t.Errorf("rejected payload was mirrored")
			}
			if s := c.Stats(); s.Rejected != 1 {
				t.Errorf("Stats().Rejected = %d, want 1", s.Rejected)
			}
		})
	}
}

func TestHandle_WildcardKeepsConcreteTopic(t *testing.T) {
	_, sub, _, store := newTestCollector(t, "testtopic/+/dht11")

	payload := encode(t, telemetry.CodecJSON, 1, telemetry.Reading{Temperature: 200, Humidity: 300})
	if err := sub.deliver(t, "testtopic/+/dht11", "testtopic/kitchen/dht11", payload); err != nil {
		t.Fatal(err)
	}

	records, _ := store.Recent(context.Background(), 1)
	if len(records) != 1 || records[0].Topic != "testtopic/kitchen/dht11" {
		t.Errorf("records = %+v, want one on testtopic/kitchen/dht11", records)
	}
}

func TestHandle_SequenceTracking(t *testing.T) {
	c, sub, _, _ := newTestCollector(t, "sensors/#")
	logger := &recordingLogger{}
	c.logger = logger

	r := telemetry.Reading{Temperature: 215, Humidity: 450}
	deliveries := []struct {
		topic string
		seq   uint32
	}{
		{"sensors/a", 0},
		{"sensors/a", 1},
		{"sensors/a", 1}, // redelivery
		{"sensors/a", 4}, // two lost
		{"sensors/b", 9}, // other device, first sight
		{"sensors/a", 0}, // restart
	}
	for _, d := range deliveries {
		if err := sub.deliver(t, "sensors/#", d.topic, encode(t, telemetry.CodecJSON, d.seq, r)); err != nil {
			t.Fatal(err)
		}
	}

	s := c.Stats()
	if s.Stored != 6 {
		t.Errorf("Stored = %d, want 6", s.Stored)
	}
	if s.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", s.Duplicates)
	}
	if s.Gaps != 1 {
		t.Errorf("Gaps = %d, want 1", s.Gaps)
	}
	if s.Resets != 1 {
		t.Errorf("Resets = %d, want 1", s.Resets)
	}
	if len(logger.warns) != 1 {
		t.Errorf("warnings = %v, want one gap warning", logger.warns)
	}
}

func TestHandle_SkipsRetained(t *testing.T) {
	c, sub, mirror, store := newTestCollector(t, testTopic)

	payload := encode(t, telemetry.CodecJSON, 3, telemetry.Reading{Temperature: 215, Humidity: 450})
	msg := mqtt.Message{Topic: testTopic, Payload: payload, QoS: 1, Retained: true}
	if err := sub.deliverMessage(t, testTopic, msg); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	readings, rejected, err := store.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if readings != 0 || rejected != 0 {
		t.Errorf("Count() = %d, %d, want 0, 0", readings, rejected)
	}
	if len(mirror.writes) != 0 {
		t.Errorf("mirror writes = %+v, want none", mirror.writes)
	}
	if s := c.Stats(); s.Received != 1 || s.Retained != 1 || s.Stored != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestHandle_NilMirror(t *testing.T) {
	sub := newFakeSubscriber()
	c, err := New(Config{Topic: testTopic}, Deps{Subscriber: sub, Store: openTestStore(t)})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	payload := encode(t, telemetry.CodecJSON, 0, telemetry.Reading{})
	if err := sub.deliver(t, testTopic, testTopic, payload); err != nil {
		t.Errorf("handler error = %v", err)
	}
}
