package host

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/packets"

	"github.com/nerrad567/gray-logic-sensor/internal/telemetry"
)

// fakeBroker answers CONNECT with connackCode and acknowledges QoS 1
// publishes, reporting every received packet.
type fakeBroker struct {
	conn        net.Conn
	connackCode byte
	connects    chan *packets.Connect
	publishes   chan *packets.Publish
}

func startBroker(t *testing.T, connackCode byte) (*fakeBroker, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	b := &fakeBroker{
		conn:        server,
		connackCode: connackCode,
		connects:    make(chan *packets.Connect, 1),
		publishes:   make(chan *packets.Publish, 8),
	}
	go b.serve()
	t.Cleanup(func() { server.Close() })
	return b, client
}

func (b *fakeBroker) serve() {
	for {
		cp, err := packets.ReadPacket(b.conn)
		if err != nil {
			return
		}
		switch p := cp.Content.(type) {
		case *packets.Connect:
			b.connects <- p
			ack := packets.NewControlPacket(packets.CONNACK)
			ack.Content.(*packets.Connack).ReasonCode = b.connackCode
			if _, err := ack.WriteTo(b.conn); err != nil {
				return
			}
		case *packets.Publish:
			b.publishes <- p
			if p.QoS == 1 {
				ack := packets.NewControlPacket(packets.PUBACK)
				ack.Content.(*packets.Puback).PacketID = p.PacketID
				if _, err := ack.WriteTo(b.conn); err != nil {
					return
				}
			}
		case *packets.Disconnect:
			return
		}
	}
}

func testSessionConfig() telemetry.SessionConfig {
	return telemetry.SessionConfig{
		ClientID:      "glsensor-test",
		KeepAlive:     60 * time.Second,
		MaxPacketSize: 100,
		MaxQoS:        1,
		CleanStart:    true,
	}
}

// ============================================================================
// Handshake
// ============================================================================

func TestSession_Connect(t *testing.T) {
	b, conn := startBroker(t, 0x00)
	s := NewSession(conn, testSessionConfig(), time.Second, noopLogger{})
	defer s.Close()

	if _, err := await(t, s.Connect(context.Background())); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	c := <-b.connects
	if c.ClientID != "glsensor-test" {
		t.Errorf("ClientID = %q, want %q", c.ClientID, "glsensor-test")
	}
	if c.KeepAlive != 60 {
		t.Errorf("KeepAlive = %d, want 60", c.KeepAlive)
	}
	if !c.CleanStart {
		t.Error("CleanStart = false, want true")
	}
	if c.Properties == nil || c.Properties.MaximumPacketSize == nil || *c.Properties.MaximumPacketSize != 100 {
		t.Errorf("MaximumPacketSize property missing or wrong: %+v", c.Properties)
	}
}

func TestSession_ConnectRejected(t *testing.T) {
	_, conn := startBroker(t, 0x87) // not authorized
	s := NewSession(conn, testSessionConfig(), time.Second, noopLogger{})
	defer s.Close()

	_, err := await(t, s.Connect(context.Background()))
	if !errors.Is(err, ErrHandshake) {
		t.Errorf("Connect() error = %v, want ErrHandshake", err)
	}
}

func TestSession_ConnectNoAnswer(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	go func() {
		// Swallow CONNECT and never reply.
		_, _ = packets.ReadPacket(server)
	}()

	s := NewSession(client, testSessionConfig(), 50*time.Millisecond, noopLogger{})
	defer s.Close()

	_, err := await(t, s.Connect(context.Background()))
	if !errors.Is(err, ErrHandshake) {
		t.Errorf("Connect() error = %v, want ErrHandshake", err)
	}
}

// ============================================================================
// Publish
// ============================================================================

func TestSession_PublishBeforeConnect(t *testing.T) {
	_, conn := startBroker(t, 0x00)
	s := NewSession(conn, testSessionConfig(), time.Second, noopLogger{})
	defer s.Close()

	_, err := await(t, s.Publish(context.Background(), telemetry.Message{Topic: "t", QoS: 1}))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestSession_PublishQoS1(t *testing.T) {
	b, conn := startBroker(t, 0x00)
	s := NewSession(conn, testSessionConfig(), time.Second, noopLogger{})
	defer s.Close()

	if _, err := await(t, s.Connect(context.Background())); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	msg := telemetry.Message{
		Topic:       "testtopic/pjq/dht11",
		Payload:     []byte(`{"d":0,"t":14.9,"h":0}`),
		QoS:         1,
		ContentType: "application/json",
	}
	if _, err := await(t, s.Publish(context.Background(), msg)); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	p := <-b.publishes
	if p.Topic != msg.Topic {
		t.Errorf("Topic = %q, want %q", p.Topic, msg.Topic)
	}
	if p.QoS != 1 {
		t.Errorf("QoS = %d, want 1", p.QoS)
	}
	if p.Retain {
		t.Error("Retain = true, want false")
	}
	if string(p.Payload) != string(msg.Payload) {
		t.Errorf("Payload = %s, want %s", p.Payload, msg.Payload)
	}
	if p.Properties == nil || p.Properties.ContentType != "application/json" {
		t.Errorf("ContentType property missing: %+v", p.Properties)
	}
}

func TestSession_PublishQoSCapped(t *testing.T) {
	b, conn := startBroker(t, 0x00)
	cfg := testSessionConfig()
	cfg.MaxQoS = 0
	s := NewSession(conn, cfg, time.Second, noopLogger{})
	defer s.Close()

	if _, err := await(t, s.Connect(context.Background())); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if _, err := await(t, s.Publish(context.Background(), telemetry.Message{Topic: "t", QoS: 1, Payload: []byte("x")})); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	select {
	case p := <-b.publishes:
		if p.QoS != 0 {
			t.Errorf("QoS = %d, want 0", p.QoS)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("publish not received")
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	_, conn := startBroker(t, 0x00)
	s := NewSession(conn, testSessionConfig(), time.Second, noopLogger{})

	if _, err := await(t, s.Connect(context.Background())); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}

	_, err := await(t, s.Publish(context.Background(), telemetry.Message{Topic: "t"}))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestKeepAliveSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want uint16
	}{
		{0, 0},
		{500 * time.Millisecond, 0},
		{60 * time.Second, 60},
		{48 * time.Hour, 0xFFFF},
	}
	for _, tt := range tests {
		if got := keepAliveSeconds(tt.in); got != tt.want {
			t.Errorf("keepAliveSeconds(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSessionFactory(t *testing.T) {
	_, conn := startBroker(t, 0x00)
	factory := NewSessionFactory(0, nil)

	sess := factory(conn, testSessionConfig())
	s, ok := sess.(*Session)
	if !ok {
		t.Fatalf("factory returned %T, want *Session", sess)
	}
	if s.timeout != DefaultResponseTimeout {
		t.Errorf("timeout = %v, want %v", s.timeout, DefaultResponseTimeout)
	}
	_ = s.Close()
}
