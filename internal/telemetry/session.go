package telemetry

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/nerrad567/gray-logic-sensor/internal/scheduler"
)

// Resolver looks up the broker address.
type Resolver interface {
	Resolve(ctx context.Context, host string) *scheduler.Future[netip.Addr]
}

// Transport opens stream connections to the broker.
type Transport interface {
	// Dial connects to addr. idleTimeout bounds the dial and every later
	// read or write on the returned connection.
	Dial(ctx context.Context, addr netip.AddrPort, idleTimeout time.Duration) *scheduler.Future[net.Conn]
}

// Sensor produces raw readings.
type Sensor interface {
	Measure(ctx context.Context) *scheduler.Future[Reading]
}

// Message is one application message handed to a Session.
type Message struct {
	Topic       string
	Payload     []byte
	QoS         byte
	Retain      bool
	ContentType string
}

// SessionConfig holds the per-session MQTT parameters.
type SessionConfig struct {
	// ClientID is unique per session.
	ClientID string

	// KeepAlive is the MQTT keep-alive interval.
	KeepAlive time.Duration

	// MaxPacketSize is the largest packet the device accepts.
	MaxPacketSize uint32

	// MaxQoS is the QoS ceiling for the session.
	MaxQoS byte

	// CleanStart discards any previous session state at the broker.
	CleanStart bool
}

// Session is an MQTT protocol session over an established connection.
type Session interface {
	// Connect performs the CONNECT/CONNACK handshake.
	Connect(ctx context.Context) *scheduler.Future[struct{}]

	// Publish sends msg. At QoS 1 the future completes on PUBACK.
	Publish(ctx context.Context, msg Message) *scheduler.Future[struct{}]

	// Close ends the session. The underlying connection is closed too.
	Close() error
}

// SessionFactory builds a session on top of conn.
type SessionFactory func(conn net.Conn, cfg SessionConfig) Session

// connectionAttempt is everything one outer-loop iteration owns. It is
// discarded as a whole on any failure.
type connectionAttempt struct {
	broker   netip.AddrPort
	conn     net.Conn
	session  Session
	clientID string
}

// close releases the session and connection, in that order.
func (a *connectionAttempt) close() {
	if a == nil {
		return
	}
	if a.session != nil {
		_ = a.session.Close()
	}
	if a.conn != nil {
		_ = a.conn.Close()
	}
}
