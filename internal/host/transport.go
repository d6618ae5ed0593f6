package host

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-sensor/internal/scheduler"
	"github.com/nerrad567/gray-logic-sensor/internal/telemetry"
)

// Transport dials IPv4 TCP connections. It implements telemetry.Transport.
type Transport struct {
	logger Logger
}

var _ telemetry.Transport = (*Transport)(nil)

// NewTransport creates a Transport.
func NewTransport() *Transport {
	return &Transport{logger: noopLogger{}}
}

// SetLogger sets the logger for the transport.
func (t *Transport) SetLogger(logger Logger) {
	t.logger = logger
}

// Dial connects to addr. The dial itself is bounded by idleTimeout, and the
// returned connection applies the same timeout while a response is owed.
func (t *Transport) Dial(ctx context.Context, addr netip.AddrPort, idleTimeout time.Duration) *scheduler.Future[net.Conn] {
	return scheduler.Go(ctx, "dial", func(ctx context.Context) (net.Conn, error) {
		dctx := ctx
		if idleTimeout > 0 {
			var cancel context.CancelFunc
			dctx, cancel = context.WithTimeout(ctx, idleTimeout)
			defer cancel()
		}

		var d net.Dialer
		conn, err := d.DialContext(dctx, "tcp4", addr.String())
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrDial, addr, err)
		}

		t.logger.Debug("tcp connected", "remote", addr.String(), "local", conn.LocalAddr().String())
		return &idleConn{Conn: conn, timeout: idleTimeout}, nil
	})
}

// idleConn enforces an idle timeout on a stream connection. Every write arms
// read and write deadlines and a successful read clears the read deadline,
// so an MQTT reader can wait indefinitely between exchanges.
type idleConn struct {
	net.Conn
	timeout time.Duration

	mu sync.Mutex
}

func (c *idleConn) Write(p []byte) (int, error) {
	if c.timeout > 0 {
		deadline := time.Now().Add(c.timeout)
		c.mu.Lock()
		_ = c.Conn.SetWriteDeadline(deadline)
		_ = c.Conn.SetReadDeadline(deadline)
		c.mu.Unlock()
	}
	return c.Conn.Write(p)
}

func (c *idleConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 && err == nil && c.timeout > 0 {
		c.mu.Lock()
		_ = c.Conn.SetReadDeadline(time.Time{})
		c.mu.Unlock()
	}
	return n, err
}
