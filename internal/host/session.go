package host

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"github.com/nerrad567/gray-logic-sensor/internal/scheduler"
	"github.com/nerrad567/gray-logic-sensor/internal/telemetry"
)

// DefaultResponseTimeout bounds CONNECT and QoS 1 PUBLISH exchanges.
const DefaultResponseTimeout = 10 * time.Second

// disconnectWait bounds the DISCONNECT write on Close.
const disconnectWait = time.Second

// reasonCodeFailure is the first MQTT v5 failure reason code.
const reasonCodeFailure = 0x80

// Session is an MQTT v5 session over an established connection. It
// implements telemetry.Session.
type Session struct {
	conn    net.Conn
	cfg     telemetry.SessionConfig
	timeout time.Duration
	logger  Logger
	client  *paho.Client

	mu        sync.Mutex
	connected bool
	closed    bool
}

var _ telemetry.Session = (*Session)(nil)

// NewSessionFactory returns a factory building paho sessions. A zero
// responseTimeout uses DefaultResponseTimeout.
func NewSessionFactory(responseTimeout time.Duration, logger Logger) telemetry.SessionFactory {
	if responseTimeout <= 0 {
		responseTimeout = DefaultResponseTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return func(conn net.Conn, cfg telemetry.SessionConfig) telemetry.Session {
		return NewSession(conn, cfg, responseTimeout, logger)
	}
}

// NewSession wraps conn in an MQTT v5 client.
func NewSession(conn net.Conn, cfg telemetry.SessionConfig, responseTimeout time.Duration, logger Logger) *Session {
	s := &Session{
		conn:    conn,
		cfg:     cfg,
		timeout: responseTimeout,
		logger:  logger,
	}
	s.client = paho.NewClient(paho.ClientConfig{
		ClientID: cfg.ClientID,
		Conn:     conn,
		OnClientError: func(err error) {
			s.logger.Warn("mqtt session error", "client_id", cfg.ClientID, "error", err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			s.logger.Warn("broker closed mqtt session", "client_id", cfg.ClientID, "reason_code", d.ReasonCode)
		},
	})
	return s
}

// Connect sends CONNECT and waits for a successful CONNACK.
func (s *Session) Connect(ctx context.Context) *scheduler.Future[struct{}] {
	return scheduler.Go(ctx, "mqtt-connect", func(ctx context.Context) (struct{}, error) {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		cp := &paho.Connect{
			ClientID:   s.cfg.ClientID,
			KeepAlive:  keepAliveSeconds(s.cfg.KeepAlive),
			CleanStart: s.cfg.CleanStart,
		}
		if s.cfg.MaxPacketSize > 0 {
			maxPacket := s.cfg.MaxPacketSize
			cp.Properties = &paho.ConnectProperties{MaximumPacketSize: &maxPacket}
		}

		ca, err := s.client.Connect(cctx, cp)
		if err != nil {
			if ca != nil {
				return struct{}{}, fmt.Errorf("%w: reason code 0x%02x: %w", ErrHandshake, ca.ReasonCode, err)
			}
			return struct{}{}, fmt.Errorf("%w: %w", ErrHandshake, err)
		}
		if ca.ReasonCode >= reasonCodeFailure {
			return struct{}{}, fmt.Errorf("%w: reason code 0x%02x", ErrHandshake, ca.ReasonCode)
		}

		s.mu.Lock()
		s.connected = true
		s.mu.Unlock()

		s.logger.Info("mqtt session established",
			"client_id", s.cfg.ClientID,
			"session_present", ca.SessionPresent,
		)
		return struct{}{}, nil
	})
}

// Publish sends msg. QoS is capped at the session ceiling; at QoS 1 the
// future completes on PUBACK.
func (s *Session) Publish(ctx context.Context, msg telemetry.Message) *scheduler.Future[struct{}] {
	s.mu.Lock()
	connected := s.connected && !s.closed
	s.mu.Unlock()
	if !connected {
		return scheduler.Resolved(struct{}{}, ErrNotConnected)
	}

	qos := msg.QoS
	if qos > s.cfg.MaxQoS {
		qos = s.cfg.MaxQoS
	}

	return scheduler.Go(ctx, "mqtt-publish", func(ctx context.Context) (struct{}, error) {
		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		p := &paho.Publish{
			Topic:   msg.Topic,
			QoS:     qos,
			Retain:  msg.Retain,
			Payload: msg.Payload,
		}
		if msg.ContentType != "" {
			p.Properties = &paho.PublishProperties{ContentType: msg.ContentType}
		}

		resp, err := s.client.Publish(pctx, p)
		if err != nil {
			return struct{}{}, fmt.Errorf("%w: %s: %w", ErrPublish, msg.Topic, err)
		}
		if resp != nil && resp.ReasonCode >= reasonCodeFailure {
			return struct{}{}, fmt.Errorf("%w: %s: reason code 0x%02x", ErrPublish, msg.Topic, resp.ReasonCode)
		}
		return struct{}{}, nil
	})
}

// Close sends DISCONNECT if the handshake completed and closes the
// connection.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	connected := s.connected
	s.mu.Unlock()

	if connected {
		done := make(chan error, 1)
		go func() {
			done <- s.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		}()
		select {
		case err := <-done:
			if err != nil {
				s.logger.Debug("mqtt disconnect", "client_id", s.cfg.ClientID, "error", err)
			}
		case <-time.After(disconnectWait):
			s.logger.Debug("mqtt disconnect timed out", "client_id", s.cfg.ClientID)
		}
	}

	return s.conn.Close()
}

// keepAliveSeconds converts a keep-alive interval to the 16-bit wire value.
func keepAliveSeconds(d time.Duration) uint16 {
	secs := d / time.Second
	if secs <= 0 {
		return 0
	}
	if secs > 0xFFFF {
		return 0xFFFF
	}
	return uint16(secs)
}
