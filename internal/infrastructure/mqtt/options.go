package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/config"
)

// Connection constants.
const (
	// connectTimeout bounds the initial connection.
	connectTimeout = 10 * time.Second

	// ackTimeout bounds SUBACK and UNSUBACK waits.
	ackTimeout = 5 * time.Second

	// statusTimeout bounds the presence publish on connect and close.
	statusTimeout = 2 * time.Second

	// disconnectQuiesce is how long Disconnect lets in-flight work finish, in
	// milliseconds.
	disconnectQuiesce = 500

	// defaultKeepAlive applies when cfg.KeepAlive is zero. The collector
	// default is much shorter so a dead broker is noticed within seconds.
	defaultKeepAlive = 60 * time.Second

	// defaultMaxReconnectDelay applies when cfg.Reconnect.MaxDelay is zero.
	defaultMaxReconnectDelay = time.Minute

	maxQoS = 2

	tlsMinVersion = tls.VersionTLS12
)

// brokerURL returns tcp:// or ssl:// for the configured broker.
func brokerURL(cfg config.MQTTConfig) string {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
}

// buildClientOptions maps the collector's MQTT settings onto paho options.
// Sessions are clean: subscriptions are restored by the client itself after
// every reconnect rather than held by the broker.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Only retry the first connect when a retry delay is configured;
	// otherwise Connect fails fast and the caller decides.
	if cfg.Reconnect.InitialDelay > 0 {
		opts.SetConnectRetry(true)
		opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	}
	maxDelay := defaultMaxReconnectDelay
	if cfg.Reconnect.MaxDelay > 0 {
		maxDelay = time.Duration(cfg.Reconnect.MaxDelay) * time.Second
	}
	opts.SetMaxReconnectInterval(maxDelay)

	keepAlive := defaultKeepAlive
	if cfg.KeepAlive > 0 {
		keepAlive = time.Duration(cfg.KeepAlive) * time.Second
	}
	opts.SetKeepAlive(keepAlive)
	opts.SetPingTimeout(keepAlive / 2)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

// configureWill registers the retained offline message the broker publishes
// if the collector vanishes without a clean disconnect.
func configureWill(opts *pahomqtt.ClientOptions, clientID string, qos byte) {
	payload := statusPayload(clientID, StatusOffline, reasonUnexpected, time.Now())
	opts.SetBinaryWill(Topics{}.CollectorStatus(clientID), payload, qos, true)
}
