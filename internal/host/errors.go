package host

import "errors"

// Domain errors for the host adapters.
var (
	// ErrInterfaceRequired is returned when an adapter is built without an
	// interface name.
	ErrInterfaceRequired = errors.New("host: interface name is required")

	// ErrNotConfigured is returned by Radio.Start before Configure succeeded.
	ErrNotConfigured = errors.New("host: radio not configured")

	// ErrAssociationTimeout is returned when the interface does not come up
	// within the association timeout.
	ErrAssociationTimeout = errors.New("host: association timed out")

	// ErrSupplicantExited is returned when the supervised supplicant stops
	// during start.
	ErrSupplicantExited = errors.New("host: wpa_supplicant exited")

	// ErrNoResolvers is returned when no DNS server is configured or found.
	ErrNoResolvers = errors.New("host: no DNS servers")

	// ErrResolve is returned when every DNS server failed to answer.
	ErrResolve = errors.New("host: DNS resolution failed")

	// ErrNoRecords is returned when a name has no A record.
	ErrNoRecords = errors.New("host: no A record")

	// ErrDial is returned when a TCP connection cannot be established.
	ErrDial = errors.New("host: dial failed")

	// ErrHandshake is returned when the broker rejects or never answers CONNECT.
	ErrHandshake = errors.New("host: MQTT handshake failed")

	// ErrPublish is returned when a publish is not acknowledged.
	ErrPublish = errors.New("host: MQTT publish failed")

	// ErrNotConnected is returned when publishing on a session that has not
	// completed its handshake.
	ErrNotConnected = errors.New("host: session not connected")
)

// Logger defines the logging interface for the host adapters.
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
