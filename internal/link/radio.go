package link

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-sensor/internal/scheduler"
)

// Credential length limits from IEEE 802.11 / WPA2-PSK.
const (
	maxSSIDLength       = 32
	minPassphraseLength = 8
	maxPassphraseLength = 63
)

// Credentials are the station-mode network credentials.
type Credentials struct {
	SSID       string
	Passphrase string
}

// NewCredentials validates and returns station credentials. An empty
// passphrase selects an open network.
func NewCredentials(ssid, passphrase string) (Credentials, error) {
	if len(ssid) == 0 || len(ssid) > maxSSIDLength {
		return Credentials{}, fmt.Errorf("%w: length %d, want 1-%d bytes", ErrInvalidSSID, len(ssid), maxSSIDLength)
	}
	if passphrase != "" && (len(passphrase) < minPassphraseLength || len(passphrase) > maxPassphraseLength) {
		return Credentials{}, fmt.Errorf("%w: length %d, want %d-%d bytes",
			ErrInvalidPassphrase, len(passphrase), minPassphraseLength, maxPassphraseLength)
	}
	return Credentials{SSID: ssid, Passphrase: passphrase}, nil
}

// Open reports whether the credentials select an open network.
func (c Credentials) Open() bool {
	return c.Passphrase == ""
}

// Radio is the station-mode radio driver consumed by the Manager.
//
// Start and Connect are asynchronous: they return immediately and complete
// the returned future when the driver finishes.
type Radio interface {
	// Configure loads station credentials. Only called while not started.
	Configure(creds Credentials) error

	// IsStarted reports whether the radio subsystem is running.
	IsStarted() bool

	// Start brings the radio subsystem up.
	Start(ctx context.Context) *scheduler.Future[struct{}]

	// Connect performs one association attempt with the access point.
	Connect(ctx context.Context) *scheduler.Future[struct{}]

	// IsConnected reports whether the station is associated.
	IsConnected() bool

	// Disconnected fires when the station loses its association. The
	// Manager resets it before each association attempt.
	Disconnected() *scheduler.Signal
}

// RetryPolicy holds the fixed retry delays. It is configuration only and is
// not changed at runtime.
type RetryPolicy struct {
	// InitialBackoff is the delay after a failed start or association.
	InitialBackoff time.Duration

	// DisconnectBackoff is the settle delay after a disconnect event.
	DisconnectBackoff time.Duration
}

// DefaultRetryPolicy returns the 5 s / 5 s policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialBackoff:    5000 * time.Millisecond,
		DisconnectBackoff: 5000 * time.Millisecond,
	}
}
