package link

import "errors"

// Domain errors for the link package.
var (
	// ErrInvalidSSID is returned when the SSID is empty or longer than 32 bytes.
	ErrInvalidSSID = errors.New("link: invalid SSID")

	// ErrInvalidPassphrase is returned when a WPA passphrase is not 8-63 bytes.
	ErrInvalidPassphrase = errors.New("link: invalid passphrase")

	// ErrAssociationInFlight is returned when a second association attempt
	// would start while one is still pending.
	ErrAssociationInFlight = errors.New("link: association already in flight")

	// ErrRadioRequired is returned when a Manager is built without a radio.
	ErrRadioRequired = errors.New("link: radio is required")
)
