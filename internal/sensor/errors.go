package sensor

import "errors"

// Domain errors for the sensor package.
var (
	// ErrUnknownDriver is returned by New for an unsupported driver name.
	ErrUnknownDriver = errors.New("sensor: unknown driver")

	// ErrDeviceRequired is returned when the IIO driver has no device path.
	ErrDeviceRequired = errors.New("sensor: device path is required")

	// ErrRead is returned when a channel cannot be read. The DHT family
	// fails individual reads routinely, so callers treat it as transient.
	ErrRead = errors.New("sensor: read failed")

	// ErrOutOfRange is returned when a value cannot be represented.
	ErrOutOfRange = errors.New("sensor: value out of range")

	// ErrSimulatedFailure is returned by Simulated on its configured failures.
	ErrSimulatedFailure = errors.New("sensor: simulated failure")
)
