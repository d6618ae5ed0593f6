package telemetry

import "errors"

// Domain errors for the telemetry package.
var (
	// ErrUnknownCodec is returned when a payload codec name is not recognised.
	ErrUnknownCodec = errors.New("telemetry: unknown codec")

	// ErrMissingDependency is returned when a Publisher is built without one
	// of its collaborators.
	ErrMissingDependency = errors.New("telemetry: missing dependency")

	// ErrInvalidConfig is returned for unusable publisher settings.
	ErrInvalidConfig = errors.New("telemetry: invalid config")

	// ErrDecode is returned when a payload cannot be decoded into a sample.
	ErrDecode = errors.New("telemetry: decode failed")
)
