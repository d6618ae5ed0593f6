package sensor

import (
	"fmt"

	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensor/internal/telemetry"
)

// Driver names accepted by New.
const (
	DriverIIO       = "iio"
	DriverSimulated = "simulated"
)

// New builds the driver selected by cfg.Driver.
func New(cfg config.SensorConfig) (telemetry.Sensor, error) {
	switch cfg.Driver {
	case DriverIIO, "":
		s, err := NewIIO(cfg.Device, cfg.MeasureDelay)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSimulated:
		return NewSimulated(0), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// compile-time interface checks
var (
	_ telemetry.Sensor = (*IIO)(nil)
	_ telemetry.Sensor = (*Simulated)(nil)
)

