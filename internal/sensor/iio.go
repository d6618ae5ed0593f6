package sensor

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-sensor/internal/scheduler"
	"github.com/nerrad567/gray-logic-sensor/internal/telemetry"
)

// IIO channel files exposed by the dht11 driver, in milli-units.
const (
	temperatureChannel = "in_temp_input"
	humidityChannel    = "in_humidityrelative_input"
)

// DefaultMinInterval is the shortest gap the DHT family tolerates between
// two conversions.
const DefaultMinInterval = 2 * time.Second

// IIO reads temperature and humidity from a Linux IIO device directory.
type IIO struct {
	dir          string
	measureDelay time.Duration
	minInterval  time.Duration

	mu       sync.Mutex
	lastRead time.Time
}

// NewIIO creates an IIO driver for dir, e.g. /sys/bus/iio/devices/iio:device0.
func NewIIO(dir string, measureDelay time.Duration) (*IIO, error) {
	if dir == "" {
		return nil, ErrDeviceRequired
	}
	return &IIO{
		dir:          dir,
		measureDelay: measureDelay,
		minInterval:  DefaultMinInterval,
	}, nil
}

// Measure reads both channels on a driver goroutine.
func (s *IIO) Measure(ctx context.Context) *scheduler.Future[telemetry.Reading] {
	return scheduler.Go(ctx, "sensor-iio", s.read)
}

func (s *IIO) read(ctx context.Context) (telemetry.Reading, error) {
	// One conversion at a time; the sensor cannot overlap them.
	s.mu.Lock()
	defer s.mu.Unlock()

	wait := s.measureDelay
	if !s.lastRead.IsZero() {
		if gap := s.minInterval - time.Since(s.lastRead); gap > wait {
			wait = gap
		}
	}
	if err := sleepCtx(ctx, wait); err != nil {
		return telemetry.Reading{}, err
	}
	defer func() { s.lastRead = time.Now() }()

	temp, err := s.readChannel(temperatureChannel)
	if err != nil {
		return telemetry.Reading{}, err
	}
	hum, err := s.readChannel(humidityChannel)
	if err != nil {
		return telemetry.Reading{}, err
	}

	t := milliToTenths(temp)
	if t < math.MinInt16 || t > math.MaxInt16 {
		return telemetry.Reading{}, fmt.Errorf("%w: temperature %d milli-degrees", ErrOutOfRange, temp)
	}
	h := milliToTenths(hum)
	if h < 0 || h > 1000 {
		return telemetry.Reading{}, fmt.Errorf("%w: humidity %d milli-percent", ErrOutOfRange, hum)
	}

	return telemetry.Reading{Temperature: int16(t), Humidity: uint16(h)}, nil
}

func (s *IIO) readChannel(name string) (int64, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrRead, name, err)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrRead, name, err)
	}
	return v, nil
}

// milliToTenths rounds a milli-unit value to tenths, half away from zero.
func milliToTenths(milli int64) int64 {
	return int64(math.Round(float64(milli) / 100))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
