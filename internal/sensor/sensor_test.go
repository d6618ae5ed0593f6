package sensor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensor/internal/scheduler"
	"github.com/nerrad567/gray-logic-sensor/internal/telemetry"
)

func await(t *testing.T, f *scheduler.Future[telemetry.Reading]) (telemetry.Reading, error) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !f.Ready() {
		if time.Now().After(deadline) {
			t.Fatal("measurement did not complete")
		}
		time.Sleep(2 * time.Millisecond)
	}
	return f.Result()
}

// fakeIIO writes channel files into a temp device directory.
func fakeIIO(t *testing.T, temp, hum string) string {
	t.Helper()
	dir := t.TempDir()
	if temp != "" {
		if err := os.WriteFile(filepath.Join(dir, temperatureChannel), []byte(temp+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if hum != "" {
		if err := os.WriteFile(filepath.Join(dir, humidityChannel), []byte(hum+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// ============================================================================
// IIO
// ============================================================================

func TestIIO_Measure(t *testing.T) {
	tests := []struct {
		name     string
		temp     string
		hum      string
		wantTemp int16
		wantHum  uint16
	}{
		{"dht11 whole units", "23000", "41000", 230, 410},
		{"dht22 tenths", "14900", "0", 149, 0},
		{"negative", "-5200", "87500", -52, 875},
		{"rounds half away from zero", "21450", "40049", 215, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewIIO(fakeIIO(t, tt.temp, tt.hum), 0)
			if err != nil {
				t.Fatal(err)
			}
			r, err := await(t, s.Measure(context.Background()))
			if err != nil {
				t.Fatalf("Measure() error: %v", err)
			}
			if r.Temperature != tt.wantTemp || r.Humidity != tt.wantHum {
				t.Errorf("Measure() = %+v, want {%d %d}", r, tt.wantTemp, tt.wantHum)
			}
		})
	}
}

func TestIIO_MissingChannel(t *testing.T) {
	s, _ := NewIIO(fakeIIO(t, "23000", ""), 0)

	_, err := await(t, s.Measure(context.Background()))
	if !errors.Is(err, ErrRead) {
		t.Errorf("Measure() error = %v, want ErrRead", err)
	}
}

func TestIIO_GarbageValue(t *testing.T) {
	s, _ := NewIIO(fakeIIO(t, "n/a", "41000"), 0)

	_, err := await(t, s.Measure(context.Background()))
	if !errors.Is(err, ErrRead) {
		t.Errorf("Measure() error = %v, want ErrRead", err)
	}
}

func TestIIO_HumidityOutOfRange(t *testing.T) {
	s, _ := NewIIO(fakeIIO(t, "23000", "120000"), 0)

	_, err := await(t, s.Measure(context.Background()))
	if !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Measure() error = %v, want ErrOutOfRange", err)
	}
}

func TestIIO_RespectsMinInterval(t *testing.T) {
	s, _ := NewIIO(fakeIIO(t, "23000", "41000"), 0)
	s.minInterval = 50 * time.Millisecond

	if _, err := await(t, s.Measure(context.Background())); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if _, err := await(t, s.Measure(context.Background())); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("second measurement after %v, want >= min interval", elapsed)
	}
}

func TestIIO_CancelledDuringDelay(t *testing.T) {
	s, _ := NewIIO(fakeIIO(t, "23000", "41000"), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	f := s.Measure(ctx)
	cancel()

	_, err := await(t, f)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Measure() error = %v, want context.Canceled", err)
	}
}

func TestNewIIO_RequiresDevice(t *testing.T) {
	if _, err := NewIIO("", 0); !errors.Is(err, ErrDeviceRequired) {
		t.Errorf("NewIIO(\"\") error = %v, want ErrDeviceRequired", err)
	}
}

// ============================================================================
// Simulated
// ============================================================================

func TestSimulated_Deterministic(t *testing.T) {
	a, b := NewSimulated(0), NewSimulated(0)
	for i := 0; i < 100; i++ {
		ra, _ := a.Measure(context.Background()).Result()
		rb, _ := b.Measure(context.Background()).Result()
		if ra != rb {
			t.Fatalf("measurement %d differs: %+v vs %+v", i+1, ra, rb)
		}
		if ra.Temperature < simBaseTemperature-simSwing || ra.Temperature > simBaseTemperature+simSwing {
			t.Errorf("measurement %d temperature %d out of swing", i+1, ra.Temperature)
		}
	}
}

func TestSimulated_FailEvery(t *testing.T) {
	s := NewSimulated(3)
	for i := 1; i <= 6; i++ {
		f := s.Measure(context.Background())
		if !f.Ready() {
			t.Fatal("simulated measurement not immediate")
		}
		_, err := f.Result()
		wantFail := i%3 == 0
		if (err != nil) != wantFail {
			t.Errorf("measurement %d error = %v, want failure %v", i, err, wantFail)
		}
		if err != nil && !errors.Is(err, ErrSimulatedFailure) {
			t.Errorf("measurement %d error = %v, want ErrSimulatedFailure", i, err)
		}
	}
}

// ============================================================================
// New
// ============================================================================

func TestNew(t *testing.T) {
	dir := fakeIIO(t, "23000", "41000")

	tests := []struct {
		name    string
		cfg     config.SensorConfig
		want    string
		wantErr error
	}{
		{"iio", config.SensorConfig{Driver: "iio", Device: dir}, "*sensor.IIO", nil},
		{"simulated", config.SensorConfig{Driver: "simulated"}, "*sensor.Simulated", nil},
		{"iio without device", config.SensorConfig{Driver: "iio"}, "", ErrDeviceRequired},
		{"unknown", config.SensorConfig{Driver: "bme280"}, "", ErrUnknownDriver},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("New() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			switch s.(type) {
			case *IIO:
				if tt.want != "*sensor.IIO" {
					t.Errorf("New() = %T, want %s", s, tt.want)
				}
			case *Simulated:
				if tt.want != "*sensor.Simulated" {
					t.Errorf("New() = %T, want %s", s, tt.want)
				}
			}
		})
	}
}
