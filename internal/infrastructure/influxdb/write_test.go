package influxdb

import (
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-sensor/internal/telemetry"
)

func TestReadingPoint(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sample := telemetry.NewSample(42, telemetry.Reading{Temperature: -52, Humidity: 875})

	p := readingPoint("testtopic/pjq/dht11", sample, at)

	if p.Name() != readingMeasurement {
		t.Errorf("Name() = %q, want %q", p.Name(), readingMeasurement)
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}

	tags := p.TagList()
	if len(tags) != 1 || tags[0].Key != "topic" || tags[0].Value != "testtopic/pjq/dht11" {
		t.Errorf("TagList() = %+v, want single topic tag", tags)
	}

	fields := make(map[string]any)
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if got, ok := fields["sequence"].(int64); !ok || got != 42 {
		t.Errorf("sequence = %v, want 42", fields["sequence"])
	}
	if got, ok := fields["temperature"].(float64); !ok || got != -5.2 {
		t.Errorf("temperature = %v, want -5.2", fields["temperature"])
	}
	if got, ok := fields["humidity"].(float64); !ok || got != 87.5 {
		t.Errorf("humidity = %v, want 87.5", fields["humidity"])
	}
}
