package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-sensor/internal/telemetry"
)

// readingMeasurement is the measurement collected samples land in.
const readingMeasurement = "readings"

// WriteReading queues one collected sample. It never blocks on the network.
func (c *Client) WriteReading(topic string, sample telemetry.Sample, receivedAt time.Time) {
	if c == nil || c.writer == nil || c.closed.Load() {
		return
	}
	c.writer.WritePoint(readingPoint(topic, sample, receivedAt))
	c.points.Add(1)
}

// readingPoint builds the point for one sample, tagged by topic. The
// sequence is a signed integer field so restarts do not break the series
// type.
func readingPoint(topic string, sample telemetry.Sample, receivedAt time.Time) *write.Point {
	return write.NewPoint(
		readingMeasurement,
		map[string]string{"topic": topic},
		map[string]any{
			"sequence":    int64(sample.Sequence),
			"temperature": sample.Temperature,
			"humidity":    sample.Humidity,
		},
		receivedAt,
	)
}
