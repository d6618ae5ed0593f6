// Package influxdb forwards collected sensor readings to InfluxDB.
//
// SQLite is the system of record; InfluxDB is an optional time-series
// mirror. The collector calls WriteReading once per stored sample and the
// influxdb-client-go write API batches the points in the background.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.Collector.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without a mirror
//	}
//	defer client.Close()
//
//	client.WriteReading(topic, sample, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Rejected batches are reported through SetOnError and counted in Stats.
// Connection and health check errors are returned directly.
package influxdb
