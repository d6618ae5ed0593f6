// Package collector stores telemetry published by sensor nodes.
//
// A Collector subscribes to the telemetry topic through the shared MQTT
// client, decodes each payload with whichever telemetry codec produced it,
// and records the sample in SQLite. When an InfluxDB mirror is configured
// every stored sample is also forwarded there. Payloads that cannot be
// decoded are kept in a separate table rather than dropped.
//
// Samples carry a per-boot sequence number. The collector tracks the last
// sequence seen on each topic and logs gaps (lost or failed measurements)
// and resets (device restarts).
package collector
