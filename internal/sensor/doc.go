// Package sensor provides temperature/humidity drivers for the telemetry
// publisher.
//
// IIO reads a DHT11/DHT22 bound to the Linux dht11 IIO driver through sysfs.
// Simulated generates deterministic readings for bench use without hardware.
// Both return readings in tenths of a unit and complete scheduler futures, so
// a slow or failing measurement never blocks the scheduler.
package sensor
