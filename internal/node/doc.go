// Package node assembles the sensor node's fixed task set.
//
// Build turns the device section of the configuration and a set of
// hardware adapters into four scheduler tasks, registered in this order:
//
//  1. link.Manager     keeps the WiFi link associated
//  2. netstack.Runner  polls the IP stack and signals changes
//  3. netstack.Monitor gates telemetry on link-up plus an address
//  4. telemetry.Publisher samples the sensor and publishes to the broker
//
// The adapters are interfaces, so the same wiring runs against the Linux
// host adapters in cmd/sensor and against fakes in tests.
package node
