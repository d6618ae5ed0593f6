// Package telemetry publishes sensor readings to an MQTT broker.
//
// The Publisher is a self-healing scheduler task. Its outer loop resolves the
// broker, dials a transport connection and performs the MQTT handshake; its
// inner loop samples the sensor and publishes one message per sampling
// period. Every failure is classified:
//
//   - name resolution failure: logged, retried on the next pass with no delay
//   - dial, handshake or publish failure: logged, the connection attempt is
//     torn down and the outer loop re-runs after the reconnect delay
//   - sensor failure: logged, nothing is published this cycle and the
//     connection is kept
//
// No failure is returned from Step; the publisher runs for the life of the
// process. Samples are never buffered: a reading lost to a transport failure
// is dropped.
//
// Readings arrive from the driver in tenths of a unit and are divided by 10
// before encoding, so a driver value of 149 is published as 14.9.
package telemetry
