// Package mqtt provides the MQTT v3.1.1 client used by the host-side
// reading collector.
//
// Sensor nodes publish over their own MQTT v5 session (internal/host). The
// collector only listens, so this client subscribes and never publishes
// application data:
//
//	Sensor node → MQTT Broker → Collector → SQLite / InfluxDB
//
// The package manages:
//   - Connection to the broker with auto-reconnect
//   - Topic subscriptions with wildcard validation, restored after reconnect
//   - A retained presence message on glsensor/collector/{client_id}/status,
//     backed by a Last Will for unclean exits
//   - Delivery counters and panic containment for handlers
//
// Sensor payloads are not authenticated; treat them as untrusted input.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.Collector.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("testtopic/pjq/dht11", 1, func(msg mqtt.Message) error {
//	    if msg.Retained {
//	        return nil
//	    }
//	    return store(msg.Topic, msg.Payload)
//	})
package mqtt
