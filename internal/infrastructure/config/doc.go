// Package config loads the YAML file shared by the sensor node and the
// collector.
//
// The device section drives the node, the collector section drives the
// collector and logging applies to both. Load starts from Default, overlays
// the file, applies GLSENSOR_* environment overrides and then validates the
// whole document, reporting every problem at once.
//
// Secrets belong in the environment rather than the file:
//
//	GLSENSOR_WIFI_PASSPHRASE   device.wifi.passphrase
//	GLSENSOR_MQTT_PASSWORD     collector.mqtt.auth.password
//	GLSENSOR_INFLUXDB_TOKEN    collector.influxdb.token
//
// Keep the file itself at 0600.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
package config
