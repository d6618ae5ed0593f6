// Package logging builds the log/slog loggers used by the sensor node and
// the collector.
//
// Every entry carries service and version fields. Output is JSON unless
// format is "text", and goes to stdout, stderr or a size-rotated file
// (lumberjack). The level lives in a slog.LevelVar shared by all loggers
// derived with With, so SetLevel takes effect everywhere at once; the sensor
// binary toggles debug on SIGUSR1.
//
//	logging:
//	  level: info        # debug, info, warn, error
//	  format: json       # json, text
//	  output: file       # stdout, stderr, file
//	  file:
//	    path: /var/log/glsensor/sensor.log
//	    max_size: 10     # megabytes
//	    max_backups: 3
//
// Usage:
//
//	logger := logging.New(cfg.Logging, logging.ServiceSensor, version)
//	defer logger.Close()
//	logger.Info("wifi connected", "ssid", ssid)
//
// Never log WiFi passphrases or broker credentials.
package logging
