package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gray Logic Sensor.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Collector CollectorConfig `yaml:"collector"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig contains everything the sensor node needs to reach the broker.
type DeviceConfig struct {
	ID        string          `yaml:"id"`
	WiFi      WiFiConfig      `yaml:"wifi"`
	Network   NetworkConfig   `yaml:"network"`
	Broker    BrokerConfig    `yaml:"broker"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Retry     RetryConfig     `yaml:"retry"`
}

// WiFiConfig contains station-mode link settings.
type WiFiConfig struct {
	// Interface is the wireless network interface, e.g. "wlan0".
	Interface string `yaml:"interface"`

	SSID       string `yaml:"ssid"`
	Passphrase string `yaml:"passphrase"`

	// AssociationTimeout bounds one association attempt.
	// Default: 20s
	AssociationTimeout time.Duration `yaml:"association_timeout"`

	// Supplicant contains wpa_supplicant management settings.
	Supplicant SupplicantConfig `yaml:"supplicant"`
}

// SupplicantConfig contains settings for managing wpa_supplicant.
type SupplicantConfig struct {
	// Managed indicates whether the sensor should run wpa_supplicant itself.
	// If false, wpa_supplicant is expected to be running externally (e.g., as a systemd service).
	Managed bool `yaml:"managed"`

	// Binary is the path to the wpa_supplicant executable.
	// Default: "/sbin/wpa_supplicant"
	Binary string `yaml:"binary"`

	// ControlBinary is the path to wpa_cli, used to trigger re-association.
	// Empty disables explicit reconnect requests.
	ControlBinary string `yaml:"control_binary"`

	// ConfigPath is where the generated wpa_supplicant.conf is written.
	// Default: "/run/glsensor/wpa_supplicant.conf"
	ConfigPath string `yaml:"config_path"`

	// CtrlInterface is the wpa_supplicant control socket directory.
	// Default: "/run/wpa_supplicant"
	CtrlInterface string `yaml:"ctrl_interface"`

	// Driver is the wpa_supplicant driver backend.
	// Default: "nl80211"
	Driver string `yaml:"driver"`

	// RestartDelay is the initial delay before restarting a crashed supplicant.
	// Default: 5s
	RestartDelay time.Duration `yaml:"restart_delay"`
}

// NetworkConfig contains IP bring-up and resolution settings.
type NetworkConfig struct {
	// PollInterval is how often the stack runner refreshes interface state.
	// Default: 100ms
	PollInterval time.Duration `yaml:"poll_interval"`

	// CheckInterval is how often bring-up is re-checked without a change event.
	// Default: 500ms
	CheckInterval time.Duration `yaml:"check_interval"`

	// BringUpTimeout limits the first bring-up. 0 waits forever.
	BringUpTimeout time.Duration `yaml:"bring_up_timeout"`

	// DNSServers overrides the resolvers from ResolvConf ("host:port").
	DNSServers []string `yaml:"dns_servers"`

	// ResolvConf is read when DNSServers is empty.
	// Default: "/etc/resolv.conf"
	ResolvConf string `yaml:"resolv_conf"`

	// DNSTimeout bounds a single DNS exchange.
	// Default: 5s
	DNSTimeout time.Duration `yaml:"dns_timeout"`

	// RouteFile is the kernel routing table used to find the gateway.
	// Default: "/proc/net/route"
	RouteFile string `yaml:"route_file"`
}

// BrokerConfig contains the device's MQTT broker settings.
type BrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ClientIDPrefix is joined with a fresh UUID for every session.
	ClientIDPrefix string `yaml:"client_id_prefix"`

	// KeepAlive is the MQTT keep-alive interval in seconds.
	KeepAlive int `yaml:"keep_alive"`

	// MaxPacketSize is the largest packet the device will accept.
	MaxPacketSize int `yaml:"max_packet_size"`
}

// TelemetryConfig contains publish loop settings.
type TelemetryConfig struct {
	Topic  string `yaml:"topic"`
	QoS    int    `yaml:"qos"`
	Retain bool   `yaml:"retain"`

	// Codec is the payload encoding: "json" or "cbor".
	Codec string `yaml:"codec"`

	// SamplePeriod is the delay between samples on a live connection.
	SamplePeriod time.Duration `yaml:"sample_period"`

	// IdleTimeout bounds dial and every read or write on the connection.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ReconnectBackoff is the delay after a dial, handshake or publish failure.
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`
}

// SensorConfig selects and configures the sensor driver.
type SensorConfig struct {
	// Driver is "iio" for a Linux IIO humidity/temperature device or
	// "simulated" for bench use.
	Driver string `yaml:"driver"`

	// Device is the IIO device directory, e.g. /sys/bus/iio/devices/iio:device0.
	Device string `yaml:"device"`

	// MeasureDelay is waited before each measurement.
	MeasureDelay time.Duration `yaml:"measure_delay"`
}

// RetryConfig contains the link manager's fixed retry delays.
type RetryConfig struct {
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	DisconnectBackoff time.Duration `yaml:"disconnect_backoff"`
}

// CollectorConfig contains settings for the host-side reading collector.
type CollectorConfig struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`

	// Topic is the subscription filter. Empty uses device.telemetry.topic.
	Topic string `yaml:"topic"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	KeepAlive int                 `yaml:"keep_alive"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Credential length limits for WPA2-PSK station mode.
const (
	maxSSIDLength       = 32
	minPassphraseLength = 8
	maxPassphraseLength = 63
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GLSENSOR_SECTION_KEY
// For example: GLSENSOR_WIFI_SSID, GLSENSOR_BROKER_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := Default()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults. The WiFi SSID has no
// default and must come from the file or GLSENSOR_WIFI_SSID.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			ID: "sensor-001",
			WiFi: WiFiConfig{
				Interface:          "wlan0",
				AssociationTimeout: 20 * time.Second,
				Supplicant: SupplicantConfig{
					Managed:       true,
					Binary:        "/sbin/wpa_supplicant",
					ControlBinary: "/sbin/wpa_cli",
					ConfigPath:    "/run/glsensor/wpa_supplicant.conf",
					CtrlInterface: "/run/wpa_supplicant",
					Driver:        "nl80211",
					RestartDelay:  5 * time.Second,
				},
			},
			Network: NetworkConfig{
				PollInterval:  100 * time.Millisecond,
				CheckInterval: 500 * time.Millisecond,
				ResolvConf:    "/etc/resolv.conf",
				DNSTimeout:    5 * time.Second,
				RouteFile:     "/proc/net/route",
			},
			Broker: BrokerConfig{
				Host:           "broker.emqx.io",
				Port:           1883,
				ClientIDPrefix: "glsensor",
				KeepAlive:      60,
				MaxPacketSize:  100,
			},
			Telemetry: TelemetryConfig{
				Topic:            "testtopic/pjq/dht11",
				QoS:              1,
				Retain:           false,
				Codec:            "json",
				SamplePeriod:     5 * time.Second,
				IdleTimeout:      10 * time.Second,
				ReconnectBackoff: 5 * time.Second,
			},
			Sensor: SensorConfig{
				Driver:       "iio",
				Device:       "/sys/bus/iio/devices/iio:device0",
				MeasureDelay: 0,
			},
			Retry: RetryConfig{
				InitialBackoff:    5 * time.Second,
				DisconnectBackoff: 5 * time.Second,
			},
		},
		Collector: CollectorConfig{
			MQTT: MQTTConfig{
				Broker: MQTTBrokerConfig{
					Host:     "localhost",
					Port:     1883,
					ClientID: "glsensor-collector",
				},
				QoS:       1,
				KeepAlive: 5,
				Reconnect: MQTTReconnectConfig{
					InitialDelay: 1,
					MaxDelay:     60,
				},
			},
			Database: DatabaseConfig{
				Path:        "./data/readings.db",
				WALMode:     true,
				BusyTimeout: 5,
			},
			InfluxDB: InfluxDBConfig{
				Org:           "glsensor",
				Bucket:        "readings",
				BatchSize:     100,
				FlushInterval: 10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GLSENSOR_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// WiFi - credentials should come from the environment in production
	if v := os.Getenv("GLSENSOR_WIFI_INTERFACE"); v != "" {
		cfg.Device.WiFi.Interface = v
	}
	if v := os.Getenv("GLSENSOR_WIFI_SSID"); v != "" {
		cfg.Device.WiFi.SSID = v
	}
	if v, ok := os.LookupEnv("GLSENSOR_WIFI_PASSPHRASE"); ok {
		cfg.Device.WiFi.Passphrase = v
	}

	// Device broker
	if v := os.Getenv("GLSENSOR_BROKER_HOST"); v != "" {
		cfg.Device.Broker.Host = v
	}
	if v := os.Getenv("GLSENSOR_BROKER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GLSENSOR_BROKER_PORT: %w", err)
		}
		cfg.Device.Broker.Port = port
	}

	// Sensor
	if v := os.Getenv("GLSENSOR_SENSOR_DRIVER"); v != "" {
		cfg.Device.Sensor.Driver = v
	}

	// Collector
	if v := os.Getenv("GLSENSOR_MQTT_HOST"); v != "" {
		cfg.Collector.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GLSENSOR_MQTT_USERNAME"); v != "" {
		cfg.Collector.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GLSENSOR_MQTT_PASSWORD"); v != "" {
		cfg.Collector.MQTT.Auth.Password = v
	}
	if v := os.Getenv("GLSENSOR_DATABASE_PATH"); v != "" {
		cfg.Collector.Database.Path = v
	}
	if v := os.Getenv("GLSENSOR_INFLUXDB_TOKEN"); v != "" {
		cfg.Collector.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("GLSENSOR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, c.Device.validate()...)
	errs = append(errs, c.Collector.validate()...)

	switch c.Logging.Output {
	case "stdout", "stderr":
	case "file":
		if c.Logging.File.Path == "" {
			errs = append(errs, "logging.file.path is required when logging.output is file")
		}
	default:
		errs = append(errs, "logging.output must be stdout, stderr or file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (d *DeviceConfig) validate() []string {
	var errs []string

	// WiFi credentials: a malformed SSID or passphrase is a startup failure
	if d.WiFi.Interface == "" {
		errs = append(errs, "device.wifi.interface is required")
	}
	if n := len(d.WiFi.SSID); n == 0 || n > maxSSIDLength {
		errs = append(errs, "device.wifi.ssid must be 1-32 bytes (set GLSENSOR_WIFI_SSID environment variable)")
	}
	if n := len(d.WiFi.Passphrase); n != 0 && (n < minPassphraseLength || n > maxPassphraseLength) {
		errs = append(errs, "device.wifi.passphrase must be empty (open network) or 8-63 bytes")
	}
	if d.WiFi.AssociationTimeout <= 0 {
		errs = append(errs, "device.wifi.association_timeout must be positive")
	}
	if d.WiFi.Supplicant.Managed {
		if d.WiFi.Supplicant.Binary == "" {
			errs = append(errs, "device.wifi.supplicant.binary is required when managed")
		}
		if d.WiFi.Supplicant.ConfigPath == "" {
			errs = append(errs, "device.wifi.supplicant.config_path is required when managed")
		}
	}

	// Network
	if d.Network.PollInterval <= 0 || d.Network.CheckInterval <= 0 {
		errs = append(errs, "device.network poll_interval and check_interval must be positive")
	}
	if d.Network.BringUpTimeout < 0 {
		errs = append(errs, "device.network.bring_up_timeout must not be negative")
	}
	if len(d.Network.DNSServers) == 0 && d.Network.ResolvConf == "" {
		errs = append(errs, "device.network needs dns_servers or resolv_conf")
	}

	// Broker
	if d.Broker.Host == "" {
		errs = append(errs, "device.broker.host is required")
	}
	if d.Broker.Port < 1 || d.Broker.Port > 65535 {
		errs = append(errs, "device.broker.port must be between 1 and 65535")
	}
	if d.Broker.KeepAlive < 0 || d.Broker.KeepAlive > 65535 {
		errs = append(errs, "device.broker.keep_alive must be between 0 and 65535 seconds")
	}
	if d.Broker.MaxPacketSize < 0 {
		errs = append(errs, "device.broker.max_packet_size must not be negative")
	}

	// Telemetry
	if d.Telemetry.Topic == "" || strings.ContainsAny(d.Telemetry.Topic, "+#") {
		errs = append(errs, "device.telemetry.topic is required and must not contain wildcards")
	}
	if d.Telemetry.QoS < 0 || d.Telemetry.QoS > 1 {
		errs = append(errs, "device.telemetry.qos must be 0 or 1")
	}
	if d.Telemetry.Retain {
		errs = append(errs, "device.telemetry.retain must be false")
	}
	if d.Telemetry.Codec != "json" && d.Telemetry.Codec != "cbor" {
		errs = append(errs, "device.telemetry.codec must be json or cbor")
	}
	if d.Telemetry.SamplePeriod <= 0 || d.Telemetry.IdleTimeout <= 0 || d.Telemetry.ReconnectBackoff <= 0 {
		errs = append(errs, "device.telemetry durations must be positive")
	}

	// Sensor
	switch d.Sensor.Driver {
	case "iio":
		if d.Sensor.Device == "" {
			errs = append(errs, "device.sensor.device is required for the iio driver")
		}
	case "simulated":
	default:
		errs = append(errs, "device.sensor.driver must be iio or simulated")
	}

	// Retry
	if d.Retry.InitialBackoff <= 0 || d.Retry.DisconnectBackoff <= 0 {
		errs = append(errs, "device.retry backoffs must be positive")
	}

	return errs
}

func (c *CollectorConfig) validate() []string {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "collector.database.path is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "collector.mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "collector.mqtt.broker.port must be between 1 and 65535")
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "collector.influxdb url and bucket are required when enabled")
	}

	return errs
}

// SubscriptionTopic returns the topic the collector subscribes to.
func (c *Config) SubscriptionTopic() string {
	if c.Collector.Topic != "" {
		return c.Collector.Topic
	}
	return c.Device.Telemetry.Topic
}

// GetKeepAlive returns the broker keep-alive as a Duration.
func (b BrokerConfig) GetKeepAlive() time.Duration {
	return time.Duration(b.KeepAlive) * time.Second
}
