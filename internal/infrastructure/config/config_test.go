package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// validConfig returns defaults with the one required field set.
func validConfig() *Config {
	cfg := Default()
	cfg.Device.WiFi.SSID = "greenhouse"
	cfg.Device.WiFi.Passphrase = "hunter2hunter2"
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
device:
  id: "bench-07"
  wifi:
    interface: "wlp2s0"
    ssid: "greenhouse"
    passphrase: "hunter2hunter2"
    association_timeout: 15s
    supplicant:
      managed: false
  network:
    bring_up_timeout: 2m
    dns_servers: ["1.1.1.1:53"]
  broker:
    host: "mqtt.local"
    port: 1884
  telemetry:
    topic: "greenhouse/bench-07/climate"
    codec: "cbor"
    sample_period: 10s
  sensor:
    driver: "simulated"
collector:
  database:
    path: "/tmp/readings.db"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Device.ID != "bench-07" {
		t.Errorf("Device.ID = %q, want %q", cfg.Device.ID, "bench-07")
	}
	if cfg.Device.WiFi.Interface != "wlp2s0" {
		t.Errorf("WiFi.Interface = %q, want %q", cfg.Device.WiFi.Interface, "wlp2s0")
	}
	if cfg.Device.WiFi.AssociationTimeout != 15*time.Second {
		t.Errorf("WiFi.AssociationTimeout = %v, want 15s", cfg.Device.WiFi.AssociationTimeout)
	}
	if cfg.Device.WiFi.Supplicant.Managed {
		t.Error("Supplicant.Managed = true, want false")
	}
	if cfg.Device.Network.BringUpTimeout != 2*time.Minute {
		t.Errorf("Network.BringUpTimeout = %v, want 2m", cfg.Device.Network.BringUpTimeout)
	}
	if cfg.Device.Broker.Host != "mqtt.local" || cfg.Device.Broker.Port != 1884 {
		t.Errorf("Broker = %s:%d, want mqtt.local:1884", cfg.Device.Broker.Host, cfg.Device.Broker.Port)
	}
	if cfg.Device.Telemetry.Codec != "cbor" {
		t.Errorf("Telemetry.Codec = %q, want cbor", cfg.Device.Telemetry.Codec)
	}
	if cfg.Device.Telemetry.SamplePeriod != 10*time.Second {
		t.Errorf("Telemetry.SamplePeriod = %v, want 10s", cfg.Device.Telemetry.SamplePeriod)
	}

	// Unset fields keep their defaults.
	if cfg.Device.Telemetry.IdleTimeout != 10*time.Second {
		t.Errorf("Telemetry.IdleTimeout = %v, want 10s", cfg.Device.Telemetry.IdleTimeout)
	}
	if cfg.Device.Retry.DisconnectBackoff != 5*time.Second {
		t.Errorf("Retry.DisconnectBackoff = %v, want 5s", cfg.Device.Retry.DisconnectBackoff)
	}
	if cfg.SubscriptionTopic() != "greenhouse/bench-07/climate" {
		t.Errorf("SubscriptionTopic() = %q", cfg.SubscriptionTopic())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingSSID(t *testing.T) {
	content := `
device:
  broker:
    host: "mqtt.local"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for missing ssid, got nil")
	}
	if !strings.Contains(err.Error(), "device.wifi.ssid") {
		t.Errorf("Load() error = %v, want mention of device.wifi.ssid", err)
	}
}

func TestLoad_SSIDFromEnvironment(t *testing.T) {
	t.Setenv("GLSENSOR_WIFI_SSID", "from-env")
	t.Setenv("GLSENSOR_WIFI_PASSPHRASE", "")

	cfg, err := Load(writeConfig(t, "device:\n  id: env\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Device.WiFi.SSID != "from-env" {
		t.Errorf("WiFi.SSID = %q, want from-env", cfg.Device.WiFi.SSID)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"open network", func(c *Config) { c.Device.WiFi.Passphrase = "" }, false},
		{"missing ssid", func(c *Config) { c.Device.WiFi.SSID = "" }, true},
		{"ssid too long", func(c *Config) { c.Device.WiFi.SSID = strings.Repeat("x", 33) }, true},
		{"passphrase too short", func(c *Config) { c.Device.WiFi.Passphrase = "1234567" }, true},
		{"passphrase too long", func(c *Config) { c.Device.WiFi.Passphrase = strings.Repeat("p", 64) }, true},
		{"missing broker host", func(c *Config) { c.Device.Broker.Host = "" }, true},
		{"invalid port low", func(c *Config) { c.Device.Broker.Port = 0 }, true},
		{"invalid port high", func(c *Config) { c.Device.Broker.Port = 70000 }, true},
		{"invalid QoS", func(c *Config) { c.Device.Telemetry.QoS = 3 }, true},
		{"QoS 2 above ceiling", func(c *Config) { c.Device.Telemetry.QoS = 2 }, true},
		{"QoS 0 allowed", func(c *Config) { c.Device.Telemetry.QoS = 0 }, false},
		{"retained telemetry", func(c *Config) { c.Device.Telemetry.Retain = true }, true},
		{"wildcard topic", func(c *Config) { c.Device.Telemetry.Topic = "sensors/+/climate" }, true},
		{"unknown codec", func(c *Config) { c.Device.Telemetry.Codec = "xml" }, true},
		{"zero sample period", func(c *Config) { c.Device.Telemetry.SamplePeriod = 0 }, true},
		{"unknown sensor driver", func(c *Config) { c.Device.Sensor.Driver = "onewire" }, true},
		{"iio without device", func(c *Config) { c.Device.Sensor.Device = "" }, true},
		{"simulated without device", func(c *Config) {
			c.Device.Sensor.Driver = "simulated"
			c.Device.Sensor.Device = ""
		}, false},
		{"negative bring-up timeout", func(c *Config) { c.Device.Network.BringUpTimeout = -time.Second }, true},
		{"no dns source", func(c *Config) { c.Device.Network.ResolvConf = "" }, true},
		{"managed without binary", func(c *Config) { c.Device.WiFi.Supplicant.Binary = "" }, true},
		{"unmanaged without binary", func(c *Config) {
			c.Device.WiFi.Supplicant.Managed = false
			c.Device.WiFi.Supplicant.Binary = ""
		}, false},
		{"zero retry", func(c *Config) { c.Device.Retry.InitialBackoff = 0 }, true},
		{"missing database path", func(c *Config) { c.Collector.Database.Path = "" }, true},
		{"influx enabled without url", func(c *Config) { c.Collector.InfluxDB.Enabled = true }, true},
		{"file logging without path", func(c *Config) { c.Logging.Output = "file" }, true},
		{"unknown log output", func(c *Config) { c.Logging.Output = "syslog" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Device.WiFi.SSID = ""
	cfg.Device.Broker.Host = ""
	cfg.Collector.Database.Path = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"device.wifi.ssid", "device.broker.host", "collector.database.path"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error missing %q: %v", want, err)
		}
	}
}

func TestConfig_GetKeepAlive(t *testing.T) {
	cfg := &Config{Device: DeviceConfig{Broker: BrokerConfig{KeepAlive: 30}}}

	if got := cfg.Device.Broker.GetKeepAlive(); got != 30*time.Second {
		t.Errorf("GetKeepAlive() = %v, want 30s", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	// Set environment variables
	t.Setenv("GLSENSOR_WIFI_INTERFACE", "wlan1")
	t.Setenv("GLSENSOR_WIFI_SSID", "lab")
	t.Setenv("GLSENSOR_WIFI_PASSPHRASE", "correcthorse")
	t.Setenv("GLSENSOR_BROKER_HOST", "broker.example.com")
	t.Setenv("GLSENSOR_BROKER_PORT", "8883")
	t.Setenv("GLSENSOR_SENSOR_DRIVER", "simulated")
	t.Setenv("GLSENSOR_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GLSENSOR_MQTT_USERNAME", "testuser")
	t.Setenv("GLSENSOR_MQTT_PASSWORD", "testpass")
	t.Setenv("GLSENSOR_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GLSENSOR_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GLSENSOR_LOG_LEVEL", "debug")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"WiFi.Interface", cfg.Device.WiFi.Interface, "wlan1"},
		{"WiFi.SSID", cfg.Device.WiFi.SSID, "lab"},
		{"WiFi.Passphrase", cfg.Device.WiFi.Passphrase, "correcthorse"},
		{"Broker.Host", cfg.Device.Broker.Host, "broker.example.com"},
		{"Sensor.Driver", cfg.Device.Sensor.Driver, "simulated"},
		{"Collector.MQTT.Broker.Host", cfg.Collector.MQTT.Broker.Host, "mqtt.example.com"},
		{"Collector.MQTT.Auth.Username", cfg.Collector.MQTT.Auth.Username, "testuser"},
		{"Collector.MQTT.Auth.Password", cfg.Collector.MQTT.Auth.Password, "testpass"},
		{"Collector.Database.Path", cfg.Collector.Database.Path, "/custom/path.db"},
		{"Collector.InfluxDB.Token", cfg.Collector.InfluxDB.Token, "secret-token"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
	if cfg.Device.Broker.Port != 8883 {
		t.Errorf("Broker.Port = %d, want 8883", cfg.Device.Broker.Port)
	}
}

func TestApplyEnvOverrides_BadPort(t *testing.T) {
	t.Setenv("GLSENSOR_BROKER_PORT", "mqtt")

	if err := applyEnvOverrides(Default()); err == nil {
		t.Error("applyEnvOverrides() expected error for non-numeric port, got nil")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Device.Broker.Port != 1883 {
		t.Errorf("Default Broker.Port = %d, want 1883", cfg.Device.Broker.Port)
	}
	if cfg.Device.Telemetry.QoS != 1 || cfg.Device.Telemetry.Retain {
		t.Errorf("Default telemetry qos/retain = %d/%v, want 1/false",
			cfg.Device.Telemetry.QoS, cfg.Device.Telemetry.Retain)
	}
	if cfg.Device.Network.CheckInterval != 500*time.Millisecond {
		t.Errorf("Default Network.CheckInterval = %v, want 500ms", cfg.Device.Network.CheckInterval)
	}
	if cfg.Device.Network.BringUpTimeout != 0 {
		t.Errorf("Default Network.BringUpTimeout = %v, want 0 (wait forever)", cfg.Device.Network.BringUpTimeout)
	}
	if cfg.Device.Retry.InitialBackoff != 5*time.Second {
		t.Errorf("Default Retry.InitialBackoff = %v, want 5s", cfg.Device.Retry.InitialBackoff)
	}

	// Defaults alone are invalid: there is no SSID.
	if err := cfg.Validate(); err == nil {
		t.Error("Default().Validate() = nil, want missing ssid error")
	}
}
