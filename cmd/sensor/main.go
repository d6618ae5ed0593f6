// Gray Logic Sensor - WiFi/MQTT telemetry node
//
// This is the entry point for the sensor node. It brings the station link
// up, waits for the IP stack to be configured, then samples the attached
// temperature/humidity sensor and publishes each reading to the broker.
//
// Every long-running activity is a cooperative task on one scheduler; see
// internal/node for how they are wired.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-sensor/internal/host"
	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sensor/internal/node"
	"github.com/nerrad567/gray-logic-sensor/internal/scheduler"
	"github.com/nerrad567/gray-logic-sensor/internal/sensor"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on Ctrl+C or SIGTERM for a graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("glsensor", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	configPath := flags.String("config", getConfigPath(), "path to the YAML configuration file")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Sensor",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", *configPath)

	log = logging.New(cfg.Logging, logging.ServiceSensor, version)
	defer log.Close()
	log = log.With("device_id", cfg.Device.ID)

	debugToggle := make(chan os.Signal, 1)
	signal.Notify(debugToggle, syscall.SIGUSR1)
	defer signal.Stop(debugToggle)
	go toggleDebugOnSignal(ctx, debugToggle, log, cfg.Logging.Level)

	hw, closeHW, err := buildHardware(cfg.Device, log)
	if err != nil {
		return err
	}
	defer closeHW()

	n, err := node.Build(cfg.Device, hw, log)
	if err != nil {
		return fmt.Errorf("building node: %w", err)
	}
	log.Info("node ready",
		"interface", cfg.Device.WiFi.Interface,
		"ssid", cfg.Device.WiFi.SSID,
		"broker", fmt.Sprintf("%s:%d", cfg.Device.Broker.Host, cfg.Device.Broker.Port),
		"topic", cfg.Device.Telemetry.Topic,
		"sensor", cfg.Device.Sensor.Driver,
	)

	runErr := n.Run(ctx)

	st := n.Status()
	log.Info("node stopped",
		"link", st.Link,
		"link_attempts", st.LinkAttempts,
		"network", st.Network,
		"publishes", st.Telemetry.Publishes,
		"publish_failures", st.Telemetry.PublishFailures,
		"sensor_failures", st.Telemetry.SensorFailures,
	)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("running node: %w", runErr)
	}

	log.Info("Gray Logic Sensor stopped")
	return nil
}

// getConfigPath returns the default configuration file path.
// Uses GLSENSOR_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GLSENSOR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// toggleDebugOnSignal flips between debug and the configured level on each
// signal, so a misbehaving node can be inspected without a restart.
func toggleDebugOnSignal(ctx context.Context, sig <-chan os.Signal, log *logging.Logger, configured string) {
	debug := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			debug = !debug
			level := configured
			if debug {
				level = "debug"
			}
			log.SetLevel(level)
			log.Warn("log level changed", "level", log.Level().String())
		}
	}
}

// buildHardware creates the Linux host adapters. The returned func releases
// the radio and must be called after the node stops.
func buildHardware(cfg config.DeviceConfig, log *logging.Logger) (node.Hardware, func(), error) {
	radio, err := host.NewRadio(host.RadioConfig{
		Interface:          cfg.WiFi.Interface,
		ConfigPath:         cfg.WiFi.Supplicant.ConfigPath,
		CtrlInterface:      cfg.WiFi.Supplicant.CtrlInterface,
		Managed:            cfg.WiFi.Supplicant.Managed,
		Binary:             cfg.WiFi.Supplicant.Binary,
		Driver:             cfg.WiFi.Supplicant.Driver,
		RestartDelay:       cfg.WiFi.Supplicant.RestartDelay,
		ControlBinary:      cfg.WiFi.Supplicant.ControlBinary,
		AssociationTimeout: cfg.WiFi.AssociationTimeout,
	})
	if err != nil {
		return node.Hardware{}, nil, fmt.Errorf("creating radio: %w", err)
	}
	radio.SetLogger(log)

	stack, err := host.NewStack(host.StackConfig{
		Interface:  cfg.WiFi.Interface,
		DNSServers: cfg.Network.DNSServers,
		ResolvConf: cfg.Network.ResolvConf,
		DNSTimeout: cfg.Network.DNSTimeout,
		RouteFile:  cfg.Network.RouteFile,
	})
	if err != nil {
		return node.Hardware{}, nil, fmt.Errorf("creating ip stack: %w", err)
	}
	stack.SetLogger(log)

	transport := host.NewTransport()
	transport.SetLogger(log)

	sens, err := sensor.New(cfg.Sensor)
	if err != nil {
		return node.Hardware{}, nil, fmt.Errorf("creating sensor: %w", err)
	}

	closeHW := func() {
		if closeErr := radio.Close(); closeErr != nil {
			log.Error("error closing radio", "error", closeErr)
		}
	}

	return node.Hardware{
		Radio:     radio,
		Stack:     stack,
		Transport: transport,
		Sessions:  host.NewSessionFactory(0, log),
		Sensor:    sens,
		Clock:     scheduler.SystemClock,
	}, closeHW, nil
}
