// Gray Logic Sensor collector
//
// The collector subscribes to the telemetry topic, stores every reading in
// SQLite and optionally mirrors it to InfluxDB. Payloads that cannot be
// decoded are kept in a separate table for inspection.
//
// Run with -recent N to print the newest N stored readings as JSON and exit.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-sensor/migrations"

	"github.com/nerrad567/gray-logic-sensor/internal/collector"
	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// options are the command-line settings.
type options struct {
	configPath string
	recent     int
	prune      time.Duration
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	flags := flag.NewFlagSet("glsensor-collector", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.StringVar(&opts.configPath, "config", getConfigPath(), "path to the YAML configuration file")
	flags.IntVar(&opts.recent, "recent", 0, "print the newest N readings as JSON and exit")
	flags.DurationVar(&opts.prune, "prune", 0, "delete stored messages older than this at startup")
	if err := flags.Parse(args); err != nil {
		return options{}, fmt.Errorf("parsing flags: %w", err)
	}
	if opts.recent < 0 {
		return options{}, errors.New("-recent must not be negative")
	}
	if opts.prune < 0 {
		return options{}, errors.New("-prune must not be negative")
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//   - stdout: Destination for -recent output
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	log := logging.Default()
	log.Info("starting Gray Logic Sensor collector",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", opts.configPath)

	log = logging.New(cfg.Logging, logging.ServiceCollector, version)
	defer log.Close()

	// Open database
	db, err := database.Open(database.ConfigFrom(cfg.Collector.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	schema, err := db.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	log.Info("database ready", "path", db.Path(), "schema", schema.Current())

	store := collector.NewStore(db.DB)

	if opts.prune > 0 {
		removed, pruneErr := store.Prune(ctx, opts.prune)
		if pruneErr != nil {
			return fmt.Errorf("pruning: %w", pruneErr)
		}
		log.Info("pruned old messages", "older_than", opts.prune, "removed", removed)
		if removed > 0 {
			if cpErr := db.Checkpoint(ctx); cpErr != nil {
				log.Warn("checkpoint after prune failed", "error", cpErr)
			}
		}
	}

	if opts.recent > 0 {
		return printRecent(ctx, store, opts.recent, stdout)
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.Collector.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Collector.MQTT.Broker.Host, cfg.Collector.MQTT.Broker.Port),
		"client_id", cfg.Collector.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.Collector.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.Collector.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.Collector.InfluxDB.URL,
			"org", cfg.Collector.InfluxDB.Org,
			"bucket", cfg.Collector.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	deps := collector.Deps{
		Subscriber: mqttClient,
		Store:      store,
		Logger:     log,
	}
	if influxClient != nil {
		deps.Mirror = influxClient
	}

	coll, err := collector.New(collector.Config{
		Topic: cfg.SubscriptionTopic(),
		QoS:   byte(cfg.Collector.MQTT.QoS), //nolint:gosec // validated 0-2
	}, deps)
	if err != nil {
		return fmt.Errorf("creating collector: %w", err)
	}
	if err := coll.Start(); err != nil {
		return fmt.Errorf("starting collector: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if err := coll.Stop(); err != nil {
		log.Warn("error stopping collector", "error", err)
	}
	if influxClient != nil {
		influxClient.Flush()
		ist := influxClient.Stats()
		log.Info("influxdb mirror flushed", "points", ist.Points, "write_errors", ist.WriteErrors)
	}

	st := coll.Stats()
	log.Info("collector stopped",
		"received", st.Received,
		"stored", st.Stored,
		"rejected", st.Rejected,
		"gaps", st.Gaps,
		"resets", st.Resets,
		"duplicates", st.Duplicates,
		"retained", st.Retained,
	)
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

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// recentReading is the -recent output row.
type recentReading struct {
	ID          int64     `json:"id"`
	ReceivedAt  time.Time `json:"received_at"`
	Topic       string    `json:"topic"`
	Codec       string    `json:"codec"`
	Sequence    uint32    `json:"sequence"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
}

func printRecent(ctx context.Context, store *collector.Store, limit int, w io.Writer) error {
	records, err := store.Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("listing readings: %w", err)
	}

	rows := make([]recentReading, 0, len(records))
	for _, r := range records {
		rows = append(rows, recentReading{
			ID:          r.ID,
			ReceivedAt:  r.ReceivedAt,
			Topic:       r.Topic,
			Codec:       r.Codec,
			Sequence:    r.Sample.Sequence,
			Temperature: r.Sample.Temperature,
			Humidity:    r.Sample.Humidity,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("writing readings: %w", err)
	}
	return nil
}
