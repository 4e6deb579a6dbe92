// Halcyon Core - Beamline Control Backend
//
// This is the main entry point for the Halcyon Core application. It
// assembles the beamline instrument from configuration, connects the
// MQTT gateway bridge, and serves the REST/WebSocket API that GUIs and
// scan tools talk to.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/halcyonbeam/halcyon-core/migrations"

	"github.com/halcyonbeam/halcyon-core/internal/api"
	"github.com/halcyonbeam/halcyon-core/internal/infrastructure/config"
	"github.com/halcyonbeam/halcyon-core/internal/infrastructure/database"
	"github.com/halcyonbeam/halcyon-core/internal/infrastructure/influxdb"
	"github.com/halcyonbeam/halcyon-core/internal/infrastructure/logging"
	"github.com/halcyonbeam/halcyon-core/internal/infrastructure/mqtt"
	"github.com/halcyonbeam/halcyon-core/internal/instrument"
	"github.com/halcyonbeam/halcyon-core/internal/positions"
	sig "github.com/halcyonbeam/halcyon-core/internal/signal"
	"github.com/halcyonbeam/halcyon-core/internal/telemetry"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error allows main to handle exit codes
// consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Halcyon Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database and run migrations
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to the MQTT broker carrying gateway process variables
	mqttClient, err := mqtt.Connect(cfg.MQTT)
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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Build the instrument declared in configuration and connect every
	// control point concurrently.
	broker := &gatewayBroker{client: mqttClient}
	registry, err := instrument.Load(cfg.Instrument, broker, log)
	if err != nil {
		return fmt.Errorf("loading instrument: %w", err)
	}
	log.Info("instrument loaded", "devices", len(registry.Names()))

	if err := registry.ConnectAll(ctx, sig.DefaultTimeout); err != nil {
		return fmt.Errorf("connecting instrument: %w", err)
	}
	log.Info("instrument connected")

	// Connect to InfluxDB (optional reading and setpoint history)
	var influxClient *influxdb.Client
	var history telemetry.HistoryWriter
	var setpoints api.SetpointRecorder
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			influxClient.Close()
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		history = influxClient
		setpoints = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Fan readings out to history and the retained reading topics
	recorder := telemetry.NewRecorder(registry, history, mqttClient, log)
	recorder.Start()
	defer recorder.Stop()
	log.Info("telemetry recorder started")

	// Motor position snapshots
	positionService := positions.NewService(
		positions.NewSQLiteRepository(db.DB), registry, log)

	// REST/WebSocket API
	apiServer, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log,
		Registry:  registry,
		Positions: positionService,
		MQTT:      mqttClient,
		Setpoints: setpoints,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address",
		fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	if err := healthCheck(ctx, db, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("Halcyon Core stopped")
	return nil
}

// getConfigPath returns the configuration file path. Uses the
// HALCYON_CONFIG environment variable if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("HALCYON_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if !mqttClient.IsConnected() {
		return fmt.Errorf("mqtt: not connected")
	}
	return nil
}

// gatewayBroker adapts the infrastructure MQTT client to the bridge
// Broker interface. The client's Subscribe takes a named handler type;
// the bridge declares a plain func signature, so the adapter forwards.
type gatewayBroker struct {
	client *mqtt.Client
}

func (b *gatewayBroker) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return b.client.Publish(topic, payload, qos, retained)
}

func (b *gatewayBroker) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return b.client.Subscribe(topic, qos, handler)
}

func (b *gatewayBroker) Unsubscribe(topic string) error {
	return b.client.Unsubscribe(topic)
}

func (b *gatewayBroker) IsConnected() bool {
	return b.client.IsConnected()
}
