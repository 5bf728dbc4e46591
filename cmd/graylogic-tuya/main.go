// Gray Logic Tuya Bridge
//
// This is the main entry point for the Tuya cloud bridge. The bridge
// mirrors a Tuya/Smart Life account onto the local Gray Logic MQTT bus:
//   - Commands arriving on graylogic/command/tuya/{device_id} are
//     translated to cloud function calls
//   - Realtime status pushed by the cloud is decrypted, normalized and
//     published on graylogic/state/tuya/{device_id}
//   - Device lifecycle (rename, online/offline, removal) is kept in sync
//
// The bridge is a leaf node: it holds no automation logic and exposes
// only a read-only status API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-tuya/internal/api"
	"github.com/nerrad567/gray-logic-tuya/internal/bridge"
	"github.com/nerrad567/gray-logic-tuya/internal/history"
	"github.com/nerrad567/gray-logic-tuya/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tuya/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-tuya/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-tuya/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-tuya/internal/store"
	"github.com/nerrad567/gray-logic-tuya/internal/tuya"
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
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Tuya bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
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

	// Open database
	db, err := database.Open(database.Config{
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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Device mirror and session persistence
	st := store.New(db)

	// Cloud client. Missing credentials are not fatal: the bridge starts,
	// reports degraded through health, and waits for provisioning.
	if !cfg.Tuya.Configured() {
		log.Warn("cloud credentials not configured; bridge will report degraded until provided")
	}
	cloud := tuya.NewClient(tuya.Options{
		Endpoint:    cfg.Tuya.Endpoint(),
		AccessID:    cfg.Tuya.AccessID,
		AccessKey:   cfg.Tuya.AccessKey,
		Username:    cfg.Tuya.Username,
		Password:    cfg.Tuya.Password,
		CountryCode: cfg.Tuya.CountryCode,
		AppSchema:   cfg.Tuya.AppSchema,
		Lang:        cfg.Tuya.Lang,
	}, nil, st, log)
	cloud.SetOnSession(func(s tuya.Session, err error) {
		if err != nil {
			log.Warn("cloud session refresh failed", "error", err)
			return
		}
		log.Info("cloud session established", "uid", s.UID)
	})

	// Realtime push channel: fetches fresh credentials from the cloud
	// before every connect attempt.
	transport := tuya.NewTransport(cloud.HubConfig, nil, log)

	// Connect to local MQTT broker
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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB event history (optional)
	var recorder *history.Recorder
	if cfg.InfluxDB.Enabled {
		recorder, err = history.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := recorder.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		recorder.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("event history disabled")
	}

	// Assemble and start the bridge
	opts := bridge.Options{
		Config:   cfg,
		MQTT:     mqttClient,
		Cloud:    cloud,
		Realtime: transport,
		Store:    st,
		Logger:   log,
		Version:  version,
	}
	if recorder != nil {
		opts.History = recorder
	}

	b, err := bridge.New(opts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		b.Stop()
	}()
	log.Info("bridge started", "bridge_id", cfg.Bridge.ID)

	// Start status API (optional)
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log,
			Store:   st,
			Bridge:  b,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		log.Info("API listening",
			"host", cfg.API.Host,
			"port", cfg.API.Port,
		)
	} else {
		log.Info("API disabled")
	}

	// Verify all infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient, recorder); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (if enabled)
	// 2. Bridge (closes realtime channel and cloud session)
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("Gray Logic Tuya bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_TUYA_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_TUYA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - recorder: Event history recorder to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, recorder *history.Recorder) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	// Check InfluxDB (if enabled)
	if recorder != nil {
		if err := recorder.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// Cloud session and realtime channel health are reported continuously
	// through the MQTT health topic rather than gating startup: the bridge
	// must come up even when the cloud is unreachable.

	return nil
}
