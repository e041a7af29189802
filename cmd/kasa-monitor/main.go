// Kasa Monitor - Smart Plug Energy History
//
// This is the main entry point for the Kasa Monitor history service.
// It serves historical power metrics and data-range discovery for
// Kasa smart plugs over a REST API, reading from either the local
// SQLite readings store or InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/xante8088/kasa-monitor-sub002/migrations"

	"github.com/xante8088/kasa-monitor-sub002/internal/api"
	"github.com/xante8088/kasa-monitor-sub002/internal/history"
	"github.com/xante8088/kasa-monitor-sub002/internal/infrastructure/config"
	"github.com/xante8088/kasa-monitor-sub002/internal/infrastructure/database"
	"github.com/xante8088/kasa-monitor-sub002/internal/infrastructure/influxdb"
	"github.com/xante8088/kasa-monitor-sub002/internal/infrastructure/logging"
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
	log.Info("starting Kasa Monitor",
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

	// Connect to InfluxDB (only needed when it backs the history engine)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Select the history backend
	backend, err := selectBackend(cfg, db, influxClient)
	if err != nil {
		return err
	}
	log.Info("history backend selected", "backend", backend.Name())

	// Build the history service
	historyService := history.NewService(history.Deps{
		Backend:      backend,
		Cache:        history.NewCache(nil),
		Logger:       log,
		QueryTimeout: cfg.GetQueryTimeout(),
	})

	// Start the API server
	apiServer, err := api.New(api.Deps{
		Config:  cfg.API,
		Logger:  log,
		History: historyService,
		Version: version,
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
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. Database

	log.Info("Kasa Monitor stopped")
	return nil
}

// selectBackend wires the history backend named in the configuration.
//
// Parameters:
//   - cfg: Application configuration
//   - db: Open readings database
//   - influxClient: Connected InfluxDB client (nil when disabled)
//
// Returns:
//   - history.Backend: The configured backend
//   - error: If the selection is invalid or its store is unavailable
func selectBackend(cfg *config.Config, db *database.DB, influxClient *influxdb.Client) (history.Backend, error) {
	switch cfg.History.Backend {
	case config.HistoryBackendSQLite:
		return history.NewSQLiteBackend(db), nil
	case config.HistoryBackendInfluxDB:
		if influxClient == nil {
			return nil, fmt.Errorf("history backend is influxdb but influxdb is disabled")
		}
		return history.NewInfluxBackend(influxClient, influxClient.Bucket(), influxClient.Measurement()), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}
}

// getConfigPath returns the configuration file path.
// Uses KASA_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("KASA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//   - apiServer: API server to check
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client, apiServer *api.Server) error {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(checkCtx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := apiServer.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}
