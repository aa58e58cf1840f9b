// Trazo Core - Environmental Control Arbitration Engine
//
// This is the main entry point for the Trazo Core application.
// Trazo Core arbitrates effective environmental setpoints for
// controlled-environment agriculture:
//   - Strict precedence: safety > e-stop > manual override > recipe > demand-response
//   - TTL-bounded manual overrides with a full audit trail
//   - Versioned grow recipes with staged, ramped, day/night setpoints
//   - Append-only hash-chained audit ledger
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/anejaagam/trazo-mvp-v1-sub007/migrations"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/api"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/arbiter"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/audit"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/control"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/infrastructure/config"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/infrastructure/database"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/infrastructure/influxdb"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/infrastructure/logging"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/infrastructure/mqtt"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/override"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/recipe"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/schedule"
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
func run(ctx context.Context) error { //nolint:gocognit // linear wiring of every subsystem
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Trazo Core",
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

	// Audit ledger first: every domain manager appends to it, and a
	// failed append must fail the state change it records.
	ledger := audit.NewLedger(audit.NewSQLiteRepository(db.DB))
	ledger.SetLogger(log)
	if loadErr := ledger.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading audit ledger: %w", loadErr)
	}
	log.Info("audit ledger loaded")

	// Recipe store
	recipeStore := recipe.NewStore(recipe.NewSQLiteRepository(db.DB), ledger)
	recipeStore.SetLogger(log)
	if refreshErr := recipeStore.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading recipe store: %w", refreshErr)
	}

	// Override manager
	overrideMgr := override.NewManager(override.NewSQLiteRepository(db.DB), ledger)
	overrideMgr.SetLogger(log)
	if refreshErr := overrideMgr.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading override manager: %w", refreshErr)
	}

	// Schedule manager
	scheduleMgr := schedule.NewManager(schedule.NewSQLiteRepository(db.DB), recipeStore, overrideMgr, ledger)
	scheduleMgr.SetLogger(log)
	if refreshErr := scheduleMgr.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading schedule manager: %w", refreshErr)
	}
	log.Info("domain state loaded",
		"overrides", len(overrideMgr.ListActive(ctx)),
		"schedules", len(scheduleMgr.ListSchedules(ctx)),
	)

	// Signal boards and the arbitration engine
	safety := arbiter.NewSignalBoard(control.PrecedenceSafety)
	estop := arbiter.NewSignalBoard(control.PrecedenceEStop)
	dr := arbiter.NewDirectiveBoard()

	engine := arbiter.NewEngine(safety, estop, dr, overrideMgr, scheduleMgr, ledger)
	engine.SetLogger(log)

	// Track every scheduled scope so the periodic re-evaluation sees
	// expiries, ramp progress, and day/night flips without traffic.
	for _, sched := range scheduleMgr.ListSchedules(ctx) {
		engine.Track(sched.Scope, control.AllParameters()...)
	}

	// Connect to MQTT broker
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

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	engine.SetPublisher(&targetPublisher{client: mqttClient})

	// Connect to InfluxDB (optional): read-only telemetry source for
	// the deadband publication gate.
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
		engine.SetTelemetry(&telemetryReader{client: influxClient, log: log})
	} else {
		log.Info("InfluxDB disabled; deadband gate always open")
	}

	// Subscribe to inbound signal topics
	if subErr := subscribeSignals(ctx, mqttClient, safety, estop, dr, overrideMgr, engine, log); subErr != nil {
		return fmt.Errorf("subscribing to signal topics: %w", subErr)
	}

	// Start the tick driver: override expiry, due activations, deferral
	// release, winner re-evaluation, directive pruning.
	sweeper := override.NewSweeper(cfg.GetTickInterval(),
		overrideMgr.Sweep,
		scheduleMgr.ApplyDue,
		scheduleMgr.ReleaseDeferrals,
		engine.Reevaluate,
		func(context.Context) (int, error) { return dr.PruneExpired(), nil },
	)
	sweeper.SetLogger(log)
	if startErr := sweeper.Start(ctx); startErr != nil {
		return fmt.Errorf("starting sweeper: %w", startErr)
	}
	defer func() {
		log.Info("stopping sweeper")
		sweeper.Stop()
	}()
	log.Info("tick driver started", "interval", cfg.GetTickInterval())

	// Start the API server
	apiServer, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log,
		Recipes:   recipeStore,
		Overrides: overrideMgr,
		Schedules: scheduleMgr,
		Engine:    engine,
		Ledger:    ledger,
		Safety:    safety,
		EStop:     estop,
		DR:        dr,
		MQTT:      mqttClient,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. Sweeper
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("Trazo Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses TRAZO_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TRAZO_CONFIG"); path != "" {
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
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(checkCtx)

	g.Go(func() error {
		if err := db.HealthCheck(gctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := mqttClient.HealthCheck(gctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		return nil
	})
	if influxClient != nil {
		g.Go(func() error {
			if err := influxClient.HealthCheck(gctx); err != nil {
				return fmt.Errorf("influxdb: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}
