/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the WEG settlement server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load configuration (defaults, YAML file, WEG_* environment)
  3. Initialize logger, metrics and SQLite store
  4. Build assembler, plausibility checker and API handler
  5. Optionally load a demo scenario and start the validation sweep
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config    Path to a YAML config file (optional)
  -db        SQLite database path, overrides database.path
             Use ":memory:" for in-memory database
  -scenario  Demo scenario to load on startup (enables /api/scenarios)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the validation sweep
  2. Stop accepting new connections
  3. Wait for active requests to complete (server.shutdown_timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with a config file
  ./server -config=./weg.yaml

  # Demo with in-memory database
  ./server -db=":memory:" -scenario=complete-year

  # Enable the AI pass
  WEG_AI_ENABLED=true WEG_AI_URL=https://api.openai.com/v1/chat/completions \
  WEG_AI_API_KEY=sk-... ./server

SEE ALSO:
  - config/config.go: Configuration layers
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/weg-settlement/api"
	"github.com/warp/weg-settlement/config"
	"github.com/warp/weg-settlement/metrics"
	"github.com/warp/weg-settlement/plausibility"
	"github.com/warp/weg-settlement/settlement"
	"github.com/warp/weg-settlement/store/sqlite"
	"github.com/warp/weg-settlement/weg"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	scenario := flag.String("scenario", "", "demo scenario to load on startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *scenario != "" {
		cfg.Server.DemoData = true
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, *scenario, logger); err != nil {
		logger.WithError(err).Fatal("server failed")
	}
}

func run(cfg config.Config, scenario string, logger *logrus.Logger) error {
	metrics.Init()

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	thresholds, err := cfg.Thresholds()
	if err != nil {
		return err
	}

	assembler, err := settlement.NewAssembler(settlement.Sources{
		Repo:     store,
		External: store,
		Advances: store,
		Balances: store,
	}, engineCfg, logger)
	if err != nil {
		return err
	}
	checker := plausibility.NewChecker(thresholds, cfg.Provider(), store, logger)

	// Initialize handler
	handler := api.NewHandler(assembler, checker, store, store, logger)
	handler.Store = store

	if scenario != "" {
		if err := handler.LoadScenarioByID(context.Background(), scenario); err != nil {
			return err
		}
	}

	if cfg.Sweep.Enabled {
		communities := make([]weg.CommunityID, len(cfg.Sweep.Communities))
		for i, c := range cfg.Sweep.Communities {
			communities[i] = weg.CommunityID(c)
		}
		sweep := api.NewValidationScheduler(assembler, store, communities, logger)
		sweep.CheckInterval = cfg.Sweep.Interval
		handler.Sweep = sweep
		sweep.Start()
		defer sweep.Stop()
	}

	// Create router
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.CORSOrigins,
		Scenarios:      cfg.Server.DemoData,
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: thresholds.AITimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"port":      cfg.Server.Port,
			"db":        cfg.Database.Path,
			"ai":        cfg.AI.Enabled,
			"scenarios": cfg.Server.DemoData,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
