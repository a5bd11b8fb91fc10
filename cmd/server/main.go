/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the MedTrack dose engine server. Handles
  configuration, dependency injection, the background sweeper lifecycle,
  and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load YAML config
  2. Initialize the SQLite store
  3. Build the engine (thresholds, clock, timezone from config)
  4. Start the reconciliation sweeper
  5. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config file path (optional; defaults apply without one)
  -port    HTTP server port (overrides config)
  -db      SQLite database path (overrides config; ":memory:" supported)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweeper, waiting for an in-flight sweep
  4. Close the database

SEE ALSO:
  - config/config.go: Configuration schema and defaults
  - api/server.go: Router configuration
  - api/sweeper.go: Background reconciliation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nishu1044/MedTrack/api"
	"github.com/Nishu1044/MedTrack/config"
	"github.com/Nishu1044/MedTrack/engine"
	"github.com/Nishu1044/MedTrack/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "YAML config file path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Server.DB = *dbPath
	}

	log := newLogger(cfg.Logging)

	thresholds, err := cfg.EngineThresholds()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid thresholds")
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid timezone")
	}
	sweepInterval, err := cfg.SweepInterval()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid sweep interval")
	}

	store, err := sqlite.New(cfg.Server.DB)
	if err != nil {
		log.Fatal().Err(err).Str("db", cfg.Server.DB).Msg("failed to initialize database")
	}
	defer store.Close()

	clock := engine.SystemClock{}
	eng := engine.New(store, engine.Options{
		Clock:          clock,
		Thresholds:     thresholds,
		Location:       loc,
		TimesPerDayCap: cfg.TimesPerDayCap,
		Logger:         log.With().Str("component", "engine").Logger(),
	})

	sweeper := api.NewSweeper(eng, clock, log.With().Str("component", "sweeper").Logger())
	sweeper.Interval = sweepInterval
	sweeper.Enabled = cfg.SweepEnabled()
	sweeper.Start()
	defer sweeper.Stop()

	handler := api.NewHandler(eng, sweeper, log.With().Str("component", "api").Logger())
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Dur("grace", thresholds.Grace).
			Dur("missed", thresholds.Missed).
			Dur("action_cutoff", thresholds.ActionCutoff).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}

	log.Info().Msg("server stopped")
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.Console {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}
