package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/stablebridge/bridge_service/internal/api/routes"
	"github.com/stablebridge/bridge_service/internal/infrastructure/config"
	"github.com/stablebridge/bridge_service/internal/infrastructure/database"
	"github.com/stablebridge/bridge_service/internal/infrastructure/di"
	"github.com/stablebridge/bridge_service/pkg/graceful"
	"github.com/stablebridge/bridge_service/pkg/logger"
	"github.com/stablebridge/bridge_service/pkg/tracing"

	"github.com/jmoiron/sqlx"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.Environment)

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		CollectorURL: cfg.Tracing.CollectorURL,
		Environment:  cfg.Environment,
		SampleRate:   cfg.Tracing.SampleRate,
		Insecure:     cfg.Tracing.Insecure,
	}
	tracingShutdown, err := tracing.InitTracer(context.Background(), tracingConfig, log.Zap())
	if err != nil {
		log.Fatal("Failed to initialize tracing", "error", err)
	}

	// Connect to the checkpoint database. Without one, checkpoints live in
	// process memory and do not survive restarts.
	var db *sqlx.DB
	if cfg.Database.URL != "" {
		db, err = database.NewConnection(cfg.Database)
		if err != nil {
			log.Fatal("Failed to connect to database", "error", err)
		}

		if err := database.RunMigrations(cfg.Database.URL); err != nil {
			log.Fatal("Failed to run migrations", "error", err)
		}
	} else {
		log.Warn("No database configured, using in-memory checkpoint store")
	}

	// Build the service graph
	container, err := di.NewContainer(cfg, db, log)
	if err != nil {
		log.Fatal("Failed to create DI container", "error", err)
	}
	defer container.Close()

	// Start the transfer resumer
	if err := container.Resumer.Start(); err != nil {
		log.Fatal("Failed to start transfer resumer", "error", err)
	}

	// HTTP server
	router := routes.SetupRoutes(container)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("Starting server",
			"address", server.Addr,
			"environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	shutdown := graceful.NewShutdownManager(server, db, log)
	shutdown.Register(container.Orchestrator)
	shutdown.WaitForShutdown()

	container.Resumer.Stop()

	if err := tracingShutdown(context.Background()); err != nil {
		log.Warn("Tracing shutdown error", "error", err)
	}

	log.Info("Server exited gracefully")
}
