package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/docredact/internal/classifier"
	"github.com/JonMunkholm/docredact/internal/config"
	"github.com/JonMunkholm/docredact/internal/core"
	"github.com/JonMunkholm/docredact/internal/export"
	"github.com/JonMunkholm/docredact/internal/handler"
	"github.com/JonMunkholm/docredact/internal/jobs"
	"github.com/JonMunkholm/docredact/internal/logging"
	"github.com/JonMunkholm/docredact/internal/warehouse"
	"github.com/JonMunkholm/docredact/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	// Format handlers
	registry := core.NewRegistry()
	handler.RegisterAll(registry)
	slog.Info("handlers registered", "count", registry.Count(), "formats", registry.Formats())

	limiter := core.NewLimiter(cfg.Redact.MaxConcurrent, cfg.Redact.MaxWaitTime)
	engine := core.NewEngine(registry,
		core.WithLimiter(limiter),
		core.WithOutputPrefix(cfg.Redact.OutputPrefix),
		core.WithTimeout(cfg.Redact.Timeout),
		core.WithBatchParallelism(cfg.Redact.BatchParallelism),
	)

	// Extraction backend: staged uploads first, then the warehouse.
	ctx := context.Background()
	staged := jobs.NewStagedParser(registry)
	parsers := jobs.ChainParser{staged}

	var store *warehouse.Store
	if cfg.Warehouse.Enabled() {
		store, err = warehouse.Connect(ctx, cfg.Warehouse)
		if err != nil {
			slog.Error("failed to connect to warehouse", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		parsers = append(parsers, store)
		slog.Info("connected to warehouse", "table", store.Table())
	} else {
		slog.Info("warehouse disabled, jobs read staged uploads only")
	}

	pipeline := jobs.Pipeline{Parser: parsers}
	if cfg.Classifier.URL != "" {
		pipeline.Classifier = classifier.New(cfg.Classifier.URL, cfg.Classifier.Timeout)
	} else {
		slog.Warn("classifier disabled, jobs return empty entity maps")
	}

	orchestrator := jobs.New(pipeline, jobs.Options{
		MaxWait:        cfg.Jobs.MaxWait,
		BackingTimeout: cfg.Jobs.BackingTimeout,
		Retention:      cfg.Jobs.Retention,
		Limiter:        core.NewLimiter(cfg.Jobs.MaxConcurrent, cfg.Jobs.BackingTimeout),
	})

	deps := web.Deps{
		Engine:   engine,
		Exporter: export.New(),
		Jobs:     orchestrator,
		Staged:   staged,
		Limiter:  limiter,
	}
	if store != nil {
		deps.Documents = store
	}
	server := web.NewServer(deps, cfg)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go orchestrator.RunSweeper(jobCtx, cfg.Jobs.SweepInterval)

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop background jobs
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Wait for active redactions to complete (with timeout)
		if st := limiter.Status(); st.Active > 0 {
			slog.Info("waiting for redactions to complete", "active", st.Active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("redactions did not complete in time", "error", err)
			}
		}

		if err := orchestrator.Close(shutdownCtx); err != nil {
			slog.Warn("extraction jobs did not stop in time", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-shutdownDone
	slog.Info("server stopped")
}
