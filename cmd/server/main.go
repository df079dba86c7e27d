package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/tableinsert/internal/application"
	"github.com/JonMunkholm/tableinsert/internal/config"
	"github.com/JonMunkholm/tableinsert/internal/logging"
	"github.com/JonMunkholm/tableinsert/internal/web"
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

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store", cfg.Store.Backend,
		"workers", cfg.Insert.Workers,
		"max_attempts", cfg.Insert.MaxAttempts,
		"default_table", cfg.Insert.DefaultTable,
	)

	rt, err := application.New(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(rt, cfg)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop accepting requests before draining inserts
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		status := rt.Pool.Status()
		if status.Active > 0 {
			slog.Info("waiting for inserts to complete", "active", status.Active)
		}
		if err := rt.Shutdown(shutdownCtx); err != nil {
			slog.Warn("inserts did not complete in time", "error", err)
		} else {
			slog.Info("all inserts completed")
		}
	}()

	// Start server (uses addr from config internally)
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		rt.Shutdown(context.Background())
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
