// Command vdot_server serves the analysis pipeline over HTTP.
//
// Configuration comes from the environment (see package config). With
// STORE_DRIVER=postgres or sqlite, analyzed runs and snapshots are published
// to that store per X-User-ID.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lucasjlepore/vdot-analyzer/config"
	"github.com/lucasjlepore/vdot-analyzer/server"
	"github.com/lucasjlepore/vdot-analyzer/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "vdot_server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.SlogLevel())
	logger.Info("configuration loaded",
		"environment", cfg.Environment,
		"store", cfg.Store.Driver,
		"windows", cfg.Pipeline.Windows,
		"model", cfg.Pipeline.Model,
	)

	ctx := context.Background()
	sink, closer, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}()

	srv := server.New(server.Options{
		Logger:         logger,
		Pipeline:       cfg.PipelineDefaults(),
		Model:          cfg.ForecastModel(),
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Store:          sink,
	})
	return runHTTPServer(srv, cfg.Server, logger)
}

type closeFunc func() error

func (f closeFunc) Close() error { return f() }

// openStore connects the configured backend and wraps it in a circuit
// breaker. The "none" driver returns a nil sink.
func openStore(ctx context.Context, sc config.StoreConfig) (store.Sink, io.Closer, error) {
	noop := closeFunc(func() error { return nil })
	switch sc.Driver {
	case "postgres":
		pool, err := store.ConnectPostgres(ctx, sc.URL)
		if err != nil {
			return nil, noop, err
		}
		pg := store.NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, noop, err
		}
		return store.WithBreaker(pg, "postgres"), closeFunc(func() error { pool.Close(); return nil }), nil
	case "sqlite":
		db, err := store.OpenSQLite(ctx, sc.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return store.WithBreaker(db, "sqlite"), db, nil
	default:
		return nil, noop, nil
	}
}

// runHTTPServer serves until SIGINT/SIGTERM, then drains in-flight requests.
func runHTTPServer(srv *server.Server, sc config.ServerConfig, logger *slog.Logger) error {
	addr := ":" + sc.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       sc.ReadTimeout,
		WriteTimeout:      sc.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("server stopped cleanly")
	return nil
}

func newLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: false,
	})
	return slog.New(handler)
}
