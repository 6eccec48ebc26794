// Package main is the entry point for the sweets API server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/sweetshop/internal/config"
	"github.com/vyrodovalexey/sweetshop/internal/handler"
	"github.com/vyrodovalexey/sweetshop/internal/logging"
	"github.com/vyrodovalexey/sweetshop/internal/server"
	"github.com/vyrodovalexey/sweetshop/internal/store"
)

const serviceName = "sweetshop-api"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		// Use a basic logger for startup errors
		basicLogger, _ := zap.NewProduction()
		basicLogger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger, err := logging.New(cfg.LogLevel, serviceName)
	if err != nil {
		basicLogger, _ := zap.NewProduction()
		basicLogger.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.ServerPort),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
		zap.Bool("metrics_enabled", cfg.MetricsEnabled),
		zap.String("store_driver", cfg.StoreDriver),
		zap.Bool("seed_data", cfg.SeedData),
	)

	sweetStore, err := openStore(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to open store", zap.Error(err))
		return 1
	}
	defer func() {
		if err := sweetStore.Close(); err != nil {
			logger.Warn("failed to close store", zap.Error(err))
		}
	}()

	srv := server.New(cfg, logger, "api", handler.NewSweetHandler(sweetStore, logger))

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", zap.Error(err))
		return 1
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return 1
		}
	}

	logger.Info("server stopped")
	return 0
}

// openStore opens the configured store and loads the seed catalogue
// when enabled. Sweets already present are left alone.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	var s store.Store
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		s = store.NewMemoryStore()
	case config.StoreDriverSQLite:
		sqlite, err := store.NewSQLiteStore(ctx, cfg.SQLiteDSN)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		s = sqlite
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.StoreDriver)
	}

	if !cfg.SeedData {
		return s, nil
	}

	inserted, err := store.Seed(ctx, s, store.SeedSweets())
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("seeding store: %w", err)
	}
	logger.Info("store seeded", zap.Int("inserted", inserted))

	return s, nil
}
