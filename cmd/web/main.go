// Package main is the entry point for the sweet shop web console.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/sweetshop/internal/client"
	"github.com/vyrodovalexey/sweetshop/internal/config"
	"github.com/vyrodovalexey/sweetshop/internal/logging"
	"github.com/vyrodovalexey/sweetshop/internal/server"
	"github.com/vyrodovalexey/sweetshop/internal/table"
	"github.com/vyrodovalexey/sweetshop/internal/ui"
)

const serviceName = "sweetshop-web"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
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
		zap.Bool("metrics_enabled", cfg.MetricsEnabled),
		zap.String("api_base_url", cfg.APIBaseURL),
		zap.Duration("client_timeout", cfg.ClientTimeout),
		zap.String("sort_source", cfg.SortSource),
	)

	srv, err := newConsoleServer(cfg, logger)
	if err != nil {
		logger.Error("failed to build console", zap.Error(err))
		return 1
	}

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

// newConsoleServer wires the data fetch layer, the table pipeline and the
// event hub into a server.
func newConsoleServer(cfg *config.Config, logger *zap.Logger) (*server.Server, error) {
	api, err := client.New(client.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.ClientTimeout,
	}, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("creating sweets API client: %w", err)
	}

	renderer, err := table.NewRenderer(cfg.CurrencySymbol)
	if err != nil {
		return nil, fmt.Errorf("creating table renderer: %w", err)
	}

	hub := ui.NewEventHub(logger)
	view, err := ui.NewView(renderer, hub)
	if err != nil {
		return nil, fmt.Errorf("creating table view: %w", err)
	}

	console := ui.NewConsole(api, view, renderer, cfg.SortSource, logger)

	return server.New(cfg, logger, "console", console, hub), nil
}
