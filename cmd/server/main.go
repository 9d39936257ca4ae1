package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"thgate/internal/app"
	"thgate/internal/platform/config"
	"thgate/internal/platform/logger"
)

// main loads configuration, wires the gateway and runs it until SIGINT or
// SIGTERM. Wiring lives in internal/app so tests can build the same stack.
func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		logger.New("info").Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	if err := cfg.EnsureSecrets(log); err != nil {
		log.Error("refusing to start", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing thgate",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"redis", cfg.RedisURL != "",
		"database", cfg.DatabaseURL != "",
		"kafka", len(cfg.Kafka.Brokers) > 0,
	)

	gateway, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	err = gateway.Run(ctx)
	gateway.Close()
	if err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
