package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/robertarktes/showtime-reservations/internal/adapters/rabbit"
	"github.com/robertarktes/showtime-reservations/internal/app"
	"github.com/robertarktes/showtime-reservations/internal/clock"
	"github.com/robertarktes/showtime-reservations/internal/config"
	"github.com/robertarktes/showtime-reservations/internal/observability"
	"github.com/robertarktes/showtime-reservations/internal/outbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.StorageDriver != config.DriverCRDB {
		log.Fatalf("outbox-publisher needs STORAGE_DRIVER=%s", config.DriverCRDB)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg, "showtime-outbox-publisher")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLoggerWithLevel(cfg.LogLevel)
	clk := clock.Real{}

	infra, err := app.Open(ctx, cfg, clk, logger)
	if err != nil {
		log.Fatalf("failed to open infrastructure: %v", err)
	}
	defer infra.Close()

	conn, err := app.DialRabbit(cfg)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}
	defer rabbitPub.Close()

	publisher := outbox.NewPublisher(infra.Outbox, rabbitPub, clk, outbox.Config{Interval: cfg.OutboxInterval}, logger)
	logger.Info("Outbox publisher started")
	publisher.Run(ctx)
	logger.Info("Shutdown outbox publisher")
}
