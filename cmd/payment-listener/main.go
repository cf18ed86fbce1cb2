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
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.StorageDriver != config.DriverCRDB {
		log.Fatalf("payment-listener needs STORAGE_DRIVER=%s", config.DriverCRDB)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg, "showtime-payment-listener")
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
	svcs := infra.Services(cfg, clk, logger)

	conn, err := app.DialRabbit(cfg)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	consumer, err := rabbit.NewConsumer(conn, rabbit.PaymentsQueue, logger)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()

	logger.WithField("queue", rabbit.PaymentsQueue).Info("Payment listener started")
	if err := consumer.Run(ctx, svcs.Service); err != nil {
		logger.WithError(err).Error("payment listener stopped")
	}
	logger.Info("Shutdown payment listener")
}
