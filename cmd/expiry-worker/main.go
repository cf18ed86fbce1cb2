package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/robertarktes/showtime-reservations/internal/app"
	"github.com/robertarktes/showtime-reservations/internal/clock"
	"github.com/robertarktes/showtime-reservations/internal/config"
	"github.com/robertarktes/showtime-reservations/internal/observability"
	"github.com/robertarktes/showtime-reservations/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.StorageDriver != config.DriverCRDB {
		log.Fatalf("expiry-worker needs STORAGE_DRIVER=%s; the memory driver sweeps inside the api process", config.DriverCRDB)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg, "showtime-expiry-worker")
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

	worker := sweeper.New(svcs.Reservations, svcs.Ledger, clk, sweeper.Config{Interval: cfg.SweepInterval}, logger)
	if err := worker.Run(ctx); err != nil {
		log.Fatalf("expiry worker: %v", err)
	}
	st := worker.Stats()
	logger.WithFields(map[string]interface{}{
		"runs":                 st.Runs,
		"expired_reservations": st.ExpiredReservations,
		"expired_bookings":     st.ExpiredBookings,
	}).Info("Shutdown expiry worker")
}
