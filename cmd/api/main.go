package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/showtime-reservations/internal/adapters/rabbit"
	"github.com/robertarktes/showtime-reservations/internal/app"
	"github.com/robertarktes/showtime-reservations/internal/clock"
	"github.com/robertarktes/showtime-reservations/internal/config"
	httphandler "github.com/robertarktes/showtime-reservations/internal/http"
	"github.com/robertarktes/showtime-reservations/internal/idempotency"
	"github.com/robertarktes/showtime-reservations/internal/observability"
	"github.com/robertarktes/showtime-reservations/internal/outbox"
	"github.com/robertarktes/showtime-reservations/internal/ratelimit"
	"github.com/robertarktes/showtime-reservations/internal/sweeper"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg, "showtime-api")
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

	idemp := idempotency.NewIdempotency(infra.Idempotency, cfg.IdempotencyTTL)
	rl := ratelimit.NewRateLimiter(infra.RateCounter)
	handlers := httphandler.NewHandlers(svcs.Service, infra.Checks...)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httphandler.SetupRouter(handlers, logger, rl, app.RateLimits(cfg), idemp),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown Server ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// The memory driver keeps state in this process, so the background jobs
	// that normally run as separate binaries run here instead.
	if cfg.StorageDriver == config.DriverMemory {
		sw := sweeper.New(svcs.Reservations, svcs.Ledger, clk, sweeper.Config{Interval: cfg.SweepInterval}, logger)
		g.Go(func() error { return sw.Run(gctx) })

		if cfg.RabbitURL != "" {
			conn, err := app.DialRabbit(cfg)
			if err != nil {
				log.Fatalf("failed to connect to rabbitmq: %v", err)
			}
			defer conn.Close()
			pub, err := rabbit.NewPublisher(conn)
			if err != nil {
				log.Fatalf("failed to create publisher: %v", err)
			}
			relay := outbox.NewPublisher(infra.Outbox, pub, clk, outbox.Config{Interval: cfg.OutboxInterval}, logger)
			g.Go(func() error {
				relay.Run(gctx)
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("api stopped with error")
	}
	logger.Info("Server exiting")
}
