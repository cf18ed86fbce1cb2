// Package app wires configuration to adapters. Every binary under cmd/ opens
// its infrastructure through Open so they agree on drivers and defaults.
package app

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/showtime-reservations/internal/adapters/crdb"
	"github.com/robertarktes/showtime-reservations/internal/adapters/memory"
	mongoadapter "github.com/robertarktes/showtime-reservations/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/showtime-reservations/internal/adapters/redis"
	"github.com/robertarktes/showtime-reservations/internal/booking"
	"github.com/robertarktes/showtime-reservations/internal/catalog"
	"github.com/robertarktes/showtime-reservations/internal/clock"
	"github.com/robertarktes/showtime-reservations/internal/config"
	httphandler "github.com/robertarktes/showtime-reservations/internal/http"
	"github.com/robertarktes/showtime-reservations/internal/idempotency"
	"github.com/robertarktes/showtime-reservations/internal/observability"
	"github.com/robertarktes/showtime-reservations/internal/ratelimit"
	"github.com/robertarktes/showtime-reservations/internal/reservation"
	"github.com/robertarktes/showtime-reservations/internal/service"
	"github.com/robertarktes/showtime-reservations/internal/storage"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Infra struct {
	Store       storage.Store
	Outbox      storage.Outbox
	Catalog     service.Catalog
	Audit       service.AuditLog
	Idempotency idempotency.Backend
	RateCounter ratelimit.Counter
	Checks      []httphandler.Checker

	// MongoCatalog is set when the catalog lives in MongoDB.
	MongoCatalog *mongoadapter.CatalogRepository

	closers []func()
}

// Open connects the storage driver, catalog, audit log and idempotency store
// selected by cfg. Optional backends fall back to process memory when their
// address is not configured.
func Open(ctx context.Context, cfg *config.Config, clk clock.Clock, logger observability.Logger) (*Infra, error) {
	in := &Infra{}
	if err := in.openStore(ctx, cfg, logger); err != nil {
		in.Close()
		return nil, err
	}
	if err := in.openMongo(ctx, cfg, logger); err != nil {
		in.Close()
		return nil, err
	}
	in.openRedis(cfg, clk)
	return in, nil
}

func (in *Infra) openStore(ctx context.Context, cfg *config.Config, logger observability.Logger) error {
	switch cfg.StorageDriver {
	case config.DriverMemory:
		s := memory.NewStore()
		in.Store, in.Outbox = s, s
		return nil
	case config.DriverCRDB:
		pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
		if err != nil {
			return errors.Wrap(err, "connect to crdb")
		}
		in.closers = append(in.closers, pool.Close)
		s := crdb.NewStore(pool, logger)
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := s.Ping(pingCtx); err != nil {
			return errors.Wrap(err, "ping crdb")
		}
		if err := s.Migrate(ctx); err != nil {
			return err
		}
		in.Store, in.Outbox = s, s
		in.Checks = append(in.Checks, httphandler.Checker{Name: "crdb", Check: s.Ping})
		return nil
	}
	return errors.Newf("unknown storage driver %q", cfg.StorageDriver)
}

func (in *Infra) openMongo(ctx context.Context, cfg *config.Config, logger observability.Logger) error {
	if cfg.MongoURI == "" {
		shows := memory.NewCatalog()
		if cfg.ShowsFile != "" {
			loaded, err := catalog.LoadFile(cfg.ShowsFile)
			if err != nil {
				return err
			}
			for _, s := range loaded {
				shows.Put(s)
			}
			logger.WithField("shows", len(loaded)).Info("catalog loaded from file")
		}
		in.Catalog = shows
		in.Audit = memory.NewAuditLog()
		return nil
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return errors.Wrap(err, "connect to mongo")
	}
	in.closers = append(in.closers, func() { _ = client.Disconnect(context.Background()) })
	db := client.Database(cfg.MongoDatabase)
	cat := mongoadapter.NewCatalogRepository(db, logger)
	in.Catalog = cat
	in.MongoCatalog = cat
	in.Audit = mongoadapter.NewAuditLogger(db, logger)
	in.Checks = append(in.Checks, httphandler.Checker{Name: "mongo", Check: cat.Ping})
	return nil
}

func (in *Infra) openRedis(cfg *config.Config, clk clock.Clock) {
	if cfg.RedisAddr == "" {
		in.Idempotency = memory.NewIdempotency(clk)
		in.RateCounter = memory.NewCounter(clk)
		return
	}
	client := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	in.closers = append(in.closers, func() { _ = client.Close() })
	idemp := redisadapter.NewIdempotency(client)
	in.Idempotency = idemp
	in.RateCounter = redisadapter.NewCounter(client)
	in.Checks = append(in.Checks, httphandler.Checker{Name: "redis", Check: idemp.Ping})
}

func (in *Infra) Close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		in.closers[i]()
	}
	in.closers = nil
}

type Services struct {
	Reservations *reservation.Store
	Ledger       *booking.Ledger
	Service      *service.ReservationService
}

func (in *Infra) Services(cfg *config.Config, clk clock.Clock, logger observability.Logger) Services {
	ledger := booking.NewLedger(in.Store, clk, logger,
		booking.WithPolicy(cfg.Policy),
		booking.WithBatchSize(cfg.SweepBatchSize),
	)
	reservations := reservation.NewStore(in.Store, ledger, clk, logger,
		reservation.WithPolicy(cfg.Policy),
		reservation.WithSweepBatchSize(cfg.SweepBatchSize),
	)
	svc := service.New(service.Deps{
		Catalog:      in.Catalog,
		Store:        in.Store,
		Reservations: reservations,
		Ledger:       ledger,
		Audit:        in.Audit,
		Clock:        clk,
		Policy:       cfg.Policy,
		Logger:       logger,
	})
	return Services{Reservations: reservations, Ledger: ledger, Service: svc}
}

// RateLimits turns the configured budgets into middleware rules.
func RateLimits(cfg *config.Config) httphandler.RateLimits {
	return httphandler.RateLimits{
		PerUser: ratelimit.Rule{Rate: cfg.UserRateLimit, Period: cfg.RateLimitPeriod},
		PerIP:   ratelimit.Rule{Rate: cfg.IPRateLimit, Period: cfg.RateLimitPeriod},
	}
}

func DialRabbit(cfg *config.Config) (*amqp.Connection, error) {
	if cfg.RabbitURL == "" {
		return nil, errors.New("RABBIT_URL is not set")
	}
	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect to rabbitmq")
	}
	return conn, nil
}
