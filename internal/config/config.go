package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/robertarktes/showtime-reservations/internal/domain"
)

const (
	DriverMemory = "memory"
	DriverCRDB   = "crdb"
)

type Config struct {
	HTTPAddr      string
	StorageDriver string
	CRDBDSN       string
	MongoURI      string
	MongoDatabase string
	RedisAddr     string
	RabbitURL     string
	OTLPEndpoint  string
	LogLevel      string
	ShowsFile     string

	Policy         domain.Policy
	SweepInterval  time.Duration
	SweepBatchSize int
	IdempotencyTTL time.Duration
	OutboxInterval time.Duration

	UserRateLimit   int
	IPRateLimit     int
	RateLimitPeriod time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		StorageDriver:  getenv("STORAGE_DRIVER", DriverCRDB),
		CRDBDSN:        os.Getenv("CRDB_DSN"),
		MongoURI:       os.Getenv("MONGO_URI"),
		MongoDatabase:  getenv("MONGO_DATABASE", "showtime"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RabbitURL:      os.Getenv("RABBIT_URL"),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		ShowsFile:      os.Getenv("SHOWS_FILE"),
		Policy:         domain.DefaultPolicy(),
		SweepInterval:  domain.DefaultSweepInterval,
		SweepBatchSize: 500,
		IdempotencyTTL: time.Hour,
		OutboxInterval: 5 * time.Second,

		UserRateLimit:   60,
		IPRateLimit:     300,
		RateLimitPeriod: time.Minute,
	}

	var err error
	if cfg.Policy.HoldTTL, err = duration("HOLD_TTL", cfg.Policy.HoldTTL); err != nil {
		return nil, err
	}
	if cfg.Policy.PaymentWindow, err = duration("PAYMENT_WINDOW", cfg.Policy.PaymentWindow); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = duration("SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = duration("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return nil, err
	}
	if cfg.OutboxInterval, err = duration("OUTBOX_INTERVAL", cfg.OutboxInterval); err != nil {
		return nil, err
	}
	if cfg.Policy.MaxSeatsPerRequest, err = integer("MAX_SEATS_PER_REQUEST", cfg.Policy.MaxSeatsPerRequest); err != nil {
		return nil, err
	}
	if cfg.SweepBatchSize, err = integer("SWEEP_BATCH_SIZE", cfg.SweepBatchSize); err != nil {
		return nil, err
	}

	if cfg.UserRateLimit, err = integer("USER_RATE_LIMIT", cfg.UserRateLimit); err != nil {
		return nil, err
	}
	if cfg.IPRateLimit, err = integer("IP_RATE_LIMIT", cfg.IPRateLimit); err != nil {
		return nil, err
	}
	if cfg.RateLimitPeriod, err = duration("RATE_LIMIT_PERIOD", cfg.RateLimitPeriod); err != nil {
		return nil, err
	}

	switch cfg.StorageDriver {
	case DriverMemory:
	case DriverCRDB:
		if cfg.CRDBDSN == "" {
			return nil, errors.New("CRDB_DSN is required with the crdb storage driver")
		}
	default:
		return nil, errors.Newf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, errors.Newf("invalid %s %q", key, v)
	}
	return d, nil
}

func integer(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.Newf("invalid %s %q", key, v)
	}
	return n, nil
}
