package app_test

import (
	"context"
	"testing"

	"github.com/robertarktes/showtime-reservations/internal/adapters/memory"
	redisadapter "github.com/robertarktes/showtime-reservations/internal/adapters/redis"
	"github.com/robertarktes/showtime-reservations/internal/app"
	"github.com/robertarktes/showtime-reservations/internal/clock"
	"github.com/robertarktes/showtime-reservations/internal/config"
	"github.com/robertarktes/showtime-reservations/internal/domain"
	"github.com/robertarktes/showtime-reservations/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_MemoryBackends(t *testing.T) {
	cfg := &config.Config{StorageDriver: config.DriverMemory, Policy: domain.DefaultPolicy()}

	infra, err := app.Open(context.Background(), cfg, clock.Real{}, observability.NewDiscardLogger())
	require.NoError(t, err)
	defer infra.Close()

	assert.IsType(t, &memory.Idempotency{}, infra.Idempotency)
	assert.IsType(t, &memory.Counter{}, infra.RateCounter)
	assert.NotNil(t, infra.Store)
	assert.NotNil(t, infra.Outbox)
	assert.NotNil(t, infra.Catalog)
	assert.NotNil(t, infra.Audit)
}

func TestOpen_RedisBackends(t *testing.T) {
	// The redis client connects lazily, so no server is needed here.
	cfg := &config.Config{StorageDriver: config.DriverMemory, RedisAddr: "127.0.0.1:1", Policy: domain.DefaultPolicy()}

	infra, err := app.Open(context.Background(), cfg, clock.Real{}, observability.NewDiscardLogger())
	require.NoError(t, err)
	defer infra.Close()

	assert.IsType(t, &redisadapter.Idempotency{}, infra.Idempotency)
	assert.IsType(t, &redisadapter.Counter{}, infra.RateCounter)
	require.Len(t, infra.Checks, 1)
	assert.Equal(t, "redis", infra.Checks[0].Name)
}
