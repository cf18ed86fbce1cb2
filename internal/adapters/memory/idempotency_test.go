package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/robertarktes/showtime-reservations/internal/adapters/memory"
	"github.com/robertarktes/showtime-reservations/internal/clock"
	"github.com/robertarktes/showtime-reservations/internal/idempotency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotency_TTL(t *testing.T) {
	clk := clock.NewFake(t0)
	b := memory.NewIdempotency(clk)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k", idempotency.Response{Status: 201, Body: []byte(`{}`)}, time.Minute))
	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 201, got.Status)

	clk.Advance(time.Minute)
	got, err = b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIdempotency_Lock(t *testing.T) {
	clk := clock.NewFake(t0)
	b := memory.NewIdempotency(clk)
	ctx := context.Background()

	ok, err := b.Lock(ctx, "k", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = b.Lock(ctx, "k", 30*time.Second)
	assert.False(t, ok)

	clk.Advance(31 * time.Second)
	ok, _ = b.Lock(ctx, "k", 30*time.Second)
	assert.True(t, ok, "stale lock is taken over")

	require.NoError(t, b.Unlock(ctx, "k"))
	ok, _ = b.Lock(ctx, "k", 30*time.Second)
	assert.True(t, ok)
}
