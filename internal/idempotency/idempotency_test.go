package idempotency_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/showtime-reservations/internal/adapters/memory"
	"github.com/robertarktes/showtime-reservations/internal/clock"
	"github.com/robertarktes/showtime-reservations/internal/domain"
	"github.com/robertarktes/showtime-reservations/internal/idempotency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const key = "user:/v1/reservations:0123456789abcdef"

func TestValidateKey(t *testing.T) {
	assert.NoError(t, idempotency.ValidateKey(strings.Repeat("k", idempotency.MinKeyLength)))
	assert.NoError(t, idempotency.ValidateKey(strings.Repeat("k", idempotency.MaxKeyLength)))
	assert.ErrorIs(t, idempotency.ValidateKey("short"), domain.ErrValidation)
	assert.ErrorIs(t, idempotency.ValidateKey(strings.Repeat("k", idempotency.MaxKeyLength+1)), idempotency.ErrInvalidKey)
}

func TestBeginFinish(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	idemp := idempotency.NewIdempotency(memory.NewIdempotency(clk), time.Hour)
	ctx := context.Background()

	resp, err := idemp.Begin(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, resp)

	_, err = idemp.Begin(ctx, key)
	assert.ErrorIs(t, err, idempotency.ErrInProgress)
	assert.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, idemp.Finish(ctx, key, idempotency.Response{Status: 201, ContentType: "application/json", Body: []byte(`{"id":1}`)}))

	resp, err = idemp.Begin(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 201, resp.Status)
	assert.Equal(t, `{"id":1}`, string(resp.Body))

	clk.Advance(time.Hour)
	resp, err = idemp.Begin(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestFinish_ServerErrorsAreNotStored(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	idemp := idempotency.NewIdempotency(memory.NewIdempotency(clk), time.Hour)
	ctx := context.Background()

	_, err := idemp.Begin(ctx, key)
	require.NoError(t, err)
	require.NoError(t, idemp.Finish(ctx, key, idempotency.Response{Status: 503}))

	resp, err := idemp.Begin(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, resp, "a retry after a server error runs again")
}

type brokenBackend struct{ idempotency.Backend }

func (brokenBackend) Get(context.Context, string) (*idempotency.Response, error) {
	return nil, errors.New("redis: connection refused")
}

func TestBegin_BackendFailure(t *testing.T) {
	idemp := idempotency.NewIdempotency(brokenBackend{}, time.Hour)
	_, err := idemp.Begin(context.Background(), key)
	assert.ErrorIs(t, err, domain.ErrStorage)
}
