// Package idempotency replays the stored response of a POST that was already
// answered under the same Idempotency-Key.
package idempotency

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/showtime-reservations/internal/domain"
)

const (
	MinKeyLength = 16
	MaxKeyLength = 255
)

var (
	ErrInvalidKey = errors.Mark(errors.New("invalid Idempotency-Key"), domain.ErrValidation)
	ErrInProgress = errors.Mark(errors.New("a request with this Idempotency-Key is in progress"), domain.ErrConflict)
)

type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Backend stores responses and in-flight locks. Get returns nil, nil for an
// unknown key.
type Backend interface {
	Get(ctx context.Context, key string) (*Response, error)
	Set(ctx context.Context, key string, resp Response, ttl time.Duration) error
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Idempotency struct {
	backend Backend
	ttl     time.Duration
	lockTTL time.Duration
}

func NewIdempotency(backend Backend, ttl time.Duration) *Idempotency {
	return &Idempotency{backend: backend, ttl: ttl, lockTTL: 30 * time.Second}
}

func ValidateKey(key string) error {
	if len(key) < MinKeyLength || len(key) > MaxKeyLength {
		return errors.Wrapf(ErrInvalidKey, "length must be between %d and %d", MinKeyLength, MaxKeyLength)
	}
	return nil
}

// Begin returns the stored response for key, if any. Otherwise it takes the
// in-flight lock and the caller must call Finish once the request completes.
func (i *Idempotency) Begin(ctx context.Context, key string) (*Response, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	existing, err := i.backend.Get(ctx, key)
	if err != nil {
		return nil, domain.StorageFailure(err, "idempotency get")
	}
	if existing != nil {
		return existing, nil
	}
	ok, err := i.backend.Lock(ctx, key, i.lockTTL)
	if err != nil {
		return nil, domain.StorageFailure(err, "idempotency lock")
	}
	if !ok {
		return nil, ErrInProgress
	}
	return nil, nil
}

// Finish stores resp for replay and releases the lock. Server errors are not
// stored so the client can retry them.
func (i *Idempotency) Finish(ctx context.Context, key string, resp Response) error {
	var err error
	if resp.Status < 500 {
		err = i.backend.Set(ctx, key, resp, i.ttl)
	}
	if uerr := i.backend.Unlock(ctx, key); uerr != nil {
		err = errors.CombineErrors(err, uerr)
	}
	return err
}
