package memory

import (
	"context"
	"sync"
	"time"

	"github.com/robertarktes/showtime-reservations/internal/clock"
	"github.com/robertarktes/showtime-reservations/internal/idempotency"
)

type idempEntry struct {
	resp    idempotency.Response
	expires time.Time
}

// Idempotency is a process-local replay store for the memory driver.
type Idempotency struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]idempEntry
	locks   map[string]time.Time
}

var _ idempotency.Backend = (*Idempotency)(nil)

func NewIdempotency(clk clock.Clock) *Idempotency {
	return &Idempotency{
		clock:   clk,
		entries: make(map[string]idempEntry),
		locks:   make(map[string]time.Time),
	}
}

func (i *Idempotency) Get(ctx context.Context, key string) (*idempotency.Response, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	e, ok := i.entries[key]
	if !ok {
		return nil, nil
	}
	if !i.clock.Now().Before(e.expires) {
		delete(i.entries, key)
		return nil, nil
	}
	resp := e.resp
	resp.Body = append([]byte(nil), e.resp.Body...)
	return &resp, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp idempotency.Response, ttl time.Duration) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	resp.Body = append([]byte(nil), resp.Body...)
	i.entries[key] = idempEntry{resp: resp, expires: i.clock.Now().Add(ttl)}
	return nil
}

func (i *Idempotency) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	now := i.clock.Now()
	if until, held := i.locks[key]; held && now.Before(until) {
		return false, nil
	}
	i.locks[key] = now.Add(ttl)
	return true, nil
}

func (i *Idempotency) Unlock(ctx context.Context, key string) error {
	i.mu.Lock()
	delete(i.locks, key)
	i.mu.Unlock()
	return nil
}
