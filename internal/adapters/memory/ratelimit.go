package memory

import (
	"context"
	"sync"
	"time"

	"github.com/robertarktes/showtime-reservations/internal/clock"
	"github.com/robertarktes/showtime-reservations/internal/ratelimit"
)

type window struct {
	count   int64
	expires time.Time
}

// Counter is the process-local fixed-window counter used without redis.
type Counter struct {
	clock clock.Clock

	mu      sync.Mutex
	windows map[string]window
}

var _ ratelimit.Counter = (*Counter)(nil)

func NewCounter(clk clock.Clock) *Counter {
	return &Counter{clock: clk, windows: make(map[string]window)}
}

func (c *Counter) Incr(ctx context.Context, key string, period time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	w, ok := c.windows[key]
	if !ok || !now.Before(w.expires) {
		w = window{expires: now.Add(period)}
	}
	w.count++
	c.windows[key] = w
	return w.count, nil
}
