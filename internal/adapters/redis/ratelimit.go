package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/showtime-reservations/internal/ratelimit"
)

// Counter keeps fixed-window rate limit counters in redis.
type Counter struct {
	client *redis.Client
}

var _ ratelimit.Counter = (*Counter)(nil)

func NewCounter(client *redis.Client) *Counter {
	return &Counter{client: client}
}

func (c *Counter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
