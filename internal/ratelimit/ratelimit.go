// Package ratelimit caps how many requests a caller may send per window.
package ratelimit

import (
	"context"
	"time"
)

// Counter increments the hit counter of key, starting a fresh window of the
// given length when the key has none, and returns the new count.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type Rule struct {
	Rate   int
	Period time.Duration
}

type RateLimiter struct {
	counter Counter
}

func NewRateLimiter(counter Counter) *RateLimiter {
	return &RateLimiter{counter: counter}
}

// Allow reports whether one more request under key fits the rule. A counter
// failure denies the request.
func (rl *RateLimiter) Allow(ctx context.Context, key string, rule Rule) bool {
	n, err := rl.counter.Incr(ctx, "rl:"+key, rule.Period)
	if err != nil {
		return false
	}
	return n <= int64(rule.Rate)
}
