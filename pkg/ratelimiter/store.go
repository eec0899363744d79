package ratelimiter

import (
	"context"
	"time"
)

// Store keeps bucket state. ConsumeTokens must be atomic per key: refill,
// check and decrement happen as one step, so concurrent callers can never
// overdraw a bucket. Denied calls leave the balance untouched.
type Store interface {
	ConsumeTokens(ctx context.Context, key string, tokens int, config Config) (allowed bool, remaining int, resetAt time.Time, err error)
	Reset(ctx context.Context, key string) error
}

// refill applies whole elapsed intervals to a bucket. The refill mark moves to
// now, so two refills are always at least one interval apart.
func refill(tokens int, lastRefill, now time.Time, cfg Config) (int, time.Time) {
	elapsed := now.Sub(lastRefill)
	if elapsed < cfg.RefillInterval {
		return tokens, lastRefill
	}
	maxIntervals := int64(cfg.Capacity/cfg.RefillRate + 1)
	intervals := int(min(int64(elapsed/cfg.RefillInterval), maxIntervals))
	return min(tokens+intervals*cfg.RefillRate, cfg.Capacity), now
}
