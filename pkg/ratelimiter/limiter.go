package ratelimiter

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter gates provider calls with one bucket per key, typically a channel
// name or "channel:account". Keys without a configured bucket are unlimited.
type Limiter struct {
	store   Store
	now     func() time.Time
	mu      sync.RWMutex
	buckets map[string]*Bucket
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithLimiterClock replaces time.Now for retry-after calculations.
func WithLimiterClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

func NewLimiter(store Store, opts ...LimiterOption) *Limiter {
	l := &Limiter{store: store, now: time.Now, buckets: make(map[string]*Bucket)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Configure sets or replaces the bucket for key.
func (l *Limiter) Configure(key string, cfg Config) error {
	b, err := NewBucket(l.store, cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	l.mu.Lock()
	l.buckets[key] = b
	l.mu.Unlock()
	return nil
}

// Acquire takes cost tokens for key without waiting. When the bucket cannot
// cover cost it returns a *ThrottledError whose RetryAfter is never shorter
// than the refill interval.
func (l *Limiter) Acquire(ctx context.Context, key string, cost int) (Permit, error) {
	if cost <= 0 {
		return Permit{}, fmt.Errorf("%w: must be positive, got %d", ErrInvalidTokenCount, cost)
	}

	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if !ok {
		return Permit{Key: key, Remaining: -1}, nil
	}

	res, err := b.AllowN(ctx, key, cost)
	if err != nil {
		return Permit{}, err
	}
	if res.Allowed() {
		return Permit{Key: key, Remaining: res.Remaining}, nil
	}
	return Permit{}, &ThrottledError{Key: key, RetryAfter: l.retryAfter(b.config, res, cost)}
}

// retryAfter estimates when cost tokens will be available.
func (l *Limiter) retryAfter(cfg Config, res Result, cost int) time.Duration {
	missing := cost - res.Remaining
	intervals := (missing + cfg.RefillRate - 1) / cfg.RefillRate
	wait := res.ResetAt.Sub(l.now()) + time.Duration(max(intervals-1, 0))*cfg.RefillInterval
	return max(wait, cfg.RefillInterval)
}
