// Package ratelimiter implements token buckets for provider rate limits.
//
// A Bucket applies a Config (capacity, refill rate, refill interval) to keys
// held in a Store. MemoryStore serves a single process; RedisStore runs the
// same algorithm as a Lua script so several processes draw from one budget.
// Both refill in whole intervals and never let a denied call change the
// balance, so in any window of one refill interval a bucket grants at most
// Capacity + RefillRate tokens.
//
// Limiter maps channel keys to buckets and is what the dispatcher calls before
// each provider send:
//
//	lim := ratelimiter.NewLimiter(ratelimiter.NewMemoryStore())
//	_ = lim.Configure("sms", ratelimiter.Config{Capacity: 10, RefillRate: 10, RefillInterval: time.Second})
//
//	permit, err := lim.Acquire(ctx, "sms", 1)
//	if wait, ok := ratelimiter.RetryAfter(err); ok {
//	    // reschedule no sooner than wait
//	}
//
// Acquire never blocks. Middleware applies a Bucket to HTTP requests.
package ratelimiter
