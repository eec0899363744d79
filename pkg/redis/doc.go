// Package redis connects to Redis with github.com/redis/go-redis/v9.
//
// Connect retries PING until the server answers or the connect timeout
// elapses. Healthcheck wraps any redis.UniversalClient as a readiness probe.
// The client returned here backs the shared rate-limit buckets in
// pkg/ratelimiter when several dispatch processes run side by side.
package redis
