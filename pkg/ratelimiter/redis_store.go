package ratelimiter

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript mirrors MemoryStore.ConsumeTokens inside Redis so the
// refill-check-decrement sequence is atomic across processes.
var tokenBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local cost = tonumber(ARGV[5])
local ttl = tonumber(ARGV[6])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'refilled')
local tokens = tonumber(state[1])
local refilled = tonumber(state[2])
if tokens == nil or refilled == nil then
  tokens = capacity
  refilled = now
end

local intervals = math.floor((now - refilled) / interval)
if intervals > 0 then
  local cap = math.floor(capacity / rate) + 1
  if intervals > cap then intervals = cap end
  tokens = math.min(tokens + intervals * rate, capacity)
  refilled = now
end

local allowed = 0
if cost <= tokens then
  tokens = tokens - cost
  allowed = 1
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'refilled', refilled)
redis.call('PEXPIRE', KEYS[1], ttl)
return {allowed, tokens, refilled + interval}
`)

// RedisStore keeps buckets in Redis so several dispatch processes share one
// budget per provider.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix namespaces bucket keys. Default "ratelimit:".
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithRedisClock replaces time.Now. Processes sharing buckets should have
// synchronised clocks.
func WithRedisClock(now func() time.Time) RedisStoreOption {
	return func(s *RedisStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, prefix: "ratelimit:", now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) ConsumeTokens(ctx context.Context, key string, tokens int, cfg Config) (bool, int, time.Time, error) {
	intervalMs := cfg.RefillInterval.Milliseconds()
	if intervalMs <= 0 {
		intervalMs = 1
	}
	// Keep idle buckets around until they would be full again.
	ttl := intervalMs * int64(cfg.Capacity/cfg.RefillRate+2)

	res, err := tokenBucketScript.Run(ctx, s.client, []string{s.prefix + key},
		cfg.Capacity, cfg.RefillRate, intervalMs, s.now().UnixMilli(), tokens, ttl,
	).Int64Slice()
	if err != nil {
		return false, 0, time.Time{}, errors.Join(ErrStoreUnavailable, err)
	}
	if len(res) != 3 {
		return false, 0, time.Time{}, errors.Join(ErrStoreUnavailable, errors.New("unexpected script reply"))
	}
	return res[0] == 1, int(res[1]), time.UnixMilli(res[2]), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}
