package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Sliding window over a sorted set scored by request time in ms.
var slidingWindowScript = redis.NewScript(`
local now_ms = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now_ms - window_ms)
local count = redis.call("ZCARD", KEYS[1])
local allowed = 0
if count < limit then
  redis.call("ZADD", KEYS[1], now_ms, member)
  allowed = 1
end
redis.call("PEXPIRE", KEYS[1], window_ms)
return allowed
`)

// RedisLimiter is a sliding-window limiter shared by every instance pointing at the same Redis
type RedisLimiter struct {
	client  redis.UniversalClient
	prefix  string
	window  time.Duration
	maxReqs int
	now     func() time.Time
}

// NewRedisLimiter creates a limiter storing its windows under prefix
func NewRedisLimiter(client redis.UniversalClient, prefix string, window time.Duration, maxReqs int) *RedisLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisLimiter{
		client:  client,
		prefix:  prefix,
		window:  window,
		maxReqs: maxReqs,
		now:     time.Now,
	}
}

// Allow checks if a request is allowed for the given key
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.client == nil {
		return false, errors.New("redis limiter: nil client")
	}
	if key == "" {
		key = "unknown"
	}

	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.prefix + ":" + key},
		l.now().UnixMilli(),
		l.window.Milliseconds(),
		l.maxReqs,
		uuid.NewString(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("redis limiter: %w", err)
	}
	return res == 1, nil
}
