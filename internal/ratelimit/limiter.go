// Package ratelimit guards outbound vision-model calls with a Redis-backed
// sliding window, so a burst of image-heavy requests cannot hammer the
// upstream. Fails open: no Redis, no limiting.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result is the outcome of a limit check.
type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter performs sliding-window rate limiting backed by Redis sorted sets.
type Limiter struct {
	rdb *redis.Client
}

// NewLimiter creates a limiter. If rdb is nil, every check passes.
func NewLimiter(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb}
}

// slidingWindowScript atomically: removes expired entries, adds current, counts.
// KEYS[1] = sorted set key
// ARGV[1] = window start (unix micro)
// ARGV[2] = now (unix micro) — used as both score and member uniqueness
// ARGV[3] = limit
// ARGV[4] = TTL seconds for the key
// Returns: [current_count, 1=allowed/0=denied]
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local window_start = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, now .. ':' .. math.random(1000000))
    redis.call('EXPIRE', key, ttl)
    return {count + 1, 1}
end

redis.call('EXPIRE', key, ttl)
return {count, 0}
`)

// Allow checks whether one more call for the given vision model fits in the
// window. Redis errors fail open.
func (l *Limiter) Allow(ctx context.Context, model string, limit int64, window time.Duration) (Result, error) {
	if l.rdb == nil || limit <= 0 {
		return Result{Allowed: true, Remaining: limit}, nil
	}

	now := time.Now()
	windowStart := now.Add(-window).UnixMicro()
	ttlSecs := int64(window.Seconds()) + 1

	key := fmt.Sprintf("iris:rl:vision:%s", model)

	res, err := slidingWindowScript.Run(ctx, l.rdb, []string{key},
		windowStart, now.UnixMicro(), limit, ttlSecs,
	).Int64Slice()
	if err != nil {
		return Result{Allowed: true, Remaining: limit}, nil
	}

	count := res[0]
	allowed := res[1] == 1
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	var retryAfter time.Duration
	if !allowed {
		retryAfter = window / 2 // conservative estimate
	}

	return Result{Allowed: allowed, Remaining: remaining, RetryAfter: retryAfter}, nil
}
