package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// reserveScript grants a permit atomically on a sorted set of grant
// timestamps (milliseconds). Returns 0 when granted, else the wait in ms.
var reserveScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

if redis.call('ZCARD', key) < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window)
	return 0
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local wait = tonumber(oldest[2]) + window - now
if wait < 1 then
	wait = 1
end
return wait
`)

// RedisWindow keeps the grant log in Redis so that several processes using
// the same QA Touch account draw from one quota.
type RedisWindow struct {
	redis    *redis.Client
	key      string
	max      int
	duration time.Duration
}

// NewRedisWindow creates a shared window. scope identifies the quota owner,
// usually the QA Touch subdomain.
func NewRedisWindow(redisClient *redis.Client, scope string, max int, duration time.Duration) *RedisWindow {
	return &RedisWindow{
		redis:    redisClient,
		key:      RedisKeyPrefix + scope,
		max:      max,
		duration: duration,
	}
}

// Key returns the Redis key backing this window.
func (w *RedisWindow) Key() string {
	return w.key
}

// Reserve implements Window.
func (w *RedisWindow) Reserve(ctx context.Context, now time.Time) (time.Duration, error) {
	waitMs, err := reserveScript.Run(ctx, w.redis, []string{w.key},
		now.UnixMilli(), w.duration.Milliseconds(), w.max, uuid.NewString()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis reserve: %w", err)
	}
	return time.Duration(waitMs) * time.Millisecond, nil
}

// State reads the current window from Redis.
func (w *RedisWindow) State(ctx context.Context, now time.Time) (WindowState, error) {
	lower := fmt.Sprintf("(%d", now.Add(-w.duration).UnixMilli())

	pipe := w.redis.Pipeline()
	countCmd := pipe.ZCount(ctx, w.key, lower, "+inf")
	oldestCmd := pipe.ZRangeByScoreWithScores(ctx, w.key, &redis.ZRangeBy{
		Min:   lower,
		Max:   "+inf",
		Count: 1,
	})
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return WindowState{}, fmt.Errorf("read window state from redis: %w", err)
	}

	state := WindowState{Granted: int(countCmd.Val()), Max: w.max}
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		state.ResetAt = time.UnixMilli(int64(oldest[0].Score)).Add(w.duration)
	}
	return state, nil
}
