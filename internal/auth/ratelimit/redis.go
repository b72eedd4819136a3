package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	pkgredis "github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/redis"
)

const keyPrefix = "ratelimit:"

// slidingWindowScript prunes expired members, then adds one if the set is
// below the limit. Returns 1 when admitted.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]
local ttl = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local current = redis.call('ZCARD', key)
if current < limit then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, ttl)
	return 1
end
return 0
`)

// RedisWindow is a sliding-window limiter whose state lives in a Redis sorted
// set, so every instance sharing the key shares the limit.
type RedisWindow struct {
	client *pkgredis.Client
	key    string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisWindow creates a Redis-backed limiter admitting at most limit
// requests per window under the given key.
func NewRedisWindow(client *pkgredis.Client, key string, limit int, window time.Duration) *RedisWindow {
	return &RedisWindow{
		client: client,
		key:    keyPrefix + key,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Admit runs the sliding-window script atomically.
func (r *RedisWindow) Admit(ctx context.Context) (bool, error) {
	now := r.now()
	windowStart := now.Add(-r.window)
	member := fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString())

	result, err := r.client.RunScript(ctx, slidingWindowScript, []string{r.key},
		now.UnixMilli(),
		windowStart.UnixMilli(),
		r.limit,
		member,
		r.window.Milliseconds(),
	)
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return result == 1, nil
}

// Count returns the number of admissions currently stored, including any not
// yet pruned.
func (r *RedisWindow) Count(ctx context.Context) (int64, error) {
	return r.client.ZCard(ctx, r.key)
}
