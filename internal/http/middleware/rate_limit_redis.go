package middleware

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisFixedWindowLimiter shares one counting window per key across
// replicas. INCR and the window EXPIRE run in a single pipeline so the
// first hit always stamps a TTL.
type RedisFixedWindowLimiter struct {
	client redis.UniversalClient
	scope  string
}

func NewRedisFixedWindowLimiter(client redis.UniversalClient, scope string) *RedisFixedWindowLimiter {
	if scope == "" {
		scope = "api"
	}
	return &RedisFixedWindowLimiter{client: client, scope: scope}
}

func (l *RedisFixedWindowLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	dataKey := rateLimitKey(l.scope, key)
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, dataKey)
	pipe.ExpireNX(ctx, dataKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, window, err
	}
	if incr.Val() > int64(limit) {
		ttl, err := l.client.TTL(ctx, dataKey).Result()
		if err != nil || ttl < 0 {
			ttl = window
		}
		return false, ttl, nil
	}
	return true, 0, nil
}
