package rediscache

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Decision is the limiter's answer for one hit.
type Decision struct {
	Allowed bool
	Count   int64
	// RetryAfter is what is left of the current window.
	RetryAfter time.Duration
}

// RateLimiter counts hits per key in fixed windows.
// It shares the cache's connection pool, which the cache owns.
type RateLimiter struct {
	c      *redis.Client
	prefix string
	now    func() time.Time
}

func (r *RedisCache) Limiter() *RateLimiter {
	return &RateLimiter{c: r.c, prefix: r.prefix, now: time.Now}
}

// Allow делает INCR по ключу текущего окна и ставит TTL на длину окна.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (Decision, error) {
	if window <= 0 {
		return Decision{}, errors.New("ratelimit window must be positive")
	}
	now := rl.now()
	bucket := now.UnixNano() / int64(window)
	k := rl.prefix + "rl:" + key + ":" + strconv.FormatInt(bucket, 10)

	pipe := rl.c.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, errors.Wrap(err, "redis ratelimit")
	}
	n := incr.Val()
	windowEnd := time.Unix(0, (bucket+1)*int64(window))
	return Decision{Allowed: n <= limit, Count: n, RetryAfter: windowEnd.Sub(now)}, nil
}
