package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "courierbox:"

type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key; empty means "courierbox:".
	Prefix string
}

type RedisCache struct {
	c      *redis.Client
	prefix string
}

func New(opts Options) *RedisCache {
	if opts.Prefix == "" {
		opts.Prefix = defaultPrefix
	}
	return &RedisCache{
		c: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		prefix: opts.Prefix,
	}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.c.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "redis get %s", key)
	}
	return val, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.c.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s", key)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.prefix + k
	}
	if err := r.c.Del(ctx, full...).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return errors.Wrap(r.c.Ping(ctx).Err(), "redis ping")
}

func (r *RedisCache) Close() error {
	return r.c.Close()
}
