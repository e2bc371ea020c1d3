package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache backs the Response Cache with an external key/value
// service. Per spec, it is advisory only: any failure to reach Redis
// degrades to a miss/no-op rather than propagating an error to the
// caller, and the error counter tracks how often that happened.
type RedisCache struct {
	client     *redis.Client
	defaultTTL time.Duration
	prefix     string

	hits, misses, errors atomic.Int64
}

func NewRedisCache(opts Options) (*RedisCache, error) {
	ttl := opts.DefaultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	client := redis.NewClient(&redis.Options{Addr: opts.RedisURL})
	return &RedisCache{client: client, defaultTTL: ttl, prefix: "gwcache:"}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.misses.Add(1)
			return "", false
		}
		c.errors.Add(1)
		return "", false
	}
	c.hits.Add(1)
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		c.errors.Add(1)
		return false
	}
	return true
}

func (c *RedisCache) Delete(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		c.errors.Add(1)
	}
}

func (c *RedisCache) ClearPrefix(ctx context.Context, prefix string) int64 {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	keys, err := c.client.Keys(ctx, c.prefix+prefix+"*").Result()
	if err != nil {
		c.errors.Add(1)
		return 0
	}
	if len(keys) == 0 {
		return 0
	}
	n, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		c.errors.Add(1)
		return 0
	}
	return n
}

func (c *RedisCache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}

	count, err := c.client.DBSize(context.Background()).Result()
	if err != nil {
		c.errors.Add(1)
		count = 0
	}

	return Stats{
		Hits:    hits,
		Misses:  misses,
		Errors:  c.errors.Load(),
		Count:   count,
		HitRate: rate,
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
