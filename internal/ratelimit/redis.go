package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter backs the Rate Limiter with a shared counter per
// (client_ip, endpoint_class) key, so the limit holds across gateway
// replicas. The Lua script increments and reads the counter
// atomically, starting each key's TTL at the window so stale keys
// expire on their own.
type RedisLimiter struct {
	client *redis.Client
	script *redis.Script
}

func NewRedisLimiter(opts Options) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: opts.RedisURL})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ratelimit: redis ping failed: %w", err)
	}

	script := redis.NewScript(`
		local key = KEYS[1]
		local limit = tonumber(ARGV[1])
		local windowSeconds = tonumber(ARGV[2])

		local count = redis.call('INCR', key)
		if count == 1 then
			redis.call('EXPIRE', key, windowSeconds)
		end
		local ttl = redis.call('TTL', key)
		if ttl < 0 then
			ttl = windowSeconds
		end

		if count > limit then
			return {0, 0, ttl}
		end
		return {1, limit - count, ttl}
	`)

	return &RedisLimiter{client: client, script: script}, nil
}

func (l *RedisLimiter) Allow(clientIP string, class EndpointClass, limit int) Decision {
	if limit <= 0 {
		return Decision{Allowed: true}
	}

	key := fmt.Sprintf("ratelimit:%s:%s", class, clientIP)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := l.script.Run(ctx, l.client, []string{key}, limit, int(Window.Seconds())).Result()
	if err != nil {
		// Advisory: on Redis failure, fail open rather than blocking traffic.
		return Decision{Allowed: true, Limit: limit}
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return Decision{Allowed: true, Limit: limit}
	}
	allowed := vals[0].(int64) == 1
	remaining := vals[1].(int64)
	ttl := vals[2].(int64)

	return Decision{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: int(remaining),
		ResetUnix: time.Now().Add(time.Duration(ttl) * time.Second).Unix(),
	}
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
