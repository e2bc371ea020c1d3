// Package cache implements the Response Cache: a content-addressed,
// TTL-keyed store of completed (non-streaming) generations. The cache
// is advisory only — callers must treat any error as a miss and carry
// on, never as a reason to fail the request.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Cache is the Response Cache's interface: get/set/delete plus
// prefix-clear and stats, each operation bounded by the caller's
// context. RedisCache additionally bounds each Redis call with its own
// 2s timeout.
type Cache interface {
	Get(ctx context.Context, key string) (value string, hit bool)
	Set(ctx context.Context, key, value string, ttl time.Duration) bool
	Delete(ctx context.Context, key string)
	ClearPrefix(ctx context.Context, prefix string) int64
	Stats() Stats
	Close() error
}

// Stats mirrors spec's stats() -> (hits, misses, errors, count, hit_rate).
type Stats struct {
	Hits    int64
	Misses  int64
	Errors  int64
	Count   int64
	HitRate float64
}

// Options configures cache construction.
type Options struct {
	Kind            string
	DefaultTTL      time.Duration
	RedisURL        string
	CleanupInterval time.Duration
}

// New builds a Cache from Options, defaulting to the in-memory
// implementation for any kind other than "redis".
func New(opts Options) (Cache, error) {
	switch opts.Kind {
	case BackendRedis:
		return NewRedisCache(opts)
	default:
		return NewMemoryCache(opts), nil
	}
}

// Key computes the content-addressed digest over the fields that
// determine a generation's output: model, prompt, temperature, and
// max_tokens. Two requests with identical fields map to the same key.
func Key(model, prompt string, temperature float64, maxTokens int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%.4f\x00%d", model, prompt, temperature, maxTokens)
	return hex.EncodeToString(h.Sum(nil))
}
