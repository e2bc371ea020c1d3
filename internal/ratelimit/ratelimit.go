// Package ratelimit implements the Rate Limiter: per-(client_ip,
// endpoint_class) counters over a fixed 60-second window.
package ratelimit

import "time"

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// EndpointClass names a route group for rate-limit purposes.
type EndpointClass string

const (
	ClassChat      EndpointClass = "chat"
	ClassFinetune  EndpointClass = "finetune"
	ClassModelPull EndpointClass = "model_pull"
	ClassUnlimited EndpointClass = "unlimited"
)

// Window is the fixed bucket duration named throughout spec.
const Window = 60 * time.Second

// Decision is the outcome of a Limiter.Allow call: whether the request
// is allowed plus the values the caller attaches as
// X-RateLimit-{Limit,Remaining,Reset} response headers.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetUnix int64
}

// Limiter decides whether a (client, endpoint class) pair may proceed.
// A limit of 0 or less means unlimited: Allow always returns Allowed
// true without consuming a bucket.
type Limiter interface {
	Allow(clientIP string, class EndpointClass, limit int) Decision
	Close() error
}

// Limits holds the per-class request ceilings, configured at startup.
type Limits struct {
	ChatPerMinute int
	FinetunePerMinute int
	ModelPullPerMinute int
}

// LimitFor resolves spec's fixed per-class table: chat is
// configurable, fine-tune and model-pull are fixed, anything else is
// unlimited.
func (l Limits) LimitFor(class EndpointClass) int {
	switch class {
	case ClassChat:
		return l.ChatPerMinute
	case ClassFinetune:
		return l.FinetunePerMinute
	case ClassModelPull:
		return l.ModelPullPerMinute
	default:
		return 0
	}
}

// Options configures Limiter construction.
type Options struct {
	Kind     string
	RedisURL string
}

func New(opts Options) (Limiter, error) {
	switch opts.Kind {
	case BackendRedis:
		return NewRedisLimiter(opts)
	default:
		return NewMemoryLimiter(), nil
	}
}
