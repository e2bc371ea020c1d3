package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Config is the fully resolved gateway configuration: built-in
// defaults overlaid by an optional YAML file, overlaid by environment
// variables (see loader.go), in that ascending order of priority.
type Config struct {
	Port int `koanf:"port"`

	OllamaBaseURL   string   `koanf:"ollama_base_url"`
	OllamaInstances []string `koanf:"ollama_instances"`
	DefaultModel    string   `koanf:"default_model"`
	MaxTokens       int      `koanf:"max_tokens"`
	Temperature     float64  `koanf:"temperature"`

	LoadBalancerStrategy string `koanf:"load_balancer_strategy"`

	CacheTTL           int `koanf:"cache_ttl"`
	RateLimitPerMinute int `koanf:"rate_limit_per_minute"`

	APIKey           string `koanf:"api_key"`
	SecretKey        string `koanf:"secret_key"`
	JWTAlgorithm     string `koanf:"jwt_algorithm"`
	JWTExpireMinutes int    `koanf:"jwt_expire_minutes"`

	CORSOrigins []string `koanf:"cors_origins"`

	RequestTimeout int               `koanf:"request_timeout"`
	HealthCheck    HealthCheckConfig `koanf:"health_check"`
	Retry          RetryConfig       `koanf:"retry"`
	Cache          CacheBackendConfig `koanf:"cache_backend"`
	RateLimit      RateLimitBackendConfig `koanf:"rate_limit_backend"`

	// AllUnhealthyFallback resolves spec's Open Question 1: when true
	// (default, matching the source), get_instance falls back to the
	// full backend set if none are healthy; when false, the balancer
	// returns ErrNoHealthyBackend instead. The proxy treats that like
	// any failed attempt, so a chat request then ends in the fallback
	// response with FallbackHTTPStatus, not in a 503.
	AllUnhealthyFallback bool `koanf:"all_unhealthy_fallback"`

	// FallbackHTTPStatus resolves Open Question 2: the status code used
	// when all retries exhaust and the fallback body is returned.
	// "200" (default, matches the source) or "502".
	FallbackHTTPStatus int `koanf:"fallback_http_status"`
}

type BackendConfig struct {
	URL    string `koanf:"url"`
	Weight int    `koanf:"weight"`
}

type HealthCheckConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Interval int    `koanf:"interval"` // seconds
	Timeout  int    `koanf:"timeout"`  // seconds
	Path     string `koanf:"path"`
}

type RetryConfig struct {
	MaxAttempts   int     `koanf:"max_attempts"`
	BaseSeconds   float64 `koanf:"base_seconds"`
	CapSeconds    float64 `koanf:"cap_seconds"`
	Multiplier    float64 `koanf:"multiplier"`
}

// CacheBackendConfig selects and configures the response cache backend.
type CacheBackendConfig struct {
	Kind     string `koanf:"kind"` // "memory" (default) or "redis"
	RedisURL string `koanf:"redis_url"`
}

// RateLimitBackendConfig selects and configures the rate limiter backend.
type RateLimitBackendConfig struct {
	Kind     string `koanf:"kind"` // "memory" (default) or "redis"
	RedisURL string `koanf:"redis_url"`
}

// ParsedBackend is a BackendConfig with its URL pre-parsed and a
// generated stable id, ready for Registry.Add.
type ParsedBackend struct {
	ID     string
	URL    *url.URL
	Weight int
}

// ParseBackends expands OllamaInstances (or, if empty, OllamaBaseURL
// alone) into ParsedBackend values, ids "ollama-1", "ollama-2", ...
func (c *Config) ParseBackends() ([]*ParsedBackend, error) {
	instances := c.OllamaInstances
	if len(instances) == 0 {
		if c.OllamaBaseURL == "" {
			return nil, fmt.Errorf("config: no backends configured (set OLLAMA_BASE_URL or OLLAMA_INSTANCES)")
		}
		instances = []string{c.OllamaBaseURL}
	}

	backends := make([]*ParsedBackend, 0, len(instances))
	for i, raw := range instances {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u, err := url.Parse(strings.TrimRight(raw, "/"))
		if err != nil {
			return nil, fmt.Errorf("config: invalid backend url %q: %w", raw, err)
		}
		backends = append(backends, &ParsedBackend{
			ID:     fmt.Sprintf("ollama-%d", i+1),
			URL:    u,
			Weight: 1,
		})
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("config: no backends configured")
	}
	return backends, nil
}

// Validate rejects startup with an unrecoverable configuration error,
// matching spec's exit-code-1 condition (secret missing in non-dev mode).
func (c *Config) Validate(devMode bool) error {
	if _, err := c.ParseBackends(); err != nil {
		return err
	}
	if !devMode && c.SecretKey == "" {
		return fmt.Errorf("config: SECRET_KEY is required outside dev mode")
	}
	switch c.LoadBalancerStrategy {
	case "round_robin", "least_connections", "random", "weighted_random", "weighted_round_robin":
	default:
		return fmt.Errorf("config: unknown load_balancer_strategy %q", c.LoadBalancerStrategy)
	}
	return nil
}
