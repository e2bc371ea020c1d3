package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"port":                    8080,
		"default_model":           "deepseek-coder:6.7b",
		"max_tokens":              4096,
		"temperature":             0.7,
		"load_balancer_strategy":  "round_robin",
		"cache_ttl":               3600,
		"rate_limit_per_minute":   60,
		"jwt_algorithm":           "HS256",
		"jwt_expire_minutes":      30,
		"request_timeout":         30,
		"all_unhealthy_fallback":  true,
		"fallback_http_status":    200,
		"health_check.enabled":    true,
		"health_check.interval":   30,
		"health_check.timeout":    5,
		"health_check.path":       "/api/tags",
		"retry.max_attempts":      3,
		"retry.base_seconds":      1.0,
		"retry.cap_seconds":       10.0,
		"retry.multiplier":        2.0,
		"cache_backend.kind":      "memory",
		"rate_limit_backend.kind": "memory",
	}
}

// csvKeys lists the environment variables that carry comma-separated
// lists rather than scalars.
var csvKeys = map[string]bool{
	"ollama_instances": true,
	"cors_origins":     true,
}

// envKey maps an uppercase-with-underscores environment variable name
// (OLLAMA_BASE_URL) onto its lowercase koanf key (ollama_base_url).
func envKey(s string) string {
	return strings.ToLower(s)
}

// Load builds the layered configuration: built-in defaults, then an
// optional YAML file at yamlPath (skipped silently if it does not
// exist), then environment variables, which win.
func Load(yamlPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}

	if yamlPath != "" {
		if _, err := os.Stat(yamlPath); err == nil {
			if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("config: reading %s: %w", yamlPath, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	// koanf's env provider hands comma-separated values through as a
	// single string; split the list-valued keys by hand.
	if v := k.String("ollama_instances"); v != "" && len(cfg.OllamaInstances) == 0 {
		cfg.OllamaInstances = splitCSV(v)
	}
	if v := k.String("cors_origins"); v != "" && len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = splitCSV(v)
	}

	return &cfg, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
