package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds every Prometheus metric the gateway exports: the
// fixed set named by the metrics sink design (requests, tokens,
// cache, response time, and the conversation/user/system gauges) plus
// enrichment series for backend and retry-budget introspection.
type Collector struct {
	RequestsTotal    *prometheus.CounterVec
	TokensTotal      *prometheus.CounterVec
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	CacheCoalesced   prometheus.Counter
	ResponseTime     *prometheus.HistogramVec

	ActiveConversations prometheus.Gauge
	ActiveUsers          prometheus.Gauge
	SystemMemoryPercent  prometheus.Gauge
	SystemCPUPercent     prometheus.Gauge

	BackendState        *prometheus.GaugeVec
	BackendConnections  *prometheus.GaugeVec
	CircuitBreakerState *prometheus.GaugeVec

	HealthCheckTotal *prometheus.CounterVec
	RetriesTotal     *prometheus.CounterVec
	RetryBudgetTokens prometheus.Gauge

	RateLimitRejectedTotal *prometheus.CounterVec
}

// responseTimeBuckets matches the metrics sink design exactly.
var responseTimeBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}

// NewCollector registers every metric against the default Prometheus
// registry, the one promhttp.Handler() serves at /metrics.
func NewCollector() *Collector {
	return newCollector(promauto.With(prometheus.DefaultRegisterer))
}

// NewCollectorWithRegistry registers against a caller-supplied
// registry, so tests can construct independent collectors without
// colliding on Prometheus's global default registry.
func NewCollectorWithRegistry(reg prometheus.Registerer) *Collector {
	return newCollector(promauto.With(reg))
}

func newCollector(f promauto.Factory) *Collector {
	return &Collector{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "requests_total",
				Help: "Total number of gateway requests",
			},
			[]string{"model", "endpoint", "status"},
		),

		TokensTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokens_total",
				Help: "Total number of tokens served",
			},
			[]string{"model", "endpoint"},
		),

		CacheHitsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of response cache hits",
			},
		),

		CacheMissesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of response cache misses",
			},
		),

		CacheCoalesced: f.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_coalesced_total",
				Help: "Total number of requests coalesced onto an in-flight generation by the single-flight gate",
			},
		),

		ResponseTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "response_time_seconds",
				Help:    "Generation response time in seconds",
				Buckets: responseTimeBuckets,
			},
			[]string{"model", "endpoint"},
		),

		ActiveConversations: f.NewGauge(prometheus.GaugeOpts{
			Name: "active_conversations",
			Help: "Number of conversations currently tracked in the store",
		}),
		ActiveUsers: f.NewGauge(prometheus.GaugeOpts{
			Name: "active_users",
			Help: "Number of distinct users seen in the current window",
		}),
		SystemMemoryPercent: f.NewGauge(prometheus.GaugeOpts{
			Name: "system_memory_percent",
			Help: "Process resident memory as a percent of configured ceiling",
		}),
		SystemCPUPercent: f.NewGauge(prometheus.GaugeOpts{
			Name: "system_cpu_percent",
			Help: "Process CPU utilization percent",
		}),

		BackendState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "backend_state",
				Help: "Backend health state (0=unhealthy, 1=draining, 2=healthy)",
			},
			[]string{"backend"},
		),
		BackendConnections: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "backend_active_connections",
				Help: "Active connections per backend",
			},
			[]string{"backend"},
		),
		CircuitBreakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=CLOSED, 1=OPEN, 2=HALF_OPEN)",
			},
			[]string{"backend"},
		),

		HealthCheckTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "health_checks_total",
				Help: "Total number of active health checks performed",
			},
			[]string{"backend", "result"},
		),

		RetriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retries_total",
				Help: "Total number of dispatch retries",
			},
			[]string{"reason"},
		),
		RetryBudgetTokens: f.NewGauge(prometheus.GaugeOpts{
			Name: "retry_budget_tokens",
			Help: "Available retry budget tokens",
		}),

		RateLimitRejectedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_limit_rejected_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"endpoint_class"},
		),
	}
}

// RecordRequest records a completed request's outcome, the common
// entry point called from the HTTP surface once a handler finishes.
func (c *Collector) RecordRequest(model, endpoint, status string, elapsedSeconds float64, tokens int) {
	c.RequestsTotal.WithLabelValues(model, endpoint, status).Inc()
	c.ResponseTime.WithLabelValues(model, endpoint).Observe(elapsedSeconds)
	if tokens > 0 {
		c.TokensTotal.WithLabelValues(model, endpoint).Add(float64(tokens))
	}
}

func (c *Collector) RecordCacheHit()  { c.CacheHitsTotal.Inc() }
func (c *Collector) RecordCacheMiss() { c.CacheMissesTotal.Inc() }
