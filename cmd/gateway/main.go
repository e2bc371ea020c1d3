package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Nash0810/gobalance/internal/auth"
	"github.com/Nash0810/gobalance/internal/backend"
	"github.com/Nash0810/gobalance/internal/balancer"
	"github.com/Nash0810/gobalance/internal/cache"
	"github.com/Nash0810/gobalance/internal/config"
	"github.com/Nash0810/gobalance/internal/dispatch"
	"github.com/Nash0810/gobalance/internal/health"
	"github.com/Nash0810/gobalance/internal/logging"
	"github.com/Nash0810/gobalance/internal/metrics"
	"github.com/Nash0810/gobalance/internal/proxy"
	"github.com/Nash0810/gobalance/internal/ratelimit"
	"github.com/Nash0810/gobalance/internal/retry"
	"github.com/Nash0810/gobalance/internal/server"
	"github.com/Nash0810/gobalance/internal/store"
)

// retryBudgetPercent bounds the fraction of in-flight requests that
// may be retries at once, matching the source's fixed 10% budget.
// config.RetryConfig carries no field for it since the source never
// exposed it as a tunable.
const retryBudgetPercent = 10

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the gateway config file")
	devMode := flag.Bool("dev", os.Getenv("GOBALANCE_DEV") == "true", "relax startup validation (no SECRET_KEY required)")
	flag.Parse()

	logger := logging.NewLogger("gateway")
	logger.Info("starting_gateway")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed_to_load_config", "error", err.Error())
		log.Fatal(err)
	}
	if err := cfg.Validate(*devMode); err != nil {
		logger.Error("invalid_config", "error", err.Error())
		os.Exit(1)
	}

	parsedBackends, err := cfg.ParseBackends()
	if err != nil {
		logger.Error("failed_to_parse_backends", "error", err.Error())
		os.Exit(1)
	}

	registry := backend.NewRegistry()
	for _, pb := range parsedBackends {
		registry.Add(pb.ID, pb.URL, pb.Weight)
		logger.Info("backend_added", "id", pb.ID, "url", pb.URL.String(), "weight", pb.Weight)
	}

	strategy, err := balancer.NewStrategy(cfg.LoadBalancerStrategy)
	if err != nil {
		logger.Error("invalid_strategy", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("strategy_selected", "strategy", cfg.LoadBalancerStrategy)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bal := balancer.NewBalancer(registry, strategy, cfg.AllUnhealthyFallback, logger.With("balancer"))
	breakers := health.NewBreakers(logger.With("circuit-breaker"))
	passiveTracker := health.NewPassiveTracker(registry, logger.With("passive-health"))

	activeChecker := health.NewActiveChecker(registry, cfg.HealthCheck, logger.With("active-health"))
	if cfg.HealthCheck.Enabled {
		go activeChecker.Start(ctx)
	}

	retryPolicy := retry.NewPolicy(
		cfg.Retry.MaxAttempts,
		time.Duration(cfg.Retry.BaseSeconds*float64(time.Second)),
		time.Duration(cfg.Retry.CapSeconds*float64(time.Second)),
		cfg.Retry.Multiplier,
		retryBudgetPercent,
	)

	llmProxy := proxy.NewProxy(bal, breakers, retryPolicy, cfg.FallbackHTTPStatus, passiveTracker, logger.With("proxy"))

	respCache, err := cache.New(cache.Options{
		Kind:       cfg.Cache.Kind,
		DefaultTTL: time.Duration(cfg.CacheTTL) * time.Second,
		RedisURL:   cfg.Cache.RedisURL,
	})
	if err != nil {
		logger.Error("failed_to_init_cache", "error", err.Error())
		os.Exit(1)
	}
	defer respCache.Close()

	limiter, err := ratelimit.New(ratelimit.Options{
		Kind:     cfg.RateLimit.Kind,
		RedisURL: cfg.RateLimit.RedisURL,
	})
	if err != nil {
		logger.Error("failed_to_init_rate_limiter", "error", err.Error())
		os.Exit(1)
	}
	defer limiter.Close()

	limits := ratelimit.Limits{
		ChatPerMinute:      cfg.RateLimitPerMinute,
		FinetunePerMinute:  10,
		ModelPullPerMinute: 5,
	}

	users := store.NewMemoryUserStore()
	conversations := store.NewMemoryConversationStore()
	authGate := auth.NewGate(cfg.APIKey, cfg.SecretKey, cfg.JWTAlgorithm, users)

	collector := metrics.NewCollector()
	exporter := metrics.NewExporter(collector, registry, breakers, retryPolicy.GetBudget())
	go exporter.Start(ctx)

	deps := server.Deps{
		Registry:      registry,
		Proxy:         llmProxy,
		Cache:         respCache,
		Gate:          dispatch.NewGate(),
		Limiter:       limiter,
		Limits:        limits,
		Auth:          authGate,
		Collector:     collector,
		Conversations: conversations,
		Users:         users,
		DefaultModel:  cfg.DefaultModel,
		Temperature:   cfg.Temperature,
		MaxTokens:     cfg.MaxTokens,
		CacheTTL:      time.Duration(cfg.CacheTTL) * time.Second,
		Logger:        logger.With("server"),
	}
	srv := server.NewServer(deps, cfg.CORSOrigins)

	watcher, err := config.NewWatcher(*configPath, logger.With("config-watcher"), func(newCfg *config.Config) error {
		newBackends, err := newCfg.ParseBackends()
		if err != nil {
			return err
		}
		seen := make(map[string]bool, len(newBackends))
		for _, pb := range newBackends {
			seen[pb.ID] = true
			registry.Add(pb.ID, pb.URL, pb.Weight)
		}
		for _, b := range registry.List() {
			if !seen[b.ID] {
				registry.Remove(b.ID)
			}
		}
		return nil
	})
	if err != nil {
		logger.Warn("config_watcher_unavailable", "error", err.Error())
	} else {
		go watcher.Start(ctx)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Handler(),
	}

	go func() {
		logger.Info("server_listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server_error", "error", err.Error())
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown_signal_received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown_error", "error", err.Error())
	}

	logger.Info("shutdown_complete")
}
