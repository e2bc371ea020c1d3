package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Nash0810/gobalance/internal/backend"
	"github.com/Nash0810/gobalance/internal/config"
	"github.com/Nash0810/gobalance/internal/logging"
)

// ActiveChecker is the single cooperative task that probes every
// backend's tag-listing endpoint on a fixed interval and flips the
// registry's healthy flag immediately on each result.
type ActiveChecker struct {
	registry *backend.Registry
	cfg      config.HealthCheckConfig
	client   *http.Client
	logger   *logging.Logger
}

func NewActiveChecker(registry *backend.Registry, cfg config.HealthCheckConfig, logger *logging.Logger) *ActiveChecker {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ActiveChecker{
		registry: registry,
		cfg:      cfg,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Start runs the probe loop until ctx is cancelled, per spec's 30s
// interval / 5s deadline and its "never removes backends" rule.
func (ac *ActiveChecker) Start(ctx context.Context) {
	if !ac.cfg.Enabled {
		ac.logger.Info("active_health_checks_disabled")
		return
	}

	interval := time.Duration(ac.cfg.Interval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ac.logger.Info("active_health_checker_started", "interval", interval.String())
	ac.checkAll(ctx)

	for {
		select {
		case <-ctx.Done():
			ac.logger.Info("active_health_checker_stopped")
			return
		case <-ticker.C:
			ac.checkAll(ctx)
		}
	}
}

func (ac *ActiveChecker) checkAll(ctx context.Context) {
	backends := ac.registry.List()

	var wg sync.WaitGroup
	for _, b := range backends {
		wg.Add(1)
		go func(b *backend.Backend) {
			defer wg.Done()
			ac.checkOne(ctx, b)
		}(b)
	}
	wg.Wait()
	ac.registry.ReapDrained()
}

func (ac *ActiveChecker) checkOne(ctx context.Context, b *backend.Backend) {
	path := ac.cfg.Path
	if path == "" {
		path = "/api/tags"
	}
	target := b.URL.String() + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		ac.fail(b, err)
		return
	}

	resp, err := ac.client.Do(req)
	if err != nil {
		ac.fail(b, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ac.fail(b, fmt.Errorf("status code %d", resp.StatusCode))
		return
	}
	ac.succeed(b)
}

func (ac *ActiveChecker) succeed(b *backend.Backend) {
	wasHealthy := b.IsHealthy()
	b.MarkHealthy()
	if !wasHealthy {
		ac.logger.Info("backend_health_recovered", "backend", b.ID, "state", b.State().String())
	}
}

func (ac *ActiveChecker) fail(b *backend.Backend, err error) {
	wasHealthy := b.IsHealthy()
	b.MarkUnhealthy()
	if wasHealthy {
		ac.logger.Warn("backend_health_check_failed", "backend", b.ID, "error", err.Error(), "state", b.State().String())
	}
}
