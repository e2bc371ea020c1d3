package health

import (
	"time"

	"github.com/Nash0810/gobalance/internal/backend"
	"github.com/Nash0810/gobalance/internal/logging"
)

// PassiveTracker records real-request outcomes against the registry,
// logging the healthy → unhealthy transition at the threshold the
// registry itself enforces (consecutive_error_count reaching 5). It
// holds no state of its own; Backend.UpdateMetrics is the single
// source of truth.
type PassiveTracker struct {
	registry *backend.Registry
	logger   *logging.Logger
}

func NewPassiveTracker(registry *backend.Registry, logger *logging.Logger) *PassiveTracker {
	return &PassiveTracker{registry: registry, logger: logger}
}

func (pt *PassiveTracker) RecordSuccess(id string, responseTime time.Duration, tokens int64) {
	pt.registry.UpdateMetrics(id, true, responseTime, tokens)
}

func (pt *PassiveTracker) RecordFailure(id string, responseTime time.Duration, err error) {
	wasHealthy := false
	if b := pt.registry.Get(id); b != nil {
		wasHealthy = b.IsHealthy()
	}

	pt.registry.UpdateMetrics(id, false, responseTime, 0)

	if b := pt.registry.Get(id); b != nil {
		pt.logger.Warn("backend_request_failed", "backend", id, "error", err, "consecutive_errors", b.ConsecutiveErrors())
		if wasHealthy && !b.IsHealthy() {
			pt.logger.Warn("backend_marked_unhealthy", "backend", id, "consecutive_errors", b.ConsecutiveErrors())
		}
	}
}
