package balancer

import (
	"errors"

	"github.com/Nash0810/gobalance/internal/backend"
	"github.com/Nash0810/gobalance/internal/logging"
)

// ErrNoHealthyBackend is returned when no backend can be selected,
// either because the registry is empty or because the fallback policy
// disallows routing to an unhealthy set.
var ErrNoHealthyBackend = errors.New("balancer: no healthy backend available")

// Balancer is the Load Balancer component: it turns a request into a
// reserved Backend (active-connection counter already incremented) or
// ErrNoHealthyBackend. The caller must invoke UpdateMetrics exactly
// once with the outcome, per the registry's contract.
type Balancer struct {
	registry *backend.Registry
	strategy Strategy
	logger   *logging.Logger

	// AllUnhealthyFallback resolves spec's Open Question 1: when true,
	// an all-unhealthy registry falls back to the full backend set
	// rather than failing fast.
	AllUnhealthyFallback bool

	// AllowFunc, when set, is an additional fast-fail filter consulted
	// after the healthy-set is computed (the circuit breaker layer).
	// It never makes an unhealthy backend eligible, only removes
	// healthy ones that are currently tripped.
	AllowFunc func(id string) bool
}

func NewBalancer(registry *backend.Registry, strategy Strategy, allUnhealthyFallback bool, logger *logging.Logger) *Balancer {
	return &Balancer{
		registry:             registry,
		strategy:             strategy,
		AllUnhealthyFallback: allUnhealthyFallback,
		logger:               logger,
	}
}

// Select reserves and returns a backend chosen by the configured
// strategy. Only healthy backends are candidates; if none are healthy,
// it falls back to the full registry set when AllUnhealthyFallback is
// set, so a transient all-unhealthy state does not black-hole traffic.
func (b *Balancer) Select() (*backend.Backend, error) {
	candidates := b.registry.Healthy()
	if len(candidates) == 0 {
		if !b.AllUnhealthyFallback {
			return nil, ErrNoHealthyBackend
		}
		candidates = b.registry.List()
		if len(candidates) == 0 {
			return nil, ErrNoHealthyBackend
		}
		b.logger.Warn("all_backends_unhealthy_falling_back", "candidates", len(candidates))
	} else if b.AllowFunc != nil {
		filtered := candidates[:0:0]
		for _, c := range candidates {
			if b.AllowFunc(c.ID) {
				filtered = append(filtered, c)
			}
		}
		if len(filtered) > 0 {
			candidates = filtered
		}
	}

	selected := b.strategy.Select(candidates)
	if selected == nil {
		return nil, ErrNoHealthyBackend
	}

	selected.Reserve()
	return selected, nil
}

// Strategy exposes the configured selection strategy, mainly for tests
// and admin introspection.
func (b *Balancer) Strategy() Strategy { return b.strategy }
