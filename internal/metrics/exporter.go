package metrics

import (
	"context"
	"time"

	"github.com/Nash0810/gobalance/internal/backend"
	"github.com/Nash0810/gobalance/internal/health"
	"github.com/Nash0810/gobalance/internal/retry"
)

// Exporter periodically refreshes the gauge metrics that reflect live
// state rather than point-in-time events: backend health/connections,
// circuit breaker state, and the retry budget's remaining tokens.
type Exporter struct {
	collector   *Collector
	registry    *backend.Registry
	breakers    *health.Breakers
	retryBudget *retry.Budget
}

func NewExporter(collector *Collector, registry *backend.Registry, breakers *health.Breakers, retryBudget *retry.Budget) *Exporter {
	return &Exporter{
		collector:   collector,
		registry:    registry,
		breakers:    breakers,
		retryBudget: retryBudget,
	}
}

func (e *Exporter) Start(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	e.export()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.export()
		}
	}
}

func (e *Exporter) export() {
	for _, b := range e.registry.List() {
		state := 0.0
		switch {
		case b.IsHealthy():
			state = 2
		case b.IsDraining():
			state = 1
		}
		e.collector.BackendState.WithLabelValues(b.ID).Set(state)
		e.collector.BackendConnections.WithLabelValues(b.ID).Set(float64(b.ActiveConnections()))

		if e.breakers != nil {
			e.collector.CircuitBreakerState.WithLabelValues(b.ID).Set(float64(e.breakers.Get(b.ID).GetState()))
		}
	}

	if e.retryBudget != nil {
		e.collector.RetryBudgetTokens.Set(float64(e.retryBudget.GetAvailable()))
	}
}
