package balancer

import (
	"github.com/Nash0810/gobalance/internal/backend"
)

// LeastConnectionsStrategy selects the backend with the fewest active
// connections; ties broken by lowest total_requests, then by id
// lexicographic order.
type LeastConnectionsStrategy struct{}

func NewLeastConnectionsStrategy() *LeastConnectionsStrategy {
	return &LeastConnectionsStrategy{}
}

func (lc *LeastConnectionsStrategy) Select(candidates []*backend.Backend) *backend.Backend {
	if len(candidates) == 0 {
		return nil
	}

	selected := candidates[0]
	for _, b := range candidates[1:] {
		switch {
		case b.ActiveConnections() < selected.ActiveConnections():
			selected = b
		case b.ActiveConnections() == selected.ActiveConnections():
			if b.TotalRequests() < selected.TotalRequests() {
				selected = b
			} else if b.TotalRequests() == selected.TotalRequests() && b.ID < selected.ID {
				selected = b
			}
		}
	}
	return selected
}

func (lc *LeastConnectionsStrategy) Name() string { return "least_connections" }
