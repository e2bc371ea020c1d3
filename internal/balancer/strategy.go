package balancer

import (
	"github.com/Nash0810/gobalance/internal/backend"
)

// Strategy picks one backend out of an already-computed candidate set
// (healthy backends, or the full registry if none are healthy and the
// fallback policy allows it). Implementations never reserve the
// connection themselves — Balancer.Select does that exactly once,
// after the strategy returns.
type Strategy interface {
	Select(candidates []*backend.Backend) *backend.Backend
	Name() string
}

// NewStrategy constructs the named strategy, one of the four spec
// values plus the smooth-weighted-round-robin enrichment.
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "round_robin", "":
		return NewRoundRobinStrategy(), nil
	case "least_connections":
		return NewLeastConnectionsStrategy(), nil
	case "random":
		return NewRandomStrategy(), nil
	case "weighted_random":
		return NewWeightedRandomStrategy(), nil
	case "weighted_round_robin":
		return NewWeightedRoundRobinStrategy(), nil
	default:
		return nil, UnknownStrategyError(name)
	}
}

type UnknownStrategyError string

func (e UnknownStrategyError) Error() string {
	return "balancer: unknown strategy " + string(e)
}
