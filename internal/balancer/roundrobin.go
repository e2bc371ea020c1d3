package balancer

import (
	"sync/atomic"

	"github.com/Nash0810/gobalance/internal/backend"
)

// RoundRobinStrategy maintains a monotonically increasing cursor over
// the candidate set. The cursor wraps and never resets across calls
// (only across process restarts), per spec's ordering guarantee.
type RoundRobinStrategy struct {
	cursor uint64
}

func NewRoundRobinStrategy() *RoundRobinStrategy {
	return &RoundRobinStrategy{}
}

func (rr *RoundRobinStrategy) Select(candidates []*backend.Backend) *backend.Backend {
	if len(candidates) == 0 {
		return nil
	}
	n := atomic.AddUint64(&rr.cursor, 1) - 1
	return candidates[n%uint64(len(candidates))]
}

func (rr *RoundRobinStrategy) Name() string { return "round_robin" }
