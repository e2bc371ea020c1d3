package balancer

import (
	"math/rand"

	"github.com/Nash0810/gobalance/internal/backend"
)

// RandomStrategy picks uniformly over the candidate set.
type RandomStrategy struct{}

func NewRandomStrategy() *RandomStrategy {
	return &RandomStrategy{}
}

func (r *RandomStrategy) Select(candidates []*backend.Backend) *backend.Backend {
	if len(candidates) == 0 {
		return nil
	}
	return candidates[rand.Intn(len(candidates))]
}

func (r *RandomStrategy) Name() string { return "random" }

// WeightedRandomStrategy picks with probability proportional to
// weight. A backend with weight 0 is never selected in this mode,
// unless every candidate has weight 0, in which case selection falls
// back to uniform so the strategy still returns a backend rather than
// silently black-holing traffic.
type WeightedRandomStrategy struct{}

func NewWeightedRandomStrategy() *WeightedRandomStrategy {
	return &WeightedRandomStrategy{}
}

func (w *WeightedRandomStrategy) Select(candidates []*backend.Backend) *backend.Backend {
	if len(candidates) == 0 {
		return nil
	}

	total := 0
	for _, b := range candidates {
		total += b.Weight
	}
	if total == 0 {
		return candidates[rand.Intn(len(candidates))]
	}

	target := rand.Intn(total)
	cumulative := 0
	for _, b := range candidates {
		cumulative += b.Weight
		if target < cumulative {
			return b
		}
	}
	return candidates[len(candidates)-1]
}

func (w *WeightedRandomStrategy) Name() string { return "weighted_random" }
