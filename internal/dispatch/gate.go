// Package dispatch implements the Single-Flight Gate: it coalesces
// concurrent identical cacheable requests onto one in-flight
// generation, so N simultaneous callers with the same cache key issue
// exactly one backend call and all receive the same result.
package dispatch

import (
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Result is the value shape single-flight callers share: a completed
// response body plus the token count the backend reported, so every
// waiter (not just the one that triggered the call) can record
// metrics for its own request.
type Result struct {
	Body   string
	Tokens int
}

// Gate wraps a singleflight.Group and counts how many callers were
// coalesced onto someone else's in-flight call, for the
// cache_coalesced_total metric.
type Gate struct {
	group     singleflight.Group
	coalesced atomic.Int64
}

func NewGate() *Gate {
	return &Gate{}
}

// Do runs producer for the first caller with a given key; concurrent
// callers with the same key block on that call and receive the same
// Result and error rather than triggering their own backend request.
func (g *Gate) Do(key string, producer func() (Result, error)) (Result, error, bool) {
	v, err, shared := g.group.Do(key, func() (interface{}, error) {
		return producer()
	})
	if shared {
		g.coalesced.Add(1)
	}
	if v == nil {
		return Result{}, err, shared
	}
	return v.(Result), err, shared
}

// Coalesced returns how many calls were deduplicated onto someone
// else's in-flight generation since process start.
func (g *Gate) Coalesced() int64 {
	return g.coalesced.Load()
}
