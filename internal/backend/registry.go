package backend

import (
	"net/url"
	"sort"
	"sync"
	"time"
)

// ErrUnknownBackend is returned by operations addressed to a backend id
// the registry does not hold.
type ErrUnknownBackend string

func (e ErrUnknownBackend) Error() string {
	return "backend: unknown backend id " + string(e)
}

// Registry holds the set of backends. All mutation is serialized under
// a single mutex; reads that return snapshots copy fields out under the
// same lock, never across a suspension point.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*Backend
	order    []string // insertion order, for deterministic list()
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[string]*Backend),
	}
}

// Add registers a backend under id. Idempotent by id: a second Add for
// an id already present is a no-op.
func (r *Registry) Add(id string, u *url.URL, weight int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; ok {
		return
	}
	r.byID[id] = NewBackend(id, u, weight)
	r.order = append(r.order, id)
}

// Remove drops a backend from the registry. The health prober never
// calls this; only configuration reload or admin action does. A
// backend with outstanding active connections is put in the draining
// state instead and reaped once those connections finish.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	b, ok := r.byID[id]
	r.mu.Unlock()
	if !ok {
		return
	}

	if b.ActiveConnections() > 0 {
		b.SetDraining()
		return
	}
	r.delete(id)
}

func (r *Registry) delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return
	}
	delete(r.byID, id)
	for i, bid := range r.order {
		if bid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// ReapDrained deletes any draining backend whose active connections
// have reached zero. Called opportunistically after UpdateMetrics and
// on each health-prober tick.
func (r *Registry) ReapDrained() {
	for _, b := range r.List() {
		if b.IsDraining() && b.ActiveConnections() == 0 {
			r.delete(b.ID)
		}
	}
}

// Get returns the backend for id, or nil if absent.
func (r *Registry) Get(id string) *Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// List returns every backend in registration order.
func (r *Registry) List() []*Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Backend, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Healthy returns the subset of List() currently passing the healthy
// invariant.
func (r *Registry) Healthy() []*Backend {
	all := r.List()
	out := make([]*Backend, 0, len(all))
	for _, b := range all {
		if b.IsHealthy() {
			out = append(out, b)
		}
	}
	return out
}

// UpdateMetrics records a dispatch outcome for id. A no-op if id is
// unknown (the backend may have been removed mid-flight by a reload).
func (r *Registry) UpdateMetrics(id string, success bool, responseTime time.Duration, tokens int64) {
	b := r.Get(id)
	if b == nil {
		return
	}
	b.UpdateMetrics(success, responseTime, tokens)
	if b.IsDraining() {
		r.ReapDrained()
	}
}

// MarkHealthy flips id's healthy flag on and resets its health-check
// failure streak.
func (r *Registry) MarkHealthy(id string) {
	if b := r.Get(id); b != nil {
		b.MarkHealthy()
	}
}

// MarkUnhealthy flips id's healthy flag off.
func (r *Registry) MarkUnhealthy(id string) {
	if b := r.Get(id); b != nil {
		b.MarkUnhealthy()
	}
}

// Snapshots returns an Instance Metrics Snapshot per backend, sorted by
// id, for the admin stats endpoint.
func (r *Registry) Snapshots() []Snapshot {
	all := r.List()
	out := make([]Snapshot, 0, len(all))
	for _, b := range all {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Size returns the number of registered backends.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
