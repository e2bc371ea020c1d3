package balancer

import (
	"net/url"
	"testing"

	"github.com/Nash0810/gobalance/internal/backend"
	"github.com/Nash0810/gobalance/internal/logging"
)

func newTestRegistry(t *testing.T, n int) *backend.Registry {
	t.Helper()
	reg := backend.NewRegistry()
	for i := 0; i < n; i++ {
		u, _ := url.Parse("http://localhost:808" + string(rune('1'+i)))
		reg.Add(string(rune('a'+i)), u, 1)
	}
	return reg
}

func TestBalancerSelectReservesBackend(t *testing.T) {
	reg := newTestRegistry(t, 3)
	strategy := NewRoundRobinStrategy()
	b := NewBalancer(reg, strategy, false, logging.NewLogger("test"))

	selected, err := b.Select()
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if selected.ActiveConnections() != 1 {
		t.Errorf("expected selected backend to be reserved, got %d active connections", selected.ActiveConnections())
	}
}

func TestBalancerReturnsErrNoHealthyBackendWithoutFallback(t *testing.T) {
	reg := newTestRegistry(t, 2)
	for _, be := range reg.List() {
		reg.MarkUnhealthy(be.ID)
	}

	b := NewBalancer(reg, NewRoundRobinStrategy(), false, logging.NewLogger("test"))
	if _, err := b.Select(); err != ErrNoHealthyBackend {
		t.Errorf("expected ErrNoHealthyBackend, got %v", err)
	}
}

func TestBalancerFallsBackToFullSetWhenAllUnhealthy(t *testing.T) {
	reg := newTestRegistry(t, 2)
	for _, be := range reg.List() {
		reg.MarkUnhealthy(be.ID)
	}

	b := NewBalancer(reg, NewRoundRobinStrategy(), true, logging.NewLogger("test"))
	selected, err := b.Select()
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if selected == nil {
		t.Fatal("expected a backend from the fallback set")
	}
}

func TestBalancerAllowFuncFiltersOutTrippedBackends(t *testing.T) {
	reg := newTestRegistry(t, 2)
	ids := make([]string, 0, 2)
	for _, be := range reg.List() {
		ids = append(ids, be.ID)
	}

	b := NewBalancer(reg, NewRoundRobinStrategy(), false, logging.NewLogger("test"))
	b.AllowFunc = func(id string) bool { return id != ids[0] }

	for i := 0; i < 5; i++ {
		selected, err := b.Select()
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if selected.ID == ids[0] {
			t.Errorf("expected tripped backend %s to never be selected", ids[0])
		}
	}
}

func TestBalancerAllowFuncIgnoredWhenEverythingIsTripped(t *testing.T) {
	reg := newTestRegistry(t, 2)
	b := NewBalancer(reg, NewRoundRobinStrategy(), false, logging.NewLogger("test"))
	b.AllowFunc = func(id string) bool { return false }

	// All candidates tripped: fall back to the unfiltered healthy set
	// rather than returning ErrNoHealthyBackend on a breaker artifact.
	if _, err := b.Select(); err != nil {
		t.Errorf("expected a selection despite all breakers tripped, got %v", err)
	}
}
