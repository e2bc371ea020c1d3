package ratelimit

import (
	"testing"
)

func TestMemoryLimiterAllowsUpToLimit(t *testing.T) {
	l := NewMemoryLimiter()
	defer l.Close()

	for i := 0; i < 3; i++ {
		d := l.Allow("1.2.3.4", ClassChat, 3)
		if !d.Allowed {
			t.Fatalf("request %d: expected allowed, got denied", i+1)
		}
	}

	d := l.Allow("1.2.3.4", ClassChat, 3)
	if d.Allowed {
		t.Error("the (limit+1)th request should be denied")
	}
}

func TestMemoryLimiterTracksBucketsIndependently(t *testing.T) {
	l := NewMemoryLimiter()
	defer l.Close()

	l.Allow("1.2.3.4", ClassChat, 1)
	d := l.Allow("1.2.3.4", ClassFinetune, 1)
	if !d.Allowed {
		t.Error("a different endpoint class should have its own bucket")
	}

	d = l.Allow("5.6.7.8", ClassChat, 1)
	if !d.Allowed {
		t.Error("a different client IP should have its own bucket")
	}
}

func TestMemoryLimiterUnlimitedClassAlwaysAllows(t *testing.T) {
	l := NewMemoryLimiter()
	defer l.Close()

	for i := 0; i < 100; i++ {
		d := l.Allow("1.2.3.4", ClassUnlimited, 0)
		if !d.Allowed {
			t.Fatalf("request %d: limit 0 should always be allowed", i+1)
		}
	}
}

func TestMemoryLimiterRemainingDecrements(t *testing.T) {
	l := NewMemoryLimiter()
	defer l.Close()

	d1 := l.Allow("1.2.3.4", ClassChat, 5)
	d2 := l.Allow("1.2.3.4", ClassChat, 5)

	if d1.Remaining != 4 {
		t.Errorf("expected remaining=4 after first request, got %d", d1.Remaining)
	}
	if d2.Remaining != 3 {
		t.Errorf("expected remaining=3 after second request, got %d", d2.Remaining)
	}
}

func TestLimitsLimitForResolvesPerClass(t *testing.T) {
	l := Limits{ChatPerMinute: 60, FinetunePerMinute: 10, ModelPullPerMinute: 5}

	cases := []struct {
		class EndpointClass
		want  int
	}{
		{ClassChat, 60},
		{ClassFinetune, 10},
		{ClassModelPull, 5},
		{ClassUnlimited, 0},
	}
	for _, c := range cases {
		if got := l.LimitFor(c.class); got != c.want {
			t.Errorf("LimitFor(%s) = %d, want %d", c.class, got, c.want)
		}
	}
}

func TestNewDefaultsToMemoryBackend(t *testing.T) {
	l, err := New(Options{Kind: "bogus"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()
	if _, ok := l.(*MemoryLimiter); !ok {
		t.Errorf("expected unknown backend kind to default to MemoryLimiter, got %T", l)
	}
}
