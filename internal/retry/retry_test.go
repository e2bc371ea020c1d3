package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffExponentialWithCap(t *testing.T) {
	p := NewPolicy(5, 1*time.Second, 10*time.Second, 2, 100)

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // would be 16s, capped at 10s
	}
	for _, c := range cases {
		if got := p.Backoff(c.attempt); got != c.want {
			t.Errorf("Backoff(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestDoReturnsNilOnFirstSuccess(t *testing.T) {
	p := NewPolicy(3, time.Millisecond, time.Millisecond, 2, 100)
	calls := 0
	err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call, got %d", calls)
	}
}

func TestDoRetriesUpToMaxAttempts(t *testing.T) {
	p := NewPolicy(3, time.Millisecond, time.Millisecond, 2, 100)
	calls := 0
	wantErr := errors.New("backend unreachable")
	err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Do: got %v, want %v", err, wantErr)
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
}

func TestDoStopsOnFirstSuccessAfterFailures(t *testing.T) {
	p := NewPolicy(5, time.Millisecond, time.Millisecond, 2, 100)
	calls := 0
	err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected to stop at attempt 3, got %d calls", calls)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	p := NewPolicy(5, 50*time.Millisecond, 50*time.Millisecond, 2, 100)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, p, func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("always fails")
	})
	if err == nil {
		t.Fatal("expected an error when context is cancelled")
	}
	if calls >= 5 {
		t.Errorf("expected cancellation to cut attempts short, got %d calls", calls)
	}
}

func TestDoHonorsExhaustedBudget(t *testing.T) {
	p := NewPolicy(5, time.Millisecond, time.Millisecond, 2, 1)
	for p.budget.TryConsume() {
		// drain whatever tokens NewBudget granted
	}

	calls := 0
	err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("fails")
	})
	if err == nil {
		t.Fatal("expected error once budget is exhausted")
	}
	if calls != 1 {
		t.Errorf("expected budget exhaustion to stop after the first attempt, got %d calls", calls)
	}
}

func TestRetryBudgetTokens(t *testing.T) {
	budget := NewBudget(10)
	for i := 0; i < 1000; i++ {
		budget.TrackRequest()
	}
	if !budget.TryConsume() {
		t.Log("warning: could not consume a retry token immediately after construction")
	}
}

func TestRetryBudgetAdaptive(t *testing.T) {
	budget := NewBudget(20)
	for i := 0; i < 5000; i++ {
		budget.TrackRequest()
	}
	if budget.GetAvailable() < 0 {
		t.Error("available tokens should never go negative")
	}
}
