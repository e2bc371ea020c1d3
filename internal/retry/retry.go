package retry

import (
	"context"
	"math"
	"time"
)

// Policy is the retry combinator's configuration: exponential backoff
// with a base, a cap, and a multiplier, bounded by max attempts and an
// adaptive token budget.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	Multiplier  float64
	budget      *Budget
}

// NewPolicy builds a policy from the given values. A maxAttempts below
// 1 becomes 1 and a non-positive multiplier becomes 2; base and cap are
// used as given.
func NewPolicy(maxAttempts int, base, cap time.Duration, multiplier float64, budgetPercent int) *Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if multiplier <= 0 {
		multiplier = 2
	}
	return &Policy{
		MaxAttempts: maxAttempts,
		Base:        base,
		Cap:         cap,
		Multiplier:  multiplier,
		budget:      NewBudget(budgetPercent),
	}
}

// Backoff returns the delay before the given attempt number (1-based:
// the delay before attempt 2, attempt 3, ...), base * multiplier^(n-1)
// capped at Cap.
func (p *Policy) Backoff(attempt int) time.Duration {
	d := float64(p.Base) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.Cap) {
		d = float64(p.Cap)
	}
	return time.Duration(d)
}

// GetBudget exposes the adaptive retry budget for metrics.
func (p *Policy) GetBudget() *Budget { return p.budget }

// Op is one attempt at the operation being retried. attempt is 1-based.
type Op func(ctx context.Context, attempt int) error

// Do runs op up to MaxAttempts times with exponential backoff between
// attempts, re-entering op fresh each time (the Load Balancer op
// closure is expected to pick a new backend per attempt). It stops
// early if the adaptive budget is exhausted, returning the last error
// seen, or if the context is cancelled, returning ctx.Err().
func Do(ctx context.Context, p *Policy, op Op) error {
	p.budget.TrackRequest()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == p.MaxAttempts {
			break
		}
		if !p.budget.TryConsume() {
			break
		}

		select {
		case <-time.After(p.Backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
