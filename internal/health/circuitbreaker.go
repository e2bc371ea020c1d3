package health

import (
	"sync"
	"time"

	"github.com/Nash0810/gobalance/internal/logging"
)

// CircuitState is the circuit breaker's own state, independent of the
// registry's healthy flag.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (cs CircuitState) String() string {
	switch cs {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker gives the streaming proxy a fail-fast signal that is
// faster to trip and faster to recover than the registry's
// consecutive-error-count threshold: a burst of failures within the
// sliding window opens the circuit immediately, independent of whether
// the registry has yet crossed its own threshold. This is layered on
// top of, and never overrides, the registry's healthy invariant — the
// balancer still selects only registry-healthy backends; the breaker
// only decides whether the proxy attempts a dispatch before even
// reserving one.
type CircuitBreaker struct {
	name           string
	logger         *logging.Logger
	state          CircuitState
	successes      int64
	lastFailTime   time.Time
	recentFailures []time.Time
	mux            sync.RWMutex

	failureThreshold int
	successThreshold int
	timeout          time.Duration
	windowSize       time.Duration
}

func NewCircuitBreaker(name string, logger *logging.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		logger:           logger,
		state:            StateClosed,
		failureThreshold: 5,
		successThreshold: 2,
		timeout:          30 * time.Second,
		windowSize:       10 * time.Second,
	}
}

// AllowRequest reports whether a dispatch to this backend may proceed.
func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mux.Lock()
	defer cb.mux.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailTime) >= cb.timeout {
			cb.logger.Info("circuit_half_open", "backend", cb.name)
			cb.state = StateHalfOpen
			cb.successes = 0
			return true
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mux.Lock()
	defer cb.mux.Unlock()

	cb.successes++

	if cb.state == StateHalfOpen {
		if cb.successes >= int64(cb.successThreshold) {
			cb.logger.Info("circuit_closed", "backend", cb.name, "successes", cb.successes)
			cb.state = StateClosed
			cb.recentFailures = nil
			cb.successes = 0
		}
	} else if cb.state == StateClosed {
		cb.cleanOldFailures()
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mux.Lock()
	defer cb.mux.Unlock()

	now := time.Now()
	cb.recentFailures = append(cb.recentFailures, now)
	cb.lastFailTime = now
	cb.cleanOldFailures()

	if cb.state == StateHalfOpen {
		cb.logger.Warn("circuit_reopened", "backend", cb.name)
		cb.state = StateOpen
		cb.successes = 0
	} else if cb.state == StateClosed && len(cb.recentFailures) >= cb.failureThreshold {
		cb.logger.Warn("circuit_open", "backend", cb.name, "failures", len(cb.recentFailures), "window", cb.windowSize.String())
		cb.state = StateOpen
	}
}

func (cb *CircuitBreaker) cleanOldFailures() {
	cutoff := time.Now().Add(-cb.windowSize)
	valid := cb.recentFailures[:0]
	for _, t := range cb.recentFailures {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	cb.recentFailures = valid
}

func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mux.RLock()
	defer cb.mux.RUnlock()
	return cb.state
}

// Breakers lazily creates and owns one CircuitBreaker per backend id.
type Breakers struct {
	mu     sync.Mutex
	byID   map[string]*CircuitBreaker
	logger *logging.Logger
}

func NewBreakers(logger *logging.Logger) *Breakers {
	return &Breakers{byID: make(map[string]*CircuitBreaker), logger: logger}
}

func (b *Breakers) Get(id string) *CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.byID[id]
	if !ok {
		cb = NewCircuitBreaker(id, b.logger)
		b.byID[id] = cb
	}
	return cb
}
