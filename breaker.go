package payclient

import (
	"log/slog"
	"sync"
	"time"
)

// BreakerState represents the state of the circuit breaker.
type BreakerState int

const (
	// StateClosed means requests flow normally.
	StateClosed BreakerState = iota

	// StateOpen means requests are rejected without touching the wire.
	StateOpen

	// StateHalfOpen means a single trial request is probing recovery.
	StateHalfOpen
)

// String returns the string representation of the breaker state.
func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerSnapshot is a read-only view of the breaker, safe to publish in
// health reports.
type BreakerSnapshot struct {
	State               BreakerState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastTransition      time.Time    `json:"last_transition"`
}

// CircuitBreaker gates outbound charge calls per downstream dependency.
// It tracks consecutive failures while closed, opens once the threshold is
// reached, and lets a single trial call through after the recovery window.
//
// All methods are safe for concurrent use; one coarse mutex guards the
// whole state, which is fine because no operation blocks on I/O.
type CircuitBreaker struct {
	mu sync.Mutex

	state               BreakerState
	consecutiveFailures int
	lastTransition      time.Time
	trialInFlight       bool

	failureThreshold int
	recoveryTimeout  time.Duration

	now           func() time.Time
	logger        *slog.Logger
	onStateChange func(from, to BreakerState)
}

// NewCircuitBreaker creates a closed breaker. A threshold below 1 falls
// back to the default threshold and a non-positive recovery timeout falls
// back to the default recovery window.
func NewCircuitBreaker(threshold int, recovery time.Duration, opts ...BreakerOption) *CircuitBreaker {
	if threshold < 1 {
		threshold = defaultFailureThreshold
	}
	if recovery <= 0 {
		recovery = defaultRecoveryTimeout
	}

	cb := &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: threshold,
		recoveryTimeout:  recovery,
		now:              time.Now,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(cb)
	}
	cb.lastTransition = cb.now()
	return cb
}

// BreakerOption configures a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithBreakerClock pins the breaker's clock. Used by tests to step
// through the recovery window without sleeping.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) {
		if now != nil {
			cb.now = now
		}
	}
}

// WithBreakerLogger sets the logger used for state-change events.
func WithBreakerLogger(logger *slog.Logger) BreakerOption {
	return func(cb *CircuitBreaker) {
		if logger != nil {
			cb.logger = logger
		}
	}
}

// WithStateChangeHandler registers a callback invoked on every state
// transition. The callback runs with the breaker lock held, so it must
// not call back into the breaker.
func WithStateChangeHandler(fn func(from, to BreakerState)) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.onStateChange = fn
	}
}

// Allow reports whether a call may proceed. While open it rejects until
// the recovery window has elapsed, then transitions to half-open and lets
// exactly one trial call through.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastTransition) >= cb.recoveryTimeout {
			cb.transition(StateHalfOpen)
			cb.trialInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if cb.trialInFlight {
			return false
		}
		cb.trialInFlight = true
		return true
	default:
		return true
	}
}

// RecordSuccess applies a successful call: it clears the failure counter
// and, from half-open, closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0
	cb.trialInFlight = false
	if cb.state == StateHalfOpen {
		cb.transition(StateClosed)
	}
}

// RecordFailure applies a failed call: it increments the consecutive
// failure counter, opens the breaker once the threshold is reached, and
// from half-open reopens immediately, restarting the recovery window.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	cb.trialInFlight = false

	switch cb.state {
	case StateHalfOpen:
		cb.transition(StateOpen)
	case StateClosed:
		if cb.consecutiveFailures >= cb.failureThreshold {
			cb.transition(StateOpen)
		}
	}
}

// Snapshot returns a consistent read of the breaker state. It never
// mutates the breaker.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return BreakerSnapshot{
		State:               cb.state,
		ConsecutiveFailures: cb.consecutiveFailures,
		LastTransition:      cb.lastTransition,
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// transition must be called with the lock held.
func (cb *CircuitBreaker) transition(to BreakerState) {
	from := cb.state
	cb.state = to
	cb.lastTransition = cb.now()

	cb.logger.Warn("circuit breaker state changed",
		"from", from.String(),
		"to", to.String(),
		"consecutive_failures", cb.consecutiveFailures)

	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}
