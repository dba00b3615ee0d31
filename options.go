package payclient

import (
	"log/slog"
	"math/rand/v2"
	"time"
)

// Documented safe defaults. A missing or invalid configuration value is
// replaced by the matching default rather than failing startup.
const (
	defaultPerAttemptTimeout = 30 * time.Second
	defaultMaxAttempts       = 3
	defaultBaseDelay         = time.Second
	defaultMultiplier        = 2.0
	defaultJitterMax         = 0 * time.Millisecond
	defaultFailureThreshold  = 5
	defaultRecoveryTimeout   = 60 * time.Second
)

// RetryPolicy holds the attempt and backoff configuration for a charge
// client. Values are immutable after the client is constructed; a reload
// builds a new client instead of mutating a live policy.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of transport calls per charge,
	// including the first.
	MaxAttempts int `json:"max_attempts"`

	// BaseDelay is the backoff delay before the first retry.
	BaseDelay time.Duration `json:"base_delay"`

	// BackoffMultiplier scales the delay for each subsequent retry.
	BackoffMultiplier float64 `json:"backoff_multiplier"`

	// JitterMax bounds the random jitter added to every delay.
	JitterMax time.Duration `json:"jitter_max"`

	// PerAttemptTimeout bounds each individual transport call.
	PerAttemptTimeout time.Duration `json:"per_attempt_timeout"`
}

// DefaultRetryPolicy returns the documented safe defaults: 3 attempts,
// 1s base delay, multiplier 2.0, no jitter, 30s per-attempt timeout.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       defaultMaxAttempts,
		BaseDelay:         defaultBaseDelay,
		BackoffMultiplier: defaultMultiplier,
		JitterMax:         defaultJitterMax,
		PerAttemptTimeout: defaultPerAttemptTimeout,
	}
}

// sanitized replaces out-of-contract fields with their defaults.
func (p RetryPolicy) sanitized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = defaultMultiplier
	}
	if p.JitterMax < 0 {
		p.JitterMax = defaultJitterMax
	}
	if p.PerAttemptTimeout <= 0 {
		p.PerAttemptTimeout = defaultPerAttemptTimeout
	}
	return p
}

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker. A threshold of 1 opens on any single failure.
	FailureThreshold int `json:"failure_threshold"`

	// RecoveryTimeout is how long the breaker stays open before
	// permitting a trial call.
	RecoveryTimeout time.Duration `json:"recovery_timeout"`
}

// DefaultBreakerConfig returns the documented safe defaults: threshold 5,
// 60s recovery window.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: defaultFailureThreshold,
		RecoveryTimeout:  defaultRecoveryTimeout,
	}
}

func (c BreakerConfig) sanitized() BreakerConfig {
	if c.FailureThreshold < 1 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = defaultRecoveryTimeout
	}
	return c
}

// ClientOption is a functional option for configuring a ChargeClient.
type ClientOption func(*clientConfig)

type clientConfig struct {
	policy        RetryPolicy
	breakerConfig BreakerConfig
	logger        *slog.Logger
	rng           *rand.Rand
	now           func() time.Time
	onStateChange func(from, to BreakerState)
}

// WithRetryPolicy sets the retry policy. Invalid fields are replaced by
// the documented defaults.
//
// Example:
//
//	payclient.WithRetryPolicy(payclient.RetryPolicy{
//	    MaxAttempts:       5,
//	    BaseDelay:         500 * time.Millisecond,
//	    BackoffMultiplier: 2.0,
//	    JitterMax:         100 * time.Millisecond,
//	    PerAttemptTimeout: 10 * time.Second,
//	})
func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *clientConfig) {
		c.policy = policy
	}
}

// WithBreakerConfig sets the circuit breaker configuration. Invalid
// fields are replaced by the documented defaults.
func WithBreakerConfig(cfg BreakerConfig) ClientOption {
	return func(c *clientConfig) {
		c.breakerConfig = cfg
	}
}

// WithLogger sets the logger for the client and its breaker.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	payclient.WithLogger(logger)
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithRandSource pins the random source used for backoff jitter, making
// delays deterministic. Intended for tests.
func WithRandSource(rng *rand.Rand) ClientOption {
	return func(c *clientConfig) {
		c.rng = rng
	}
}

// WithClock pins the breaker's clock. Intended for tests.
func WithClock(now func() time.Time) ClientOption {
	return func(c *clientConfig) {
		c.now = now
	}
}

// WithBreakerStateChangeHandler registers a callback for breaker state
// transitions.
func WithBreakerStateChangeHandler(fn func(from, to BreakerState)) ClientOption {
	return func(c *clientConfig) {
		c.onStateChange = fn
	}
}

func defaultClientConfig() *clientConfig {
	return &clientConfig{
		policy:        DefaultRetryPolicy(),
		breakerConfig: DefaultBreakerConfig(),
	}
}
