// Package payclient implements a resilient client for outbound payment
// charge calls. It wraps a narrow transport contract with bounded
// per-attempt timeouts, exponential backoff with jitter, and a circuit
// breaker that stops issuing calls once the payment service looks
// unhealthy. It integrates with jp-go-errors for standardized error
// classification.
package payclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// ProviderResponse is the raw reply from one transport call.
type ProviderResponse struct {
	StatusCode int
	Body       []byte
}

// Transport performs a single charge call against the payment service.
// The context carries the per-attempt deadline; implementations must
// abandon the call when it expires. A non-nil error means the call never
// produced an HTTP response (connection failure or timeout); HTTP-level
// rejections are returned as a ProviderResponse with the raw status.
type Transport interface {
	Send(ctx context.Context, req ChargeRequest) (*ProviderResponse, error)
}

// TransportFunc is an adapter that allows a function to be used as a
// Transport.
type TransportFunc func(ctx context.Context, req ChargeRequest) (*ProviderResponse, error)

// Send implements Transport.
func (f TransportFunc) Send(ctx context.Context, req ChargeRequest) (*ProviderResponse, error) {
	return f(ctx, req)
}

// ChargeClient issues charge calls through a Transport with retries and a
// circuit breaker. One client instance owns one breaker and one retry
// policy and is meant to be shared by all callers hitting the same
// downstream dependency; all methods are safe for concurrent use.
type ChargeClient struct {
	transport Transport
	policy    RetryPolicy
	backoff   *BackoffPolicy
	breaker   *CircuitBreaker
	logger    *slog.Logger
}

// NewChargeClient creates a charge client around the given transport.
//
// Example:
//
//	client := payclient.NewChargeClient(
//	    transport,
//	    payclient.WithRetryPolicy(policy),
//	    payclient.WithBreakerConfig(breakerCfg),
//	)
func NewChargeClient(transport Transport, opts ...ClientOption) *ChargeClient {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	policy := cfg.policy.sanitized()
	breakerCfg := cfg.breakerConfig.sanitized()

	backoff := NewBackoffPolicy(policy.BaseDelay, policy.BackoffMultiplier, policy.JitterMax)
	if cfg.rng != nil {
		backoff.SetRand(cfg.rng)
	}

	breakerOpts := []BreakerOption{WithBreakerLogger(cfg.logger)}
	if cfg.now != nil {
		breakerOpts = append(breakerOpts, WithBreakerClock(cfg.now))
	}
	if cfg.onStateChange != nil {
		breakerOpts = append(breakerOpts, WithStateChangeHandler(cfg.onStateChange))
	}

	return &ChargeClient{
		transport: transport,
		policy:    policy,
		backoff:   backoff,
		breaker:   NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.RecoveryTimeout, breakerOpts...),
		logger:    cfg.logger,
	}
}

// Breaker exposes the client's circuit breaker for observability.
func (c *ChargeClient) Breaker() *CircuitBreaker {
	return c.breaker
}

// Policy returns the client's retry policy.
func (c *ChargeClient) Policy() RetryPolicy {
	return c.policy
}

// Charge runs one charge call through the breaker and retry loop. The
// returned error is non-nil only for contract violations (a malformed
// request); every remote failure comes back as a typed ChargeResult.
//
// If the breaker is open the call is rejected immediately with a
// CircuitOpen failure and no transport call is made. Otherwise the client
// makes up to MaxAttempts calls, each bounded by PerAttemptTimeout,
// sleeping the backoff delay between attempts. Timeouts, connection
// errors and 5xx replies are retried and recorded against the breaker;
// 429 replies are retried without touching the breaker; other 4xx replies
// are recorded and terminal on first occurrence. Cancellation of ctx ends
// the call promptly, including mid-sleep.
func (c *ChargeClient) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if err := req.Validate(); err != nil {
		return ChargeResult{}, fmt.Errorf("invalid charge request: %w", err)
	}

	if !c.breaker.Allow() {
		c.logger.Warn("circuit breaker open, charge rejected",
			"breaker", c.breaker.Snapshot())
		return failureResult(ErrorKindCircuitOpen, "service unavailable", 0), nil
	}

	start := time.Now()
	attempts := 0
	var result ChargeResult

	err := retry.Do(ctx, c.strategy(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		attempts++
		res, attemptErr := c.attempt(ctx, req)
		if attemptErr == nil {
			if attempts > 1 {
				c.logger.Info("charge succeeded after retry", "attempts", attempts)
			}
			result = res
			return nil
		}

		kind := KindOf(attemptErr)
		if kind.TripsBreaker() {
			c.breaker.RecordFailure()
		}
		if !kind.Retryable() {
			c.logger.Debug("non-retryable charge failure, giving up",
				"kind", kind.String(),
				"attempts", attempts,
				"error", attemptErr)
			return attemptErr
		}

		c.logger.Debug("retrying charge after delay",
			"kind", kind.String(),
			"attempt", attempts,
			"error", attemptErr)
		return retry.RetryableError(attemptErr)
	})
	if err != nil {
		c.logger.Warn("charge failed",
			"attempts", attempts,
			"elapsed", time.Since(start),
			"error", err)
		return c.finalResult(ctx, err, attempts, time.Since(start)), nil
	}

	result.Attempts = attempts
	result.Elapsed = time.Since(start)
	return result, nil
}

// attempt makes one transport call bounded by the per-attempt timeout and
// classifies its outcome. On success it records against the breaker and
// returns the decoded result; every failure comes back as a *ChargeError.
func (c *ChargeClient) attempt(parent context.Context, req ChargeRequest) (ChargeResult, error) {
	ctx, cancel := context.WithTimeout(parent, c.policy.PerAttemptTimeout)
	defer cancel()

	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		// The parent context ending takes precedence over the attempt
		// deadline: a caller cancellation must not read as a timeout.
		if parent.Err() != nil {
			return ChargeResult{}, NewChargeError(ErrorKindCancelled, 0, parent.Err())
		}
		kind := ClassifyError(err)
		if kind == ErrorKindTimeout {
			return ChargeResult{}, NewChargeError(ErrorKindTimeout, 0,
				fmt.Errorf("charge attempt timed out after %s: %w", c.policy.PerAttemptTimeout, err))
		}
		return ChargeResult{}, NewChargeError(kind, 0, err)
	}

	kind := ClassifyStatus(resp.StatusCode)
	if kind != ErrorKindNone {
		if msg := providerMessage(resp.Body); msg != "" {
			return ChargeResult{}, NewChargeError(kind, resp.StatusCode,
				fmt.Errorf("payment service returned status %d: %s", resp.StatusCode, msg))
		}
		return ChargeResult{}, NewChargeError(kind, resp.StatusCode,
			fmt.Errorf("payment service returned status %d", resp.StatusCode))
	}

	paymentID, provider, decodeErr := decodeProviderResponse(resp.Body)
	if decodeErr != nil {
		// A 2xx with an undecodable body is an incoherent reply from a
		// degraded counterpart, not a success.
		return ChargeResult{}, NewChargeError(ErrorKindServer, resp.StatusCode,
			fmt.Errorf("undecodable payment service response: %w", decodeErr))
	}

	c.breaker.RecordSuccess()
	return successResult(paymentID, provider, 0), nil
}

// finalResult folds the terminal error of the retry loop into a typed
// result.
func (c *ChargeClient) finalResult(ctx context.Context, err error, attempts int, elapsed time.Duration) ChargeResult {
	var result ChargeResult
	switch kind := KindOf(err); {
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		result = failureResult(ErrorKindCancelled, "charge cancelled by caller", attempts)
	case kind == ErrorKindTimeout:
		result = timeoutResult(elapsed, attempts)
	case kind == ErrorKindRateLimited:
		result = failureResult(ErrorKindMaxRetriesExceeded,
			fmt.Sprintf("rate limited after %d attempts", attempts), attempts)
	case kind == ErrorKindCancelled:
		result = failureResult(ErrorKindCancelled, "charge cancelled by caller", attempts)
	case kind == ErrorKindNone:
		result = failureResult(ErrorKindMaxRetriesExceeded, err.Error(), attempts)
	default:
		result = failureResult(kind, err.Error(), attempts)
	}
	result.Elapsed = elapsed
	return result
}

// strategy builds the single-use backoff for one charge call. retry.Do
// counts the initial attempt itself, so MaxAttempts-1 is the retry budget.
func (c *ChargeClient) strategy() retry.Backoff {
	maxRetries := c.policy.MaxAttempts - 1
	if maxRetries < 0 {
		maxRetries = 0
	}
	return retry.WithMaxRetries(uint64(maxRetries), c.backoff.Strategy())
}

// providerMessage pulls the human-readable error out of a rejection body,
// if the body carries one.
func providerMessage(body []byte) string {
	var provider map[string]any
	if err := json.Unmarshal(body, &provider); err != nil {
		return ""
	}
	for _, key := range []string{"message", "error"} {
		if msg, ok := provider[key].(string); ok && msg != "" {
			return msg
		}
	}
	return ""
}

// decodeProviderResponse pulls the payment id out of a successful reply.
// Providers disagree on the field name, so both spellings are accepted.
func decodeProviderResponse(body []byte) (string, map[string]any, error) {
	if len(body) == 0 {
		return "", nil, errors.New("empty response body")
	}

	var provider map[string]any
	if err := json.Unmarshal(body, &provider); err != nil {
		return "", nil, err
	}

	for _, key := range []string{"payment_id", "transaction_id"} {
		if id, ok := provider[key].(string); ok && id != "" {
			return id, provider, nil
		}
	}
	return "", provider, nil
}
