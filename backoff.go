package payclient

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// BackoffPolicy computes the delay before the next charge attempt:
//
//	delay = BaseDelay * BackoffMultiplier^attempt + uniform(0, JitterMax)
//
// The jitter term exists only to spread out synchronized retries; with a
// fixed random source the policy is fully deterministic.
type BackoffPolicy struct {
	base       time.Duration
	multiplier float64
	jitterMax  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBackoffPolicy creates a backoff policy. A non-positive base falls
// back to the default base delay, a multiplier below 1 falls back to 1,
// and negative jitter is treated as no jitter.
func NewBackoffPolicy(base time.Duration, multiplier float64, jitterMax time.Duration) *BackoffPolicy {
	if base <= 0 {
		base = defaultBaseDelay
	}
	if multiplier < 1 {
		multiplier = 1
	}
	if jitterMax < 0 {
		jitterMax = 0
	}
	return &BackoffPolicy{
		base:       base,
		multiplier: multiplier,
		jitterMax:  jitterMax,
	}
}

// SetRand pins the random source used for jitter. The policy defaults to
// the shared math/rand/v2 source, which is safe for concurrent use.
func (p *BackoffPolicy) SetRand(rng *rand.Rand) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rng = rng
}

// Delay returns the delay to apply after a failed attempt. Attempt counts
// from 0 for the first attempt. The result is never negative.
func (p *BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	// Cap below MaxInt64 so the float conversion stays in range and the
	// jitter term cannot overflow.
	const maxDelay = math.MaxInt64 / 4

	d := float64(p.base) * math.Pow(p.multiplier, float64(attempt))
	if d > maxDelay {
		d = maxDelay
	}

	delay := time.Duration(d) + p.jitter()
	if delay < 0 || delay > maxDelay {
		return time.Duration(maxDelay)
	}
	return delay
}

func (p *BackoffPolicy) jitter() time.Duration {
	if p.jitterMax <= 0 {
		return 0
	}

	p.mu.Lock()
	rng := p.rng
	var n int64
	if rng != nil {
		n = rng.Int64N(int64(p.jitterMax) + 1)
	}
	p.mu.Unlock()

	if rng == nil {
		n = rand.Int64N(int64(p.jitterMax) + 1)
	}
	return time.Duration(n)
}

// Strategy adapts the policy to the retry library driving the attempt
// loop. Each call returns a fresh, single-use backoff whose internal
// attempt counter starts at 0.
func (p *BackoffPolicy) Strategy() retry.Backoff {
	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d := p.Delay(attempt)
		attempt++
		return d, false
	})
}
