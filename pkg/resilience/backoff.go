package resilience

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy defines retry backoff behavior
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff with jitter so that
// replicas waiting on the same key do not retry in lockstep
type ExponentialBackoff struct {
	BaseDelay  time.Duration // first delay
	MaxDelay   time.Duration // cap
	Multiplier float64
	Jitter     float64 // 0.0-1.0, 0.1 is ±10%
}

// LockBackoff polls a contended payment lock. A holder finishes within one
// gateway round trip, so the delay is capped well below a second.
//
// Retry sequence for base 25ms (±20% jitter):
//   - Attempt 0: ~25ms
//   - Attempt 1: ~50ms
//   - Attempt 2: ~100ms
//   - Attempt 3: ~200ms
//   - Attempt 4+: ~250ms (capped)
func LockBackoff(base time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:  base,
		MaxDelay:   10 * base,
		Multiplier: 2.0,
		Jitter:     0.2,
	}
}

// NextDelay calculates the delay for the given attempt number (0-indexed).
// The result is BaseDelay * Multiplier^attempt capped at MaxDelay, ± jitter.
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		return eb.BaseDelay
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt))
	if delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	jitterAmount := delay * eb.Jitter
	jitter := (rand.Float64()*2 - 1) * jitterAmount

	finalDelay := time.Duration(delay + jitter)
	if finalDelay < 0 {
		finalDelay = eb.BaseDelay
	}
	return finalDelay
}
