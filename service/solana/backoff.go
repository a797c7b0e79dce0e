package solana

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Backoff policies for signature polling.
const (
	PolicyFixed       = "fixed"
	PolicyExponential = "exponential"
	PolicyJittered    = "jittered"
)

// maxIntervalFactor caps exponential growth at this multiple of the base delay.
const maxIntervalFactor = 8

// BackOffFactory returns a fresh backoff policy for each confirmation loop.
type BackOffFactory func() backoff.BackOff

// NewBackOffFactory builds the polling policy named by policy, using delay as
// the base interval. Exponential policies never stop on elapsed time; the
// confirmer's retry count is the only bound.
func NewBackOffFactory(policy string, delay time.Duration) (BackOffFactory, error) {
	if delay <= 0 {
		return nil, fmt.Errorf("backoff delay must be positive, got %s", delay)
	}

	switch policy {
	case PolicyFixed, "":
		return func() backoff.BackOff {
			return backoff.NewConstantBackOff(delay)
		}, nil
	case PolicyExponential:
		return func() backoff.BackOff {
			return exponential(delay, 0)
		}, nil
	case PolicyJittered:
		return func() backoff.BackOff {
			return exponential(delay, 0.5)
		}, nil
	default:
		return nil, fmt.Errorf("unknown backoff policy %q", policy)
	}
}

func exponential(delay time.Duration, jitter float64) backoff.BackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(delay),
		backoff.WithRandomizationFactor(jitter),
		backoff.WithMultiplier(2),
		backoff.WithMaxInterval(delay*maxIntervalFactor),
		backoff.WithMaxElapsedTime(0),
	)
}
