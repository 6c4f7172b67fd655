// Package retry wraps fallible remote calls with a fixed-count, fixed-delay
// retry policy.
//
// The policy is deliberately simple: a fixed inter-attempt delay (not
// exponential), a fixed number of additional attempts, and an observer
// callback per retry. Behavior is fully deterministic given the policy values
// and the underlying operation's failure sequence.
package retry

import (
	"context"
	"time"
)

// Policy configures retry behavior for one call site. Values are sourced from
// configuration; the zero value retries nothing.
type Policy struct {
	// RetryCount is the number of additional attempts after the first failure.
	RetryCount int

	// Delay is the fixed sleep between attempts.
	Delay time.Duration

	// OnRetry is called before each retry with the attempt number (1-based),
	// the delay about to be slept, and the failure that caused the retry.
	// Optional.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Do executes op, retrying per the policy on failure. On exhaustion the last
// error is returned unchanged. Context cancellation interrupts the
// inter-attempt sleep and returns ctx.Err().
func Do[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= policy.RetryCount; attempt++ {
		if attempt > 0 {
			if policy.OnRetry != nil {
				policy.OnRetry(attempt, policy.Delay, lastErr)
			}
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(policy.Delay):
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}

	return zero, lastErr
}
