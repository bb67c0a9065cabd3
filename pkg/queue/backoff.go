package queue

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/flowforge/flowforge/pkg/failures"
)

const maxBackoff = time.Hour

// Delay returns the wait before the attempt that follows attempt number attempt:
// Backoff, 2*Backoff, 4*Backoff and so on, without jitter.
func Delay(policy Policy, attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.Backoff
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.InitialInterval
	for range max(attempt, 1) {
		d = b.NextBackOff()
	}

	return d
}

// ShouldRetry reports whether a job that failed with err after attempts tries gets
// another. Errors that cannot succeed on a rerun are never retried.
func ShouldRetry(err error, attempts, maxAttempts int) bool {
	return attempts < maxAttempts && failures.IsRetryable(err)
}
