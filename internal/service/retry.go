package service

import (
	"context"
	"time"
)

// RetryPolicy bounds repeated attempts of a fallible operation. Backoff is
// linear: attempt n sleeps n*Backoff before retrying.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	// Total attempts = MaxRetries + 1.
	MaxRetries int
	// Backoff is the base delay between attempts.
	Backoff time.Duration
}

// retryState tracks where the attempt loop is. The machine is linear:
// attempting -> succeeded, or attempting -> exhausted after the last retry.
type retryState int

const (
	retryAttempting retryState = iota
	retrySucceeded
	retryExhausted
)

// Do runs fn until it succeeds, returns a non-retryable error, the retries
// are exhausted, or ctx is cancelled.
// Parameters:
//   - ctx: context for cancellation; checked between attempts.
//   - fn: operation to attempt.
//   - retryable: reports whether an error is worth another attempt.
// Returns:
//   - int: number of attempts made (at least 1 unless ctx was already done).
//   - error: nil on success, otherwise the last attempt's error.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error, retryable func(error) bool) (int, error) {
	attempts := 0
	maxAttempts := p.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	state := retryAttempting
	var lastErr error

	for state == retryAttempting {
		if err := ctx.Err(); err != nil {
			return attempts, err
		}

		attempts++
		lastErr = fn(ctx)
		if lastErr == nil {
			state = retrySucceeded
			break
		}
		if attempts >= maxAttempts || !retryable(lastErr) {
			state = retryExhausted
			break
		}

		// Linear backoff scaled by the attempt number.
		delay := time.Duration(attempts) * p.Backoff
		select {
		case <-ctx.Done():
			return attempts, ctx.Err()
		case <-time.After(delay):
		}
	}

	if state == retrySucceeded {
		return attempts, nil
	}
	return attempts, lastErr
}
