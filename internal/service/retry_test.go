package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")
var errPermanent = errors.New("permanent")

func TestRetryPolicyDo(t *testing.T) {
	alwaysRetry := func(err error) bool { return errors.Is(err, errTransient) }

	tests := []struct {
		name         string
		policy       RetryPolicy
		failures     int
		failWith     error
		wantAttempts int
		wantErr      error
	}{
		{
			name:         "first attempt succeeds",
			policy:       RetryPolicy{MaxRetries: 2},
			failures:     0,
			wantAttempts: 1,
			wantErr:      nil,
		},
		{
			name:         "succeeds after one retry",
			policy:       RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond},
			failures:     1,
			failWith:     errTransient,
			wantAttempts: 2,
			wantErr:      nil,
		},
		{
			name:         "exhausts retries",
			policy:       RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond},
			failures:     10,
			failWith:     errTransient,
			wantAttempts: 3,
			wantErr:      errTransient,
		},
		{
			name:         "non-retryable stops immediately",
			policy:       RetryPolicy{MaxRetries: 5, Backoff: time.Millisecond},
			failures:     10,
			failWith:     errPermanent,
			wantAttempts: 1,
			wantErr:      errPermanent,
		},
		{
			name:         "zero retries means one attempt",
			policy:       RetryPolicy{MaxRetries: 0},
			failures:     10,
			failWith:     errTransient,
			wantAttempts: 1,
			wantErr:      errTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			fn := func(ctx context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.failWith
				}
				return nil
			}

			attempts, err := tt.policy.Do(context.Background(), fn, alwaysRetry)
			if attempts != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", attempts, tt.wantAttempts)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryPolicyDoCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond}
	attempts, err := policy.Do(ctx, func(ctx context.Context) error {
		t.Fatal("fn should not run with a cancelled context")
		return nil
	}, func(error) bool { return true })

	if attempts != 0 {
		t.Errorf("attempts = %d, want 0", attempts)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRetryPolicyDoCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := RetryPolicy{MaxRetries: 3, Backoff: time.Hour}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	attempts, err := policy.Do(ctx, func(ctx context.Context) error {
		return errTransient
	}, func(error) bool { return true })

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
