package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
		MaxElapsedTime:  time.Minute,
	}
}

// Retry runs fn under the policy's exponential backoff. Errors that
// classify as fatal (see pkg/errors FatalError) stop immediately;
// everything else is retried until the policy is exhausted.
func Retry(ctx context.Context, policy Policy, fn func() error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPolicy().MaxAttempts
	}

	b := ExponentialBackoff(policy.InitialInterval, policy.MaxInterval, policy.Multiplier)
	if policy.MaxElapsedTime > 0 {
		b.(*backoff.ExponentialBackOff).MaxElapsedTime = policy.MaxElapsedTime
	}

	var wrapped backoff.BackOff = backoff.WithContext(b, ctx)
	wrapped = backoff.WithMaxRetries(wrapped, uint64(policy.MaxAttempts-1))

	operation := func() error {
		err := fn()
		if err == nil {
			return nil
		}

		var fatal interface {
			error
			IsFatal() bool
		}
		if errors.As(err, &fatal) && fatal.IsFatal() {
			return backoff.Permanent(err)
		}

		return err
	}

	return backoff.Retry(operation, wrapped)
}
