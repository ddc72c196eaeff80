package usecase

import (
	"context"
	"time"

	"custodia/internal/domain"

	"github.com/cenkalti/backoff/v4"
)

// retryTransient runs op under capped exponential backoff. Only transient
// faults are retried; anything else aborts immediately.
func retryTransient(ctx context.Context, maxElapsed time.Duration, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = maxElapsed
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if domain.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(policy, ctx))
}
