package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"live-assessment-service/internal/domain"
)

// storeCall runs op with bounded exponential backoff. Taxonomy errors and
// context cancellation are returned immediately; other failures are retried
// and finally surface as domain.ErrStoreUnavailable.
func storeCall[T any](ctx context.Context, retries int, op func() (T, error)) (T, error) {
	var result T
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx)

	err := backoff.Retry(func() error {
		value, err := op()
		if err == nil {
			result = value
			return nil
		}
		if permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
	if err == nil {
		return result, nil
	}
	if permanent(err) {
		return result, err
	}
	log.Printf("store unavailable after %d retries: %v", retries, err)
	return result, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}

// storeExec is storeCall for operations without a result.
func storeExec(ctx context.Context, retries int, op func() error) error {
	_, err := storeCall(ctx, retries, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

func permanent(err error) bool {
	return domain.IsCallerFacing(err) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
