// Package retry runs an operation with bounded attempts and exponential
// backoff.
//
// Errors classified as transient by pkg/errors are retried; everything
// classified otherwise (content mismatch, 4xx, validation) returns at once.
// Do reports how many retries it performed so callers can surface it.
//
//	retries, err := retry.Do(ctx, &retry.Config{
//	    MaxAttempts: 3,
//	    Backoff:     retry.NewExponentialBackoff(time.Second, 30*time.Second),
//	}, func(ctx context.Context) error {
//	    return fetch(ctx)
//	})
package retry
