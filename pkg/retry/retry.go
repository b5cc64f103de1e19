package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "mediagrab/pkg/errors"
	"mediagrab/pkg/logger"
)

// Operation is one attempt of a retried call
type Operation func(ctx context.Context) error

// Config holds retry configuration
type Config struct {
	// MaxAttempts bounds the total number of attempts, including the first
	MaxAttempts int
	Backoff     BackoffStrategy
	// RetryIf decides whether an error is worth another attempt
	RetryIf func(error) bool
	// OnRetry is called before each pause
	OnRetry func(attempt int, err error, delay time.Duration)
	Logger  logger.Logger
}

// DefaultConfig returns three attempts with doubling backoff from one second
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     NewExponentialBackoff(time.Second, 30*time.Second),
		RetryIf:     DefaultRetryIf,
		Logger:      logger.GetLogger(),
	}
}

// DefaultRetryIf retries transient classified errors only. Unclassified
// errors are treated as transport failures and retried too.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var e *errs.Error
	if errors.As(err, &e) {
		return errs.IsRetryable(e.Type)
	}
	return true
}

// ExhaustedError reports that every attempt failed with retryable errors
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("max retry attempts (%d) exceeded: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Do runs op until it succeeds, fails terminally, runs out of attempts or
// ctx is cancelled. It returns the number of retries performed alongside
// the final error.
func Do(ctx context.Context, cfg *Config, op Operation) (int, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	retries := 0
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			if retries > 0 {
				log.DebugWithFields("operation succeeded after retry", logger.Fields{"attempt": attempt})
			}
			return retries, nil
		}

		if !retryIf(err) {
			return retries, err
		}
		if attempt >= maxAttempts {
			log.WarnWithFields("max retry attempts exceeded", logger.Fields{
				"attempts":   attempt,
				"last_error": err.Error(),
			})
			return retries, &ExhaustedError{Attempts: attempt, Last: err}
		}

		var delay time.Duration
		if cfg.Backoff != nil {
			delay = cfg.Backoff.NextDelay(attempt)
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		log.WarnWithFields("retrying operation", logger.Fields{
			"attempt":      attempt,
			"error":        err.Error(),
			"delay_ms":     delay.Milliseconds(),
			"max_attempts": maxAttempts,
		})

		if werr := Wait(ctx, delay); werr != nil {
			return retries, fmt.Errorf("retry cancelled: %w", werr)
		}
		retries++
	}
}
