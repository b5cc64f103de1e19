package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "mediagrab/pkg/errors"
	"mediagrab/pkg/logger"
)

func fastConfig(max int) *Config {
	return &Config{
		MaxAttempts: max,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		Logger:      logger.NewNopLogger(),
	}
}

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{9, time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.want, backoff.NextDelay(tt.attempt))
		})
	}
}

func TestExponentialBackoffJitterBounds(t *testing.T) {
	backoff := NewExponentialBackoff(100*time.Millisecond, time.Second)
	for i := 0; i < 50; i++ {
		d := backoff.NextDelay(2)
		assert.GreaterOrEqual(t, d, 180*time.Millisecond)
		assert.LessOrEqual(t, d, 220*time.Millisecond)
	}
}

func TestDoSucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	retries, err := Do(context.Background(), fastConfig(5), func(context.Context) error {
		calls++
		if calls < 3 {
			return errs.FromStatus(503, "u")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestDoStopsOnTerminalError(t *testing.T) {
	calls := 0
	retries, err := Do(context.Background(), fastConfig(5), func(context.Context) error {
		calls++
		return errs.New(errs.ErrorTypeContentMismatch, "u", "text/html")
	})

	assert.True(t, errs.Is(err, errs.ErrorTypeContentMismatch))
	assert.Equal(t, 1, calls)
	assert.Zero(t, retries)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	var onRetry []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, _ error, _ time.Duration) { onRetry = append(onRetry, attempt) }

	retries, err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return errs.FromStatus(500, "u")
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.True(t, errs.Is(err, errs.ErrorTypeTransient))
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
	assert.Equal(t, []int{1, 2}, onRetry)
}

func TestDoCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(5)
	cfg.Backoff = &ConstantBackoff{Delay: time.Hour}
	cfg.OnRetry = func(int, error, time.Duration) { cancel() }

	_, err := Do(ctx, cfg, func(context.Context) error {
		return errors.New("connection reset by peer")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultRetryIf(t *testing.T) {
	assert.False(t, DefaultRetryIf(nil))
	assert.False(t, DefaultRetryIf(context.Canceled))
	assert.True(t, DefaultRetryIf(errors.New("i/o timeout")))
	assert.True(t, DefaultRetryIf(errs.FromStatus(429, "")))
	assert.False(t, DefaultRetryIf(errs.FromStatus(404, "")))
	assert.False(t, DefaultRetryIf(fmt.Errorf("wrapped: %w", errs.FromStatus(400, ""))))
}
