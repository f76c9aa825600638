package errors

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsAfterTransientError(t *testing.T) {
	// Given: a function that fails twice then succeeds
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	}

	// When: retrying
	err := Retry(context.Background(), fastRetryConfig(), fn)

	// Then: succeeds on the third attempt
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_FailsAfterMaxRetries(t *testing.T) {
	attempts := 0
	persistent := errors.New("persistent error")

	err := Retry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		return persistent
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.ErrorIs(t, err, persistent)
	assert.Equal(t, 3, attempts)
}

func TestRetry_StopsOnNonRetryableError(t *testing.T) {
	// Given: the default predicate and an auth failure
	cfg := fastRetryConfig()
	cfg.ShouldRetry = IsRetryable
	authErr := New(ErrCodeProviderAuth, "invalid api key", nil)

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return authErr
	})

	// Then: one attempt, error returned unwrapped
	assert.Equal(t, 1, attempts)
	assert.Same(t, authErr, err)
}

func TestRetry_RetriesRetryableProviderErrors(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.ShouldRetry = IsRetryable

	var attempts atomic.Int32
	err := Retry(context.Background(), cfg, func() error {
		if attempts.Add(1) < 2 {
			return New(ErrCodeProviderRateLimited, "429", nil)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestRetry_RetriesProviderTimeouts(t *testing.T) {
	// Given a provider whose per-request deadline keeps expiring
	cfg := fastRetryConfig()
	cfg.ShouldRetry = IsRetryable

	var attempts atomic.Int32
	err := Retry(context.Background(), cfg, func() error {
		attempts.Add(1)
		return New(ErrCodeNetworkTimeout, "openai request timed out", context.DeadlineExceeded)
	})

	// Then every attempt is made and the timeout is reported
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, ErrCodeNetworkTimeout, GetCode(err))
}

func TestRetry_DoesNotRetryCancellation(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		return context.Canceled
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	// Given: a long backoff
	cfg := fastRetryConfig()
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	// When: the context is cancelled during the wait
	start := time.Now()
	err := Retry(ctx, cfg, func() error { return errors.New("error") })

	// Then: returns promptly with the context error
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRetry_CancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Retry(ctx, fastRetryConfig(), func() error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	attempts := 0
	got, err := RetryWithResult(context.Background(), fastRetryConfig(), func() (int, error) {
		attempts++
		if attempts == 1 {
			return 0, errors.New("flaky")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestRetryConfig_Backoff(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2}

	assert.Equal(t, 2*time.Second, cfg.next(time.Second))
	assert.Equal(t, 3*time.Second, cfg.next(2*time.Second))
	assert.Equal(t, time.Second, cfg.wait(time.Second))

	cfg.Jitter = true
	for i := 0; i < 20; i++ {
		d := cfg.wait(time.Second)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.Less(t, d, time.Second)
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.True(t, cfg.Jitter)
	require.NotNil(t, cfg.ShouldRetry)
	assert.False(t, cfg.ShouldRetry(New(ErrCodeProviderAuth, "x", nil)))
}
