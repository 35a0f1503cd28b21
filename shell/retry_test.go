package shell_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/circulation-core/core"
	"github.com/AntonStoeckl/circulation-core/shell"
	"github.com/AntonStoeckl/circulation-core/testutil/spies"
)

func Test_RetryWithExponentialBackoff_Success_NoRetries(t *testing.T) {
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		return nil
	}

	meta, err := shell.RetryWithExponentialBackoff(context.Background(), fn)

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount)
	assert.Equal(t, 1, meta.Attempts)
	assert.Equal(t, time.Duration(0), meta.TotalDelay)
	assert.Equal(t, "none", meta.LastErrorType)
	assert.False(t, meta.RetriesExhausted)
}

func Test_RetryWithExponentialBackoff_RetriesConcurrentModification(t *testing.T) {
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		if callCount < 3 {
			return errors.Join(core.ErrConcurrentModification, errors.New("lock timeout"))
		}
		return nil
	}

	meta, err := shell.RetryWithExponentialBackoff(context.Background(), fn, shell.WithBaseDelay(time.Millisecond))

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount)
	assert.Equal(t, 3, meta.Attempts)
	assert.Greater(t, meta.TotalDelay, time.Duration(0))
	assert.Equal(t, "none", meta.LastErrorType)
}

func Test_RetryWithExponentialBackoff_BusinessErrorsFailFast(t *testing.T) {
	for _, businessErr := range []error{core.ErrCopyUnavailable, core.ErrNotAuthorized, core.ErrRenewalLimitReached} {
		callCount := 0

		fn := func(_ context.Context) error {
			callCount++
			return businessErr
		}

		meta, err := shell.RetryWithExponentialBackoff(context.Background(), fn)

		assert.ErrorIs(t, err, businessErr)
		assert.Equal(t, 1, callCount, "business errors must not be retried")
		assert.Equal(t, "other", meta.LastErrorType)
	}
}

func Test_RetryWithExponentialBackoff_ExhaustsAttempts(t *testing.T) {
	// setup
	metrics := spies.NewMetricsCollectorSpy()

	// arrange
	callCount := 0
	fn := func(_ context.Context) error {
		callCount++
		return core.ErrConcurrentModification
	}

	// act
	meta, err := shell.RetryWithExponentialBackoff(
		context.Background(),
		fn,
		shell.WithMaxAttempts(3),
		shell.WithBaseDelay(time.Millisecond),
		shell.WithJitterFactor(0),
		shell.WithMetrics(metrics, "checkout"),
	)

	// assert
	assert.ErrorIs(t, err, core.ErrConcurrentModification)
	assert.Equal(t, 3, callCount)
	assert.True(t, meta.RetriesExhausted)
	assert.Equal(t, "concurrent_modification", meta.LastErrorType)
	assert.Equal(t, 2, metrics.CountCounter(shell.RetriesMetric, map[string]string{"operation": "checkout"}))
	assert.Equal(t, 1, metrics.CountCounter(shell.MaxRetriesReachedMetric, map[string]string{"final_error_type": "concurrent_modification"}))
	assert.True(t, metrics.HasDurationRecord(shell.RetryDelayMetric))
}

func Test_RetryWithExponentialBackoff_StopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	fn := func(_ context.Context) error {
		cancel()
		return core.ErrConcurrentModification
	}

	meta, err := shell.RetryWithExponentialBackoff(ctx, fn, shell.WithBaseDelay(time.Second))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, meta.Attempts)
	assert.Equal(t, "context_canceled", meta.LastErrorType)
}

func Test_RetryWithExponentialBackoff_InvalidOptions(t *testing.T) {
	ctx := context.Background()
	fn := func(_ context.Context) error { return nil }

	_, err := shell.RetryWithExponentialBackoff(ctx, fn, shell.WithMaxAttempts(0))
	assert.ErrorIs(t, err, shell.ErrInvalidMaxAttempts)

	_, err = shell.RetryWithExponentialBackoff(ctx, fn, shell.WithBaseDelay(-1*time.Second))
	assert.ErrorIs(t, err, shell.ErrNegativeBaseDelay)

	_, err = shell.RetryWithExponentialBackoff(ctx, fn, shell.WithJitterFactor(1.5))
	assert.ErrorIs(t, err, shell.ErrInvalidJitterFactor)

	_, err = shell.RetryWithExponentialBackoff(ctx, fn, shell.WithMetrics(nil, "checkout"))
	assert.ErrorIs(t, err, shell.ErrNilMetricsCollector)

	_, err = shell.RetryWithExponentialBackoff(ctx, fn, shell.WithMetrics(spies.NewMetricsCollectorSpy(), ""))
	assert.ErrorIs(t, err, shell.ErrEmptyOperation)
}
