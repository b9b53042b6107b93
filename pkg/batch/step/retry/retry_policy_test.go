package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"batchprocessing/pkg/batch/config"
	"batchprocessing/pkg/batch/step/retry"
	"batchprocessing/pkg/batch/util/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimplePolicy_CanRetry(t *testing.T) {
	policy := retry.NewSimplePolicy(3, 0, exception.KindWrite)
	retryable := exception.NewWriteError("writer", "一時的なエラー", nil, true, false)

	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{"first attempt", retryable, 1, true},
		{"second attempt", retryable, 2, true},
		{"attempts exhausted", retryable, 3, false},
		{"not flagged", exception.NewWriteError("writer", "x", nil, false, false), 1, false},
		{"kind not listed", exception.NewReadError("reader", "x", nil, true, false), 1, false},
		{"plain error", errors.New("boom"), 1, false},
		{"nil", nil, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.CanRetry(tt.err, tt.attempt))
		})
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	policy := retry.NewSimplePolicy(3, time.Millisecond)
	calls := 0
	var retried []int

	err := retry.Do(context.Background(), policy, func() error {
		calls++
		if calls < 3 {
			return exception.NewReadError("reader", "一時的なエラー", nil, true, false)
		}
		return nil
	}, func(err error, attempt int) {
		retried = append(retried, attempt)
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_ReturnsLastError(t *testing.T) {
	policy := retry.NewSimplePolicy(2, 0)
	calls := 0

	err := retry.Do(context.Background(), policy, func() error {
		calls++
		return exception.NewReadError("reader", "一時的なエラー", nil, true, false)
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, exception.IsKind(err, exception.KindRead))
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0

	err := retry.Do(ctx, retry.NewSimplePolicy(5, time.Hour), func() error {
		calls++
		return exception.NewReadError("reader", "一時的なエラー", nil, true, false)
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestNewPolicyFromConfig(t *testing.T) {
	policy := retry.NewPolicyFromConfig(config.ItemRetryConfig{
		MaxAttempts:         2,
		InitialInterval:     5,
		RetryableExceptions: []string{"WriteError", "NoSuchError"},
	})

	assert.Equal(t, 2, policy.MaxAttempts())
	assert.Equal(t, 5*time.Millisecond, policy.Backoff(1))
	assert.True(t, policy.CanRetry(exception.NewWriteError("writer", "x", nil, true, false), 1))
	assert.False(t, policy.CanRetry(exception.NewReadError("reader", "x", nil, true, false), 1))
}

func TestNoRetryPolicy(t *testing.T) {
	assert.False(t, retry.NoRetryPolicy().CanRetry(exception.NewReadError("reader", "x", nil, true, false), 1))
}
