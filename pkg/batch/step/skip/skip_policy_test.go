package skip_test

import (
	"errors"
	"testing"

	"batchprocessing/pkg/batch/config"
	"batchprocessing/pkg/batch/step/skip"
	"batchprocessing/pkg/batch/util/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitCheckingPolicy_Boundary(t *testing.T) {
	policy := skip.NewLimitCheckingPolicy(2, exception.KindRead, exception.KindProcess)
	readErr := exception.NewReadError("reader", "不正な行です", nil, false, true)

	ok, err := policy.ShouldSkip(readErr, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	// 2件目 (K 件目) まではスキップ可能
	ok, err = policy.ShouldSkip(readErr, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	// 3件目 (K+1 件目) は上限超過
	ok, err = policy.ShouldSkip(readErr, 2)
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindSkipLimitExceeded))
	assert.True(t, exception.IsKind(err, exception.KindRead))
}

func TestLimitCheckingPolicy_NotSkippable(t *testing.T) {
	policy := skip.NewLimitCheckingPolicy(10, exception.KindRead)

	tests := []struct {
		name string
		err  error
	}{
		{"kind not listed", exception.NewWriteError("writer", "書き込み失敗", nil, false, true)},
		{"flag not set", exception.NewReadError("reader", "接続断", nil, true, false)},
		{"plain error", errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := policy.ShouldSkip(tt.err, 0)
			assert.False(t, ok)
			assert.NoError(t, err)
		})
	}
}

func TestLimitCheckingPolicy_NoKindsUsesFlag(t *testing.T) {
	policy := skip.NewLimitCheckingPolicy(1)

	ok, err := policy.ShouldSkip(exception.NewWriteError("writer", "x", nil, false, true), 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNeverSkipPolicy(t *testing.T) {
	readErr := exception.NewReadError("reader", "x", nil, false, true)
	ok, err := skip.NeverSkipPolicy().ShouldSkip(readErr, 0)
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.False(t, skip.NeverSkipPolicy().IsSkippable(readErr))
}

func TestNewPolicyFromConfig(t *testing.T) {
	policy := skip.NewPolicyFromConfig(config.ItemSkipConfig{
		SkipLimit:           3,
		SkippableExceptions: []string{"ProcessError", "Bogus"},
	})

	limited, ok := policy.(*skip.LimitCheckingPolicy)
	require.True(t, ok)
	assert.Equal(t, 3, limited.Limit())
	assert.True(t, limited.IsSkippable(exception.NewProcessError("processor", "x", nil, false, true)))
	assert.False(t, limited.IsSkippable(exception.NewReadError("reader", "x", nil, false, true)))
}

func TestNewPolicyFromConfig_ZeroLimitNeverSkips(t *testing.T) {
	policy := skip.NewPolicyFromConfig(config.ItemSkipConfig{SkippableExceptions: []string{"ReadError"}})

	ok, err := policy.ShouldSkip(exception.NewReadError("reader", "x", nil, false, true), 0)
	assert.False(t, ok)
	assert.NoError(t, err)
}
