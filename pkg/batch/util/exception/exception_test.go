package exception_test

import (
	"errors"
	"fmt"
	"testing"

	"batchprocessing/pkg/batch/util/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchError_KindAndFlags(t *testing.T) {
	cause := errors.New("bad row")

	tests := []struct {
		name      string
		err       *exception.BatchError
		kind      exception.ErrorKind
		retryable bool
		skippable bool
	}{
		{"Read", exception.NewReadError("reader", "行の読み込みに失敗しました", cause, false, true), exception.KindRead, false, true},
		{"Process", exception.NewProcessError("processor", "変換に失敗しました", cause, false, true), exception.KindProcess, false, true},
		{"Write", exception.NewWriteError("writer", "書き込みに失敗しました", cause, true, false), exception.KindWrite, true, false},
		{"Configuration", exception.NewConfigurationError("step", "chunk size"), exception.KindConfiguration, false, false},
		{"SkipLimit", exception.NewSkipLimitExceededError("step", 3, cause), exception.KindSkipLimitExceeded, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.err.Kind)
			assert.Equal(t, tt.retryable, tt.err.IsRetryable())
			assert.Equal(t, tt.skippable, tt.err.IsSkippable())
			assert.Contains(t, tt.err.Error(), string(tt.kind))
		})
	}
}

func TestKindOf_ThroughWrapping(t *testing.T) {
	inner := exception.NewReadError("reader", "不正な行です", nil, false, true)
	wrapped := fmt.Errorf("chunk 3: %w", inner)

	assert.Equal(t, exception.KindRead, exception.KindOf(wrapped))
	assert.True(t, exception.IsSkippable(wrapped))
	assert.False(t, exception.IsRetryable(wrapped))
	assert.Equal(t, exception.KindUnknown, exception.KindOf(errors.New("plain")))
}

func TestIsKind_NestedBatchErrors(t *testing.T) {
	cause := exception.NewProcessError("processor", "変換に失敗しました", nil, false, true)
	outer := exception.NewSkipLimitExceededError("step", 1, cause)

	assert.True(t, exception.IsKind(outer, exception.KindSkipLimitExceeded))
	assert.True(t, exception.IsKind(outer, exception.KindProcess))
	assert.False(t, exception.IsKind(outer, exception.KindWrite))

	var be *exception.BatchError
	require.ErrorAs(t, outer, &be)
	assert.Equal(t, "step", be.Module)
}

func TestNewBatchErrorf_WrapsVerb(t *testing.T) {
	cause := errors.New("connection refused")
	err := exception.NewBatchErrorf("database", "接続に失敗しました (%s): %w", "postgres", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Message, "postgres")
}

func TestParseErrorKind(t *testing.T) {
	kind, ok := exception.ParseErrorKind("ProcessError")
	assert.True(t, ok)
	assert.Equal(t, exception.KindProcess, kind)

	_, ok = exception.ParseErrorKind("Nope")
	assert.False(t, ok)
}
