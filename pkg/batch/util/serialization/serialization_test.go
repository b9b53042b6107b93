package serialization_test

import (
	"errors"
	"testing"

	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/util/exception"
	"batchprocessing/pkg/batch/util/serialization"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionContext_PreservesCursor(t *testing.T) {
	ec := core.NewExecutionContext()
	ec.Put("personReader.read.count", int64(9007199254740993))
	ec.Put("name", "exampleJobStep")

	data, err := serialization.MarshalExecutionContext(ec)
	require.NoError(t, err)
	restored, err := serialization.UnmarshalExecutionContext(data)
	require.NoError(t, err)

	v, ok := restored.GetInt64("personReader.read.count")
	require.True(t, ok)
	assert.Equal(t, int64(9007199254740993), v)
	s, _ := restored.GetString("name")
	assert.Equal(t, "exampleJobStep", s)
}

func TestExecutionContext_Empty(t *testing.T) {
	data, err := serialization.MarshalExecutionContext(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	ec, err := serialization.UnmarshalExecutionContext(nil)
	require.NoError(t, err)
	assert.Empty(t, ec)
}

func TestJobParameters(t *testing.T) {
	params := core.NewJobParameters()
	params.Put("input", "persons")

	data, err := serialization.MarshalJobParameters(params)
	require.NoError(t, err)
	restored, err := serialization.UnmarshalJobParameters(data)
	require.NoError(t, err)

	v, ok := restored.GetString("input")
	assert.True(t, ok)
	assert.Equal(t, "persons", v)
}

func TestFailures_KeepKind(t *testing.T) {
	failures := []error{
		exception.NewSkipLimitExceededError("skip_policy", 3, nil),
		errors.New("plain"),
	}

	data, err := serialization.MarshalFailures(failures)
	require.NoError(t, err)
	restored, err := serialization.UnmarshalFailures(data)
	require.NoError(t, err)

	require.Len(t, restored, 2)
	assert.Equal(t, exception.KindSkipLimitExceeded, exception.KindOf(restored[0]))
	assert.Equal(t, failures[0].Error(), restored[0].Error())
	assert.Equal(t, exception.KindUnknown, exception.KindOf(restored[1]))
}

func TestUnmarshalFailures_Invalid(t *testing.T) {
	_, err := serialization.UnmarshalFailures([]byte("{"))
	assert.Error(t, err)
}
