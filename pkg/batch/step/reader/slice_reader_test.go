package reader_test

import (
	"context"
	"io"
	"testing"

	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/step/reader"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceReader_ReadsInOrder(t *testing.T) {
	ctx := context.Background()
	r := reader.NewSliceReader("names", []string{"Ann", "Bo"})
	require.NoError(t, r.Open(ctx, core.NewExecutionContext()))

	first, err := r.Read(ctx)
	require.NoError(t, err)
	second, err := r.Read(ctx)
	require.NoError(t, err)
	_, err = r.Read(ctx)

	assert.Equal(t, "Ann", first)
	assert.Equal(t, "Bo", second)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSliceReader_RestoresPosition(t *testing.T) {
	ctx := context.Background()
	ec := core.NewExecutionContext()

	r := reader.NewSliceReader("names", []string{"a", "b", "c"})
	require.NoError(t, r.Open(ctx, ec))
	_, _ = r.Read(ctx)
	_, _ = r.Read(ctx)
	require.NoError(t, r.Update(ctx, ec))

	v, ok := ec.GetInt64("names.read.count")
	require.True(t, ok)
	assert.Equal(t, int64(2), v)

	restarted := reader.NewSliceReader("names", []string{"a", "b", "c"})
	require.NoError(t, restarted.Open(ctx, ec))
	item, err := restarted.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c", item)
}

func TestSliceReader_Empty(t *testing.T) {
	r := reader.NewSliceReader[int]("empty", nil)
	require.NoError(t, r.Open(context.Background(), core.NewExecutionContext()))

	_, err := r.Read(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}
