package processor_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/step/processor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassThrough(t *testing.T) {
	out, err := processor.PassThrough[string]{}.Process(context.Background(), "Ann")
	require.NoError(t, err)
	assert.Equal(t, "Ann", out)
}

func TestComposite(t *testing.T) {
	upper := processor.Func[string, string](func(_ context.Context, s string) (string, error) {
		return strings.ToUpper(s), nil
	})
	nonEmpty := processor.Filter(func(s string) bool { return s != "" })
	c := processor.NewComposite[string](nonEmpty, upper)

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{"transforms", "ann", "ANN", nil},
		{"filtered", "", "", core.ErrFiltered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Process(context.Background(), tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComposite_StopsOnError(t *testing.T) {
	called := false
	failing := processor.Func[string, string](func(context.Context, string) (string, error) {
		return "", errors.New("boom")
	})
	next := processor.Func[string, string](func(_ context.Context, s string) (string, error) {
		called = true
		return s, nil
	})

	_, err := processor.NewComposite[string](failing, next).Process(context.Background(), "x")

	assert.EqualError(t, err, "boom")
	assert.False(t, called)
}

func TestChain(t *testing.T) {
	atoi := processor.Func[string, int](func(_ context.Context, s string) (int, error) {
		return strconv.Atoi(s)
	})
	double := processor.Func[int, int](func(_ context.Context, n int) (int, error) {
		return n * 2, nil
	})

	got, err := processor.Chain[string, int, int](atoi, double).Process(context.Background(), "21")

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}
