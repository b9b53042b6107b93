package joboperator_test

import (
	"context"
	"errors"
	"strconv"
	"testing"

	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/job/joblauncher"
	"batchprocessing/pkg/batch/job/joboperator"
	"batchprocessing/pkg/batch/job/runner"
	"batchprocessing/pkg/batch/repository"
	"batchprocessing/pkg/batch/step"
	"batchprocessing/pkg/batch/step/processor"
	"batchprocessing/pkg/batch/step/reader"
	"batchprocessing/pkg/batch/step/writer"
	"batchprocessing/pkg/batch/util/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numbers(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i + 1)
	}
	return out
}

// failOnce は指定されたアイテムで1度だけ失敗するプロセッサを返します。
func failOnce(items ...string) processor.Func[string, string] {
	pending := make(map[string]bool, len(items))
	for _, it := range items {
		pending[it] = true
	}
	return func(_ context.Context, item string) (string, error) {
		if pending[item] {
			delete(pending, item)
			return "", errors.New("一時的に処理できません: " + item)
		}
		return item, nil
	}
}

type fixture struct {
	operator *joboperator.DefaultJobOperator
	registry *repository.MemoryRunRegistry
	prepared *writer.ListWriter[string]
	loaded   *writer.ListWriter[string]
}

func newFixture(t *testing.T, failures ...string) *fixture {
	t.Helper()
	f := &fixture{
		registry: repository.NewMemoryRunRegistry(),
		prepared: writer.NewListWriter[string](),
		loaded:   writer.NewListWriter[string](),
	}

	prepare, err := step.NewChunkStep[string, string]("prepare", reader.NewSliceReader("codes", []string{"a", "b", "c"}), nil, f.prepared)
	require.NoError(t, err)
	load, err := step.NewChunkStep[string, string]("load", reader.NewSliceReader("numbers", numbers(25)), failOnce(failures...), f.loaded,
		step.WithChunkSize(10))
	require.NoError(t, err)

	job, err := runner.NewSimpleJob("job", []core.Step{prepare, load}, runner.WithStepExecutionRecorder(f.registry))
	require.NoError(t, err)

	f.operator = joboperator.NewDefaultJobOperator(joblauncher.NewSimpleJobLauncher(f.registry), f.registry)
	require.NoError(t, f.operator.Register(job))
	return f
}

func TestDefaultJobOperator_RestartIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "15")

	first, err := f.operator.Start(ctx, "job", core.NewJobParameters())
	require.Error(t, err)
	assert.Equal(t, core.BatchStatusFailed, first.Status)
	assert.Equal(t, "load", first.FailedStepName)
	assert.Equal(t, numbers(10), f.loaded.Items())

	second, err := f.operator.Restart(ctx, "job", first.RunID)
	require.NoError(t, err)

	assert.Equal(t, int64(2), second.RunID)
	assert.Equal(t, core.BatchStatusCompleted, second.Status)
	assert.Equal(t, numbers(25), f.loaded.Items())
	assert.Equal(t, []string{"a", "b", "c"}, f.prepared.Items())

	load := second.FindStepExecution("load")
	require.NotNil(t, load)
	assert.Equal(t, 15, load.WriteCount)

	recorded, err := f.operator.GetRun(ctx, "job", second.RunID)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusCompleted, recorded.Status)
	require.Len(t, recorded.StepExecutions, 2)
	assert.Equal(t, "prepare", recorded.StepExecutions[0].StepName)
	assert.Equal(t, core.BatchStatusCompleted, recorded.StepExecutions[0].Status)

	last, err := f.operator.GetLastRun(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, second.RunID, last.RunID)
}

func TestDefaultJobOperator_RestartOfRestart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "15", "22")

	first, err := f.operator.Start(ctx, "job", core.NewJobParameters())
	require.Error(t, err)
	second, err := f.operator.Restart(ctx, "job", first.RunID)
	require.Error(t, err)
	assert.Equal(t, numbers(20), f.loaded.Items())

	third, err := f.operator.Restart(ctx, "job", second.RunID)
	require.NoError(t, err)

	assert.Equal(t, int64(3), third.RunID)
	assert.Equal(t, numbers(25), f.loaded.Items())
	assert.Equal(t, []string{"a", "b", "c"}, f.prepared.Items())
}

func TestDefaultJobOperator_RestartRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	done, err := f.operator.Start(ctx, "job", core.NewJobParameters())
	require.NoError(t, err)

	_, err = f.operator.Restart(ctx, "job", done.RunID)
	assert.ErrorIs(t, err, joboperator.ErrNotRestartable)

	_, err = f.operator.Restart(ctx, "job", 99)
	assert.ErrorIs(t, err, repository.ErrRunNotFound)

	_, err = f.operator.Restart(ctx, "other", done.RunID)
	assert.ErrorIs(t, err, joboperator.ErrJobNotRegistered)
}

func TestDefaultJobOperator_Register(t *testing.T) {
	f := newFixture(t)
	job, err := runner.NewSimpleJob("job", []core.Step{nopStep{}})
	require.NoError(t, err)

	err = f.operator.Register(job)
	assert.True(t, exception.IsKind(err, exception.KindConfiguration))
	assert.True(t, exception.IsKind(f.operator.Register(nil), exception.KindConfiguration))

	_, err = f.operator.Start(context.Background(), "missing", core.NewJobParameters())
	assert.ErrorIs(t, err, joboperator.ErrJobNotRegistered)
}

func TestDefaultJobOperator_StopUnknownRun(t *testing.T) {
	f := newFixture(t)
	err := f.operator.Stop(context.Background(), "job", 1)
	assert.ErrorIs(t, err, repository.ErrRunNotFound)
}

type nopStep struct{}

func (nopStep) StepName() string { return "nop" }

func (nopStep) Execute(_ context.Context, _ *core.JobExecution, se *core.StepExecution) error {
	se.MarkAsCompleted()
	return nil
}
