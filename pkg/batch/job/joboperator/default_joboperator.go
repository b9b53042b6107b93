package joboperator

import (
	"context"
	"fmt"
	"sync"

	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/job/joblauncher"
	"batchprocessing/pkg/batch/repository"
	"batchprocessing/pkg/batch/util/exception"
	"batchprocessing/pkg/batch/util/logger"
)

// DefaultJobOperator は JobOperator インターフェースのデフォルト実装です。
// 明示的に登録されたジョブを JobLauncher で起動し、RunRegistry から実行履歴を参照します。
type DefaultJobOperator struct {
	launcher joblauncher.JobLauncher
	registry repository.RunRegistry

	mu   sync.RWMutex
	jobs map[string]core.Job
}

// DefaultJobOperator が JobOperator インターフェースを満たすことを確認します。
var _ JobOperator = (*DefaultJobOperator)(nil)

// NewDefaultJobOperator は新しい DefaultJobOperator のインスタンスを作成します。
func NewDefaultJobOperator(launcher joblauncher.JobLauncher, registry repository.RunRegistry) *DefaultJobOperator {
	return &DefaultJobOperator{
		launcher: launcher,
		registry: registry,
		jobs:     make(map[string]core.Job),
	}
}

// Register はジョブを登録します。同じ名前のジョブは登録できません。
func (o *DefaultJobOperator) Register(job core.Job) error {
	if job == nil {
		return exception.NewConfigurationError("job_operator", "登録するジョブが nil です")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.jobs[job.JobName()]; ok {
		return exception.NewConfigurationError("job_operator", fmt.Sprintf("ジョブ '%s' は既に登録されています", job.JobName()))
	}
	o.jobs[job.JobName()] = job
	logger.Debugf("ジョブ '%s' を登録しました。", job.JobName())
	return nil
}

func (o *DefaultJobOperator) job(jobName string) (core.Job, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	job, ok := o.jobs[jobName]
	if !ok {
		return nil, exception.NewBatchErrorf("job_operator", "ジョブ '%s' は登録されていません: %w", jobName, ErrJobNotRegistered).WithKind(exception.KindConfiguration)
	}
	return job, nil
}

// Start は JobOperator インターフェースの実装です。
func (o *DefaultJobOperator) Start(ctx context.Context, jobName string, params core.JobParameters) (*core.JobExecution, error) {
	job, err := o.job(jobName)
	if err != nil {
		return nil, err
	}
	return o.launcher.Launch(ctx, job, params)
}

// Restart は前回の実行のパラメータで新しい実行を作成します。
// 前回 COMPLETED のステップは再実行せず、それ以外のステップは最後にコミットされた ExecutionContext から再開します。
func (o *DefaultJobOperator) Restart(ctx context.Context, jobName string, runID int64) (*core.JobExecution, error) {
	job, err := o.job(jobName)
	if err != nil {
		return nil, err
	}

	prev, err := o.registry.FindRun(ctx, jobName, runID)
	if err != nil {
		return nil, err
	}
	if prev.Status != core.BatchStatusFailed && prev.Status != core.BatchStatusStopped {
		return nil, exception.NewBatchErrorf("job_operator", "ジョブ '%s' (RunID: %d) は再開可能な状態ではありません (現在の状態: %s): %w", jobName, runID, prev.Status, ErrNotRestartable)
	}
	logger.Infof("ジョブ '%s' (RunID: %d, Status: %s) を再開します。", jobName, runID, prev.Status)

	var carried []*core.StepExecution
	for _, name := range job.StepNames() {
		se := prev.FindStepExecution(name)
		if se == nil {
			continue
		}
		if se.Status == core.BatchStatusCompleted {
			carried = append(carried, se)
			continue
		}
		resumed := core.NewStepExecution(name)
		resumed.ExecutionContext = se.ExecutionContext.Copy()
		carried = append(carried, resumed)
		logger.Debugf("ステップ '%s' を前回の ExecutionContext から再開します: %v", name, resumed.ExecutionContext)
	}

	return o.launcher.Launch(ctx, job, prev.Parameters, joblauncher.WithStepExecutions(carried...))
}

// Stop は JobOperator インターフェースの実装です。
func (o *DefaultJobOperator) Stop(_ context.Context, jobName string, runID int64) error {
	return o.launcher.Stop(jobName, runID)
}

// GetRun は JobOperator インターフェースの実装です。
func (o *DefaultJobOperator) GetRun(ctx context.Context, jobName string, runID int64) (*core.JobExecution, error) {
	return o.registry.FindRun(ctx, jobName, runID)
}

// GetLastRun は JobOperator インターフェースの実装です。
func (o *DefaultJobOperator) GetLastRun(ctx context.Context, jobName string) (*core.JobExecution, error) {
	return o.registry.LastRun(ctx, jobName)
}
