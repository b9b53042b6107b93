package joblauncher

import (
	"context"
	"sync"

	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/repository"
	"batchprocessing/pkg/batch/util/exception"
	"batchprocessing/pkg/batch/util/logger"
)

type runKey struct {
	jobName string
	runID   int64
}

// SimpleJobLauncher は JobLauncher インターフェースのシンプルな実装です。
// 実行の開始と終了を RunRegistry に記録し、実行中の JobExecution を停止要求のために保持します。
type SimpleJobLauncher struct {
	registry repository.RunRegistry

	mu     sync.Mutex
	active map[runKey]*core.JobExecution
}

// NewSimpleJobLauncher は新しい SimpleJobLauncher のインスタンスを作成します。
func NewSimpleJobLauncher(registry repository.RunRegistry) *SimpleJobLauncher {
	return &SimpleJobLauncher{
		registry: registry,
		active:   make(map[runKey]*core.JobExecution),
	}
}

// Launch は RecordStart、ジョブの実行、RecordCompletion の順に処理します。
// 終了の記録はコンテキストがキャンセルされていても行われます。
func (l *SimpleJobLauncher) Launch(ctx context.Context, job core.Job, params core.JobParameters, opts ...LaunchOption) (*core.JobExecution, error) {
	jobName := job.JobName()
	logger.Infof("Job '%s' を起動します。", jobName)

	runID, err := l.registry.RecordStart(ctx, jobName, params)
	if err != nil {
		logger.Errorf("Job '%s' の実行の登録に失敗しました: %v", jobName, err)
		return nil, exception.NewRepositoryError("job_launcher", "起動処理エラー: 実行の登録に失敗しました", err)
	}

	jobExecution := core.NewJobExecution(jobName, runID, params)
	for _, opt := range opts {
		opt(jobExecution)
	}

	l.register(jobExecution)
	defer l.unregister(jobExecution)

	logger.Infof("Job '%s' (RunID: %d) の実行を開始します。", jobName, runID)
	runErr := job.Run(ctx, jobExecution)
	if !jobExecution.Status.IsFinished() {
		jobExecution.AddFailureException(runErr)
		jobExecution.Finish()
		if runErr != nil {
			jobExecution.Status = core.BatchStatusFailed
			jobExecution.ExitStatus = core.ExitStatusFailed
		}
	}

	var failure error
	if len(jobExecution.Failures) > 0 {
		failure = jobExecution.Failures[0]
	}
	if err := l.registry.RecordCompletion(context.WithoutCancel(ctx), jobName, runID, jobExecution.Status, failure); err != nil {
		logger.Errorf("Job '%s' (RunID: %d) の最終状態の記録に失敗しました: %v", jobName, runID, err)
		jobExecution.AddFailureException(err)
		if runErr == nil {
			runErr = exception.NewRepositoryError("job_launcher", "実行の終了の記録に失敗しました", err)
		}
	}

	logger.Infof("Job '%s' (RunID: %d) が終了しました。Status: %s", jobName, runID, jobExecution.Status)
	return jobExecution, runErr
}

// Stop は実行中のジョブに停止を要求します。停止は現在のチャンクのコミット後に反映されます。
func (l *SimpleJobLauncher) Stop(jobName string, runID int64) error {
	l.mu.Lock()
	jobExecution, ok := l.active[runKey{jobName, runID}]
	l.mu.Unlock()
	if !ok {
		return exception.NewBatchErrorf("job_launcher", "実行中のジョブ '%s' (RunID: %d) が見つかりません: %w", jobName, runID, repository.ErrRunNotFound)
	}
	jobExecution.RequestStop()
	logger.Infof("Job '%s' (RunID: %d) に停止を要求しました。", jobName, runID)
	return nil
}

// Running は実行中のジョブの RunID を返します。
func (l *SimpleJobLauncher) Running(jobName string) []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var ids []int64
	for k := range l.active {
		if k.jobName == jobName {
			ids = append(ids, k.runID)
		}
	}
	return ids
}

func (l *SimpleJobLauncher) register(je *core.JobExecution) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active[runKey{je.JobName, je.RunID}] = je
	logger.Debugf("JobExecution (Job: %s, RunID: %d) を登録しました。", je.JobName, je.RunID)
}

func (l *SimpleJobLauncher) unregister(je *core.JobExecution) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, runKey{je.JobName, je.RunID})
	logger.Debugf("JobExecution (Job: %s, RunID: %d) を登録解除しました。", je.JobName, je.RunID)
}

var _ JobLauncher = (*SimpleJobLauncher)(nil)
