// Package runner は core.Job の実装を提供します。
package runner

import (
	"context"
	"fmt"

	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/util/exception"
	"batchprocessing/pkg/batch/util/logger"
)

// SimpleJob はステップを宣言順に実行する core.Job の実装です。
type SimpleJob struct {
	name              string
	steps             []core.Step
	jobListeners      []core.JobExecutionListener
	recorder          core.StepExecutionRecorder
	continueOnFailure bool
}

// Option は SimpleJob の設定を変更します。
type Option func(*SimpleJob)

// WithContinueOnFailure はステップが失敗しても後続のステップを実行するようにします。
func WithContinueOnFailure() Option {
	return func(j *SimpleJob) { j.continueOnFailure = true }
}

// WithJobListeners は JobExecutionListener を追加します。
func WithJobListeners(ls ...core.JobExecutionListener) Option {
	return func(j *SimpleJob) { j.jobListeners = append(j.jobListeners, ls...) }
}

// WithStepExecutionRecorder はステップ終了時に結果を記録するレコーダを設定します。
func WithStepExecutionRecorder(r core.StepExecutionRecorder) Option {
	return func(j *SimpleJob) { j.recorder = r }
}

// NewSimpleJob は新しい SimpleJob を作成します。
func NewSimpleJob(name string, steps []core.Step, opts ...Option) (*SimpleJob, error) {
	if name == "" {
		return nil, exception.NewConfigurationError("simple_job", "ジョブ名が指定されていません")
	}
	if len(steps) == 0 {
		return nil, exception.NewConfigurationError("simple_job", fmt.Sprintf("ジョブ '%s' にステップがありません", name))
	}
	seen := make(map[string]bool, len(steps))
	for i, s := range steps {
		if s == nil {
			return nil, exception.NewConfigurationError("simple_job", fmt.Sprintf("ジョブ '%s' の %d 番目のステップが nil です", name, i+1))
		}
		if seen[s.StepName()] {
			return nil, exception.NewConfigurationError("simple_job", fmt.Sprintf("ジョブ '%s' のステップ名 '%s' が重複しています", name, s.StepName()))
		}
		seen[s.StepName()] = true
	}

	j := &SimpleJob{name: name, steps: steps}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// JobName はジョブ名を返します。
func (j *SimpleJob) JobName() string {
	return j.name
}

// StepNames はステップ名を実行順に返します。
func (j *SimpleJob) StepNames() []string {
	names := make([]string, len(j.steps))
	for i, s := range j.steps {
		names[i] = s.StepName()
	}
	return names
}

// Run はステップを宣言順に実行し、ステップの結果からジョブの状態を決定します。
//
// jobExecution に COMPLETED の StepExecution が既にある場合、そのステップは再実行せずに記録だけを引き継ぎます。
// 未完了の StepExecution がある場合は、その ExecutionContext から再開します。
// ジョブが FAILED になった場合は最初の失敗を返します。
func (j *SimpleJob) Run(ctx context.Context, jobExecution *core.JobExecution) error {
	jobExecution.MarkAsStarted()
	for _, l := range j.jobListeners {
		l.BeforeJob(ctx, jobExecution)
	}

	for _, s := range j.steps {
		se := jobExecution.FindStepExecution(s.StepName())
		if se != nil && se.Status == core.BatchStatusCompleted {
			logger.Infof("ジョブ '%s': ステップ '%s' は前回の実行で完了しているためスキップします。", j.name, s.StepName())
			j.record(ctx, jobExecution, se)
			continue
		}
		if se == nil || se.Status.IsFinished() {
			se = core.NewStepExecution(s.StepName())
			jobExecution.AddStepExecution(se)
		}

		err := s.Execute(ctx, jobExecution, se)
		if !se.Status.IsFinished() {
			if err != nil {
				se.MarkAsFailed(err)
			} else {
				se.MarkAsCompleted()
			}
		}
		j.record(ctx, jobExecution, se)

		if se.Status == core.BatchStatusFailed {
			if err == nil && len(se.Failures) > 0 {
				err = se.Failures[0]
			}
			jobExecution.AddFailureException(err)
			if !j.continueOnFailure {
				logger.Errorf("ジョブ '%s': ステップ '%s' が失敗したため、ジョブを終了します。", j.name, s.StepName())
				break
			}
			logger.Warnf("ジョブ '%s': ステップ '%s' が失敗しましたが、後続のステップを実行します。", j.name, s.StepName())
			continue
		}
		if se.Status == core.BatchStatusStopped {
			logger.Warnf("ジョブ '%s': ステップ '%s' で停止しました。", j.name, s.StepName())
			break
		}
	}

	jobExecution.Finish()
	for _, l := range j.jobListeners {
		l.AfterJob(ctx, jobExecution)
	}

	if jobExecution.Status == core.BatchStatusFailed && len(jobExecution.Failures) > 0 {
		return jobExecution.Failures[0]
	}
	return nil
}

func (j *SimpleJob) record(ctx context.Context, jobExecution *core.JobExecution, se *core.StepExecution) {
	if j.recorder == nil {
		return
	}
	if err := j.recorder.RecordStepOutcome(context.WithoutCancel(ctx), jobExecution.JobName, jobExecution.RunID, se); err != nil {
		logger.Errorf("ジョブ '%s': ステップ '%s' の結果の記録に失敗しました: %v", j.name, se.StepName, err)
		jobExecution.AddFailureException(err)
	}
}

var _ core.Job = (*SimpleJob)(nil)
