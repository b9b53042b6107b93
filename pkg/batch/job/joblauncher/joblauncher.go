// Package joblauncher はジョブの起動と実行中のジョブの停止を提供します。
package joblauncher

import (
	"context"

	core "batchprocessing/pkg/batch/job/core"
)

// JobLauncher は Job を JobParameters とともに起動するためのインターフェースです。
type JobLauncher interface {
	// Launch は新しい RunID でジョブを実行し、終了した JobExecution を返します。
	// ジョブが FAILED になった場合は JobExecution とともに最初の失敗を返します。
	Launch(ctx context.Context, job core.Job, params core.JobParameters, opts ...LaunchOption) (*core.JobExecution, error)
	// Stop は実行中のジョブにチャンク境界での停止を要求します。
	Stop(jobName string, runID int64) error
}

// LaunchOption はジョブ実行前の JobExecution を準備します。
type LaunchOption func(*core.JobExecution)

// WithStepExecutions は前回の実行から引き継ぐ StepExecution を設定します。
// COMPLETED のステップは再実行されず、それ以外は ExecutionContext から再開されます。
func WithStepExecutions(ses ...*core.StepExecution) LaunchOption {
	return func(je *core.JobExecution) {
		for _, se := range ses {
			je.AddStepExecution(se)
		}
	}
}
