// Package repository はジョブ実行履歴 (Run Registry) を提供します。
package repository

import (
	"context"
	"errors"
	"slices"

	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/util/exception"
)

var (
	// ErrRunNotFound は指定された実行が存在しないことを示します。
	ErrRunNotFound = errors.New("run not found")
	// ErrRunAlreadyCompleted は終了済みの実行に記録しようとしたことを示します。
	ErrRunAlreadyCompleted = errors.New("run already completed")
)

// RunRegistry はジョブ実行の履歴を追記専用で記録します。
// RunID はジョブ名ごとに単調増加し、再利用されません。
// 実装は複数のゴルーチンから同時に使用できる必要があります。
type RunRegistry interface {
	core.StepExecutionRecorder

	// RecordStart は新しい実行を登録し、割り当てた RunID を返します。
	RecordStart(ctx context.Context, jobName string, params core.JobParameters) (int64, error)
	// RecordCompletion は実行の最終状態を記録します。1つの実行につき1度だけ記録できます。
	RecordCompletion(ctx context.Context, jobName string, runID int64, status core.BatchStatus, failure error) error
	// FindRun は記録された実行を JobExecution として復元します。
	FindRun(ctx context.Context, jobName string, runID int64) (*core.JobExecution, error)
	// LastRun はジョブの最新の実行を返します。
	LastRun(ctx context.Context, jobName string) (*core.JobExecution, error)
}

func notFound(jobName string, runID int64) error {
	return exception.NewBatchErrorf("run_registry", "ジョブ '%s' の実行 (RunID: %d) が見つかりません: %w", jobName, runID, ErrRunNotFound).WithKind(exception.KindRepository)
}

func alreadyCompleted(jobName string, runID int64) error {
	return exception.NewBatchErrorf("run_registry", "ジョブ '%s' の実行 (RunID: %d) は既に終了しています: %w", jobName, runID, ErrRunAlreadyCompleted).WithKind(exception.KindRepository)
}

func invalidCompletion(status core.BatchStatus) error {
	return exception.NewBatchErrorf("run_registry", "終了状態ではないステータスは記録できません: %s", status).WithKind(exception.KindRepository)
}

// snapshotStep は記録用に StepExecution の複製を作成します。JobExecution への参照は持ちません。
func snapshotStep(se *core.StepExecution) *core.StepExecution {
	cp := &core.StepExecution{
		ID:               se.ID,
		StepName:         se.StepName,
		StartTime:        se.StartTime,
		EndTime:          se.EndTime,
		Status:           se.Status,
		ExitStatus:       se.ExitStatus,
		Failures:         slices.Clone(se.Failures),
		ReadCount:        se.ReadCount,
		WriteCount:       se.WriteCount,
		CommitCount:      se.CommitCount,
		RollbackCount:    se.RollbackCount,
		FilterCount:      se.FilterCount,
		SkipReadCount:    se.SkipReadCount,
		SkipProcessCount: se.SkipProcessCount,
		SkipWriteCount:   se.SkipWriteCount,
		ExecutionContext: se.ExecutionContext.Copy(),
		LastUpdated:      se.LastUpdated,
	}
	if cp.Failures == nil {
		cp.Failures = []error{}
	}
	return cp
}

// applyOutcome は記録された状態から JobExecution の失敗情報を補完します。
func applyOutcome(je *core.JobExecution, failure error) {
	for _, se := range je.StepExecutions {
		if se.Status == core.BatchStatusFailed {
			je.FailedStepName = se.StepName
			je.FailureKind = se.FailureKind()
			break
		}
	}
	if failure != nil {
		je.Failures = append(je.Failures, failure)
		if je.FailureKind == "" {
			je.FailureKind = exception.KindOf(failure)
		}
	}
}
