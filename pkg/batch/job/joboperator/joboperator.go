// Package joboperator は登録済みジョブの開始・再開・停止・参照を提供します。
package joboperator

import (
	"context"
	"errors"

	core "batchprocessing/pkg/batch/job/core"
)

var (
	// ErrJobNotRegistered は指定された名前のジョブが登録されていないことを示します。
	ErrJobNotRegistered = errors.New("job not registered")
	// ErrNotRestartable は実行が FAILED または STOPPED ではないため再開できないことを示します。
	ErrNotRestartable = errors.New("run is not restartable")
)

// JobOperator はジョブ名と RunID でジョブを操作するためのインターフェースです。
type JobOperator interface {
	// Start は新しい実行としてジョブを起動します。
	Start(ctx context.Context, jobName string, params core.JobParameters) (*core.JobExecution, error)
	// Restart は FAILED または STOPPED の実行を新しい RunID で再開します。
	Restart(ctx context.Context, jobName string, runID int64) (*core.JobExecution, error)
	// Stop は実行中のジョブにチャンク境界での停止を要求します。
	Stop(ctx context.Context, jobName string, runID int64) error
	// GetRun は記録された実行を返します。
	GetRun(ctx context.Context, jobName string, runID int64) (*core.JobExecution, error)
	// GetLastRun はジョブの最新の実行を返します。
	GetLastRun(ctx context.Context, jobName string) (*core.JobExecution, error)
}
