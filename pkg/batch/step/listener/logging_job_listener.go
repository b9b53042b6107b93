package listener

import (
	"context"

	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/util/logger"
)

// LoggingJobListener はジョブの開始と終了をログに出力する JobExecutionListener の実装です。
type LoggingJobListener struct{}

// NewLoggingJobListener は新しい LoggingJobListener のインスタンスを作成します。
func NewLoggingJobListener() *LoggingJobListener {
	return &LoggingJobListener{}
}

// BeforeJob はジョブ開始時に呼び出されます。
func (l *LoggingJobListener) BeforeJob(ctx context.Context, jobExecution *core.JobExecution) {
	logger.Infof("ジョブ '%s' (RunID: %d) を開始します。", jobExecution.JobName, jobExecution.RunID)
}

// AfterJob はジョブ終了時に呼び出されます。
func (l *LoggingJobListener) AfterJob(ctx context.Context, jobExecution *core.JobExecution) {
	if jobExecution.Status == core.BatchStatusFailed {
		logger.Errorf("ジョブ '%s' (RunID: %d) が失敗しました。失敗ステップ: %s, 分類: %s",
			jobExecution.JobName, jobExecution.RunID, jobExecution.FailedStepName, jobExecution.FailureKind)
		return
	}
	logger.Infof("ジョブ '%s' (RunID: %d) が終了しました。ステータス: %s", jobExecution.JobName, jobExecution.RunID, jobExecution.Status)
}

var _ core.JobExecutionListener = (*LoggingJobListener)(nil)
