package listener

import (
	"context"

	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/util/logger"
)

// LoggingStepListener はステップの開始と終了、および件数のサマリをログに出力します。
type LoggingStepListener struct{}

// NewLoggingStepListener は新しい LoggingStepListener のインスタンスを作成します。
func NewLoggingStepListener() *LoggingStepListener {
	return &LoggingStepListener{}
}

// BeforeStep はステップ開始時に呼び出されます。
func (l *LoggingStepListener) BeforeStep(ctx context.Context, stepExecution *core.StepExecution) {
	logger.Infof("ステップ '%s' を開始します。", stepExecution.StepName)
}

// AfterStep はステップ終了時に呼び出されます。
func (l *LoggingStepListener) AfterStep(ctx context.Context, stepExecution *core.StepExecution) {
	logger.Infof("ステップ '%s' が終了しました。ステータス: %s, 読み込み: %d, 書き込み: %d, フィルタ: %d, スキップ: %d, コミット: %d, ロールバック: %d",
		stepExecution.StepName, stepExecution.Status,
		stepExecution.ReadCount, stepExecution.WriteCount, stepExecution.FilterCount,
		stepExecution.SkipCount(), stepExecution.CommitCount, stepExecution.RollbackCount)
}

var _ core.StepExecutionListener = (*LoggingStepListener)(nil)
