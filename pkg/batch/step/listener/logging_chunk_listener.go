package listener

import (
	"context"

	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/util/logger"
)

// LoggingChunkListener はチャンク処理の開始と完了をログに出力する ChunkListener の実装です。
type LoggingChunkListener struct{}

// NewLoggingChunkListener は新しい LoggingChunkListener のインスタンスを作成します。
func NewLoggingChunkListener() *LoggingChunkListener {
	return &LoggingChunkListener{}
}

// BeforeChunk はチャンク処理が開始される直前に呼び出されます。
func (l *LoggingChunkListener) BeforeChunk(ctx context.Context, stepExecution *core.StepExecution) {
	logger.Debugf("ChunkListener: ステップ '%s' のチャンク処理を開始します。(コミット済み: %d)", stepExecution.StepName, stepExecution.CommitCount)
}

// AfterChunk はチャンクがコミットされた後に呼び出されます。
func (l *LoggingChunkListener) AfterChunk(ctx context.Context, stepExecution *core.StepExecution) {
	logger.Debugf("ChunkListener: ステップ '%s' のチャンクをコミットしました。読み込み: %d, 書き込み: %d",
		stepExecution.StepName, stepExecution.ReadCount, stepExecution.WriteCount)
}

// AfterChunkError はチャンクがロールバックされた後に呼び出されます。
func (l *LoggingChunkListener) AfterChunkError(ctx context.Context, stepExecution *core.StepExecution, err error) {
	logger.Errorf("ChunkListener: ステップ '%s' のチャンクをロールバックしました: %v", stepExecution.StepName, err)
}

var _ core.ChunkListener = (*LoggingChunkListener)(nil)
