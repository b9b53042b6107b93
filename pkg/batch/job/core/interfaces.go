package core

import (
	"context"

	"batchprocessing/pkg/batch/transaction"
)

// Job は実行可能なバッチジョブのインターフェースです。
type Job interface {
	// Run はステップを宣言順に実行し、結果を jobExecution に反映します。
	Run(ctx context.Context, jobExecution *JobExecution) error
	JobName() string
	StepNames() []string
}

// Step はジョブ内で実行される単一のステップのインターフェースです。
type Step interface {
	Execute(ctx context.Context, jobExecution *JobExecution, stepExecution *StepExecution) error
	StepName() string
}

// ItemStream は再開可能なリソースのライフサイクルです。
// カーソル位置は ExecutionContext を介して保存・復元されます。
type ItemStream interface {
	// Open はリソースを開き、ExecutionContext から状態を復元します。
	Open(ctx context.Context, ec ExecutionContext) error
	// Update はコミット済みの状態を ExecutionContext に保存します。チャンクのコミット毎に呼び出されます。
	Update(ctx context.Context, ec ExecutionContext) error
	Close(ctx context.Context) error
}

// ItemReader はアイテムを1件ずつ読み込みます。
// ストリームの終端では io.EOF を返します。
type ItemReader[O any] interface {
	ItemStream
	Read(ctx context.Context) (O, error)
}

// ItemProcessor はアイテムを変換します。
// ErrFiltered を返すとアイテムは除外されます。
type ItemProcessor[I, O any] interface {
	Process(ctx context.Context, item I) (O, error)
}

// ItemWriter はチャンクを書き込みます。書き込みは呼び出し単位で all-or-nothing です。
type ItemWriter[I any] interface {
	ItemStream
	Write(ctx context.Context, tx transaction.Tx, items []I) error
}

// JobExecutionListener はジョブ実行イベントを処理するためのインターフェースです。
type JobExecutionListener interface {
	BeforeJob(ctx context.Context, jobExecution *JobExecution)
	AfterJob(ctx context.Context, jobExecution *JobExecution)
}

// StepExecutionListener はステップ実行イベントを処理するためのインターフェースです。
type StepExecutionListener interface {
	BeforeStep(ctx context.Context, stepExecution *StepExecution)
	AfterStep(ctx context.Context, stepExecution *StepExecution)
}

// ChunkListener はチャンク処理の前後に呼び出されます。
type ChunkListener interface {
	BeforeChunk(ctx context.Context, stepExecution *StepExecution)
	AfterChunk(ctx context.Context, stepExecution *StepExecution)
	AfterChunkError(ctx context.Context, stepExecution *StepExecution, err error)
}

// SkipListener はアイテムスキップイベントを処理するためのインターフェースです。
type SkipListener interface {
	OnSkipRead(ctx context.Context, err error)
	OnSkipProcess(ctx context.Context, item interface{}, err error)
	OnSkipWrite(ctx context.Context, item interface{}, err error)
}

// RetryItemListener はアイテムレベルのリトライイベントを処理するためのインターフェースです。
type RetryItemListener interface {
	OnRetryRead(ctx context.Context, err error)
	OnRetryProcess(ctx context.Context, item interface{}, err error)
	OnRetryWrite(ctx context.Context, items []interface{}, err error)
}

// StepExecutionRecorder はステップの結果を永続化するためのフックです。
// ステップ終了時に1度呼び出されます。
type StepExecutionRecorder interface {
	RecordStepOutcome(ctx context.Context, jobName string, runID int64, stepExecution *StepExecution) error
}
