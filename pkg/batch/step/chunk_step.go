// Package step はチャンク指向のステップ実装を提供します。
package step

import (
	"context"
	"fmt"

	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/step/retry"
	"batchprocessing/pkg/batch/step/skip"
	"batchprocessing/pkg/batch/transaction"
	"batchprocessing/pkg/batch/util/exception"
	"batchprocessing/pkg/batch/util/logger"
)

// DefaultChunkSize はチャンクサイズが指定されなかった場合の既定値です。
const DefaultChunkSize = 10

type settings struct {
	chunkSize      int
	txManager      transaction.Manager
	skipPolicy     skip.Policy
	retryPolicy    retry.Policy
	stepListeners  []core.StepExecutionListener
	chunkListeners []core.ChunkListener
	skipListeners  []core.SkipListener
	retryListeners []core.RetryItemListener
}

// Option は ChunkStep の設定を変更します。
type Option func(*settings)

// WithChunkSize は1トランザクションで処理するアイテム数を設定します。
func WithChunkSize(n int) Option {
	return func(s *settings) { s.chunkSize = n }
}

// WithTransactionManager はチャンクのトランザクションマネージャを設定します。
// 既定はリソースレスのマネージャです。
func WithTransactionManager(m transaction.Manager) Option {
	return func(s *settings) { s.txManager = m }
}

// WithSkipPolicy はスキップポリシーを設定します。既定ではスキップしません。
func WithSkipPolicy(p skip.Policy) Option {
	return func(s *settings) { s.skipPolicy = p }
}

// WithRetryPolicy はリトライポリシーを設定します。既定ではリトライしません。
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *settings) { s.retryPolicy = p }
}

// WithStepListeners は StepExecutionListener を追加します。
func WithStepListeners(ls ...core.StepExecutionListener) Option {
	return func(s *settings) { s.stepListeners = append(s.stepListeners, ls...) }
}

// WithChunkListeners は ChunkListener を追加します。
func WithChunkListeners(ls ...core.ChunkListener) Option {
	return func(s *settings) { s.chunkListeners = append(s.chunkListeners, ls...) }
}

// WithSkipListeners は SkipListener を追加します。
func WithSkipListeners(ls ...core.SkipListener) Option {
	return func(s *settings) { s.skipListeners = append(s.skipListeners, ls...) }
}

// WithRetryListeners は RetryItemListener を追加します。
func WithRetryListeners(ls ...core.RetryItemListener) Option {
	return func(s *settings) { s.retryListeners = append(s.retryListeners, ls...) }
}

// ChunkStep は読み込み・処理・書き込みをチャンク単位のトランザクションで実行するステップです。
type ChunkStep[I, O any] struct {
	name      string
	reader    core.ItemReader[I]
	processor core.ItemProcessor[I, O]
	writer    core.ItemWriter[O]
	settings
}

// NewChunkStep は新しい ChunkStep を作成します。
// processor が nil の場合、I が O に変換できるアイテムをそのまま書き込みます。
func NewChunkStep[I, O any](name string, reader core.ItemReader[I], processor core.ItemProcessor[I, O], writer core.ItemWriter[O], opts ...Option) (*ChunkStep[I, O], error) {
	s := settings{
		chunkSize:   DefaultChunkSize,
		txManager:   transaction.NewResourcelessManager(),
		skipPolicy:  skip.NeverSkipPolicy(),
		retryPolicy: retry.NoRetryPolicy(),
	}
	for _, opt := range opts {
		opt(&s)
	}

	switch {
	case name == "":
		return nil, exception.NewConfigurationError("chunk_step", "ステップ名が指定されていません")
	case reader == nil:
		return nil, exception.NewConfigurationError("chunk_step", fmt.Sprintf("ステップ '%s' に ItemReader が指定されていません", name))
	case writer == nil:
		return nil, exception.NewConfigurationError("chunk_step", fmt.Sprintf("ステップ '%s' に ItemWriter が指定されていません", name))
	case s.chunkSize < 1:
		return nil, exception.NewConfigurationError("chunk_step", fmt.Sprintf("ステップ '%s' のチャンクサイズは1以上である必要があります: %d", name, s.chunkSize))
	case s.txManager == nil || s.skipPolicy == nil || s.retryPolicy == nil:
		return nil, exception.NewConfigurationError("chunk_step", fmt.Sprintf("ステップ '%s' のトランザクションマネージャまたはポリシーが nil です", name))
	}
	if processor == nil {
		processor = identityProcessor[I, O]{}
	}

	return &ChunkStep[I, O]{
		name:      name,
		reader:    reader,
		processor: processor,
		writer:    writer,
		settings:  s,
	}, nil
}

// StepName はステップの名前を返します。
func (cs *ChunkStep[I, O]) StepName() string {
	return cs.name
}

// ChunkSize はチャンクサイズを返します。
func (cs *ChunkStep[I, O]) ChunkSize() int {
	return cs.chunkSize
}

// Execute はストリームが尽きるか、停止が要求されるか、致命的なエラーが発生するまでチャンクを実行します。
// stepExecution の ExecutionContext に保存されたカーソルがあれば、そこから再開します。
// 停止した場合は nil を返し、stepExecution の状態が STOPPED になります。
func (cs *ChunkStep[I, O]) Execute(ctx context.Context, jobExecution *core.JobExecution, stepExecution *core.StepExecution) error {
	logger.Infof("ステップ '%s' の実行を開始します。チャンクサイズ: %d", cs.name, cs.chunkSize)

	for _, l := range cs.stepListeners {
		l.BeforeStep(ctx, stepExecution)
	}
	defer func() {
		for _, l := range cs.stepListeners {
			l.AfterStep(ctx, stepExecution)
		}
		logger.Infof("ステップ '%s' の実行が完了しました。ステータス: %s, 終了ステータス: %s", cs.name, stepExecution.Status, stepExecution.ExitStatus)
	}()

	stepExecution.MarkAsExecuting()
	if stepExecution.ExecutionContext == nil {
		stepExecution.ExecutionContext = core.NewExecutionContext()
	}

	if err := cs.open(ctx, stepExecution.ExecutionContext); err != nil {
		stepExecution.MarkAsFailed(err)
		return err
	}
	defer cs.close(ctx)

	executor := &chunkExecutor[I, O]{step: cs, stepExecution: stepExecution}
	// 実行中のチャンクはキャンセルされず、コミットまたはロールバックまで完了させる
	chunkCtx := context.WithoutCancel(ctx)

	for {
		if stopRequested(ctx, jobExecution) {
			logger.Warnf("ステップ '%s' に停止が要求されました。チャンク境界で停止します。", cs.name)
			stepExecution.MarkAsStopped(nil)
			return nil
		}

		exhausted, err := executor.execute(chunkCtx)
		if err != nil {
			logger.Errorf("ステップ '%s' が失敗しました: %v", cs.name, err)
			stepExecution.MarkAsFailed(err)
			return err
		}
		if exhausted {
			stepExecution.MarkAsCompleted()
			return nil
		}
	}
}

func stopRequested(ctx context.Context, jobExecution *core.JobExecution) bool {
	if ctx.Err() != nil {
		return true
	}
	return jobExecution != nil && jobExecution.IsStopRequested()
}

func (cs *ChunkStep[I, O]) open(ctx context.Context, ec core.ExecutionContext) error {
	if err := cs.reader.Open(ctx, ec); err != nil {
		return asKind(err, exception.KindRead, "chunk_step", "ItemReader のオープンに失敗しました", false)
	}
	if err := cs.writer.Open(ctx, ec); err != nil {
		if cerr := cs.reader.Close(ctx); cerr != nil {
			logger.Warnf("ItemReader のクローズに失敗しました: %v", cerr)
		}
		return asKind(err, exception.KindWrite, "chunk_step", "ItemWriter のオープンに失敗しました", false)
	}
	return nil
}

func (cs *ChunkStep[I, O]) close(ctx context.Context) {
	if err := cs.reader.Close(ctx); err != nil {
		logger.Warnf("ステップ '%s': ItemReader のクローズに失敗しました: %v", cs.name, err)
	}
	if err := cs.writer.Close(ctx); err != nil {
		logger.Warnf("ステップ '%s': ItemWriter のクローズに失敗しました: %v", cs.name, err)
	}
}

// identityProcessor は型変換のみを行う ItemProcessor です。
type identityProcessor[I, O any] struct{}

func (identityProcessor[I, O]) Process(_ context.Context, item I) (O, error) {
	out, ok := any(item).(O)
	if !ok {
		var zero O
		return zero, exception.NewProcessError("chunk_step", fmt.Sprintf("アイテム %T を出力型に変換できません", item), nil, false, false)
	}
	return out, nil
}

var _ core.Step = (*ChunkStep[any, any])(nil)
