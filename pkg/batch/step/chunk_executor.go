package step

import (
	"context"
	"errors"
	"io"

	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/step/retry"
	"batchprocessing/pkg/batch/util/exception"
	"batchprocessing/pkg/batch/util/logger"
)

// chunkCounts は1チャンク分の件数です。コミットされた場合のみ StepExecution に加算されます。
type chunkCounts struct {
	read        int
	write       int
	filter      int
	skipRead    int
	skipProcess int
	skipWrite   int
}

func (c chunkCounts) skips() int {
	return c.skipRead + c.skipProcess + c.skipWrite
}

// chunkExecutor は ChunkStep の1チャンク分の読み込み・処理・書き込みを実行します。
type chunkExecutor[I, O any] struct {
	step          *ChunkStep[I, O]
	stepExecution *core.StepExecution
}

// execute は1チャンクを実行し、ストリームが尽きたかどうかを返します。
// 1件も読み込めなかった場合はチャンクを実行せずに true を返します。
// スキップされた読み込みもチャンクの1枠を消費します。
func (c *chunkExecutor[I, O]) execute(ctx context.Context) (bool, error) {
	var counts chunkCounts
	items := make([]O, 0, c.step.chunkSize)
	attempts := 0
	exhausted := false

	for attempts < c.step.chunkSize {
		item, err := c.read(ctx)
		if errors.Is(err, io.EOF) {
			exhausted = true
			break
		}
		if attempts == 0 {
			for _, l := range c.step.chunkListeners {
				l.BeforeChunk(ctx, c.stepExecution)
			}
		}
		attempts++

		if err != nil {
			if err := c.skip(err, counts); err != nil {
				return false, c.fail(ctx, err)
			}
			counts.skipRead++
			for _, l := range c.step.skipListeners {
				l.OnSkipRead(ctx, err)
			}
			continue
		}
		counts.read++

		out, err := c.process(ctx, item)
		if errors.Is(err, core.ErrFiltered) {
			counts.filter++
			continue
		}
		if err != nil {
			if err := c.skip(err, counts); err != nil {
				return false, c.fail(ctx, err)
			}
			counts.skipProcess++
			for _, l := range c.step.skipListeners {
				l.OnSkipProcess(ctx, item, err)
			}
			continue
		}
		items = append(items, out)
	}

	if attempts == 0 {
		return true, nil
	}

	// 全件が除外された場合も書き込みを呼び出す
	if err := c.write(ctx, items, &counts); err != nil {
		return false, c.fail(ctx, err)
	}
	c.apply(counts)

	ec := c.stepExecution.ExecutionContext
	if err := c.step.reader.Update(ctx, ec); err != nil {
		return false, c.fail(ctx, asKind(err, exception.KindRead, "chunk_step", "ItemReader の状態保存に失敗しました", false))
	}
	if err := c.step.writer.Update(ctx, ec); err != nil {
		return false, c.fail(ctx, asKind(err, exception.KindWrite, "chunk_step", "ItemWriter の状態保存に失敗しました", false))
	}

	for _, l := range c.step.chunkListeners {
		l.AfterChunk(ctx, c.stepExecution)
	}
	return exhausted, nil
}

func (c *chunkExecutor[I, O]) read(ctx context.Context) (I, error) {
	var item I
	err := retry.Do(ctx, c.step.retryPolicy, func() error {
		var err error
		item, err = c.step.reader.Read(ctx)
		if err != nil && !errors.Is(err, io.EOF) {
			return asKind(err, exception.KindRead, "chunk_step", "アイテムの読み込みに失敗しました", true)
		}
		return err
	}, func(err error, attempt int) {
		logger.Warnf("アイテム読み込みエラー (リトライします): %v (試行回数: %d)", err, attempt)
		for _, l := range c.step.retryListeners {
			l.OnRetryRead(ctx, err)
		}
	})
	return item, err
}

func (c *chunkExecutor[I, O]) process(ctx context.Context, item I) (O, error) {
	var out O
	err := retry.Do(ctx, c.step.retryPolicy, func() error {
		var err error
		out, err = c.step.processor.Process(ctx, item)
		if err != nil && !errors.Is(err, core.ErrFiltered) {
			return asKind(err, exception.KindProcess, "chunk_step", "アイテムの処理に失敗しました", true)
		}
		return err
	}, func(err error, attempt int) {
		logger.Warnf("アイテム処理エラー (リトライします): %v (試行回数: %d)", err, attempt)
		for _, l := range c.step.retryListeners {
			l.OnRetryProcess(ctx, item, err)
		}
	})
	return out, err
}

// write はチャンクを1トランザクションで書き込みます。
// リトライできず、スキップ対象のエラーの場合は scan で失敗したアイテムのみを除いて書き込み直します。
// この時点ではスキップ件数を消費しません。
func (c *chunkExecutor[I, O]) write(ctx context.Context, items []O, counts *chunkCounts) error {
	err := retry.Do(ctx, c.step.retryPolicy, func() error {
		return c.writeInTx(ctx, items)
	}, func(err error, attempt int) {
		logger.Warnf("チャンク書き込みエラー (リトライします): %v (試行回数: %d)", err, attempt)
		for _, l := range c.step.retryListeners {
			l.OnRetryWrite(ctx, toInterfaceSlice(items), err)
		}
	})
	if err == nil {
		counts.write += len(items)
		return nil
	}
	if len(items) == 0 || !c.step.skipPolicy.IsSkippable(err) {
		return err
	}
	return c.scan(ctx, items, counts)
}

type skippedWrite[O any] struct {
	item O
	err  error
}

// scan はアイテムを1件ずつ試し書きして失敗するアイテムを特定し、残りを1トランザクションで書き込みます。
// 試し書きはすべてロールバックされるため、途中でスキップ上限を超えた場合もチャンクのアイテムはシンクに残りません。
func (c *chunkExecutor[I, O]) scan(ctx context.Context, items []O, counts *chunkCounts) error {
	logger.Warnf("ステップ '%s': チャンクの書き込みに失敗したため、%d 件を1件ずつ確認します。", c.step.name, len(items))
	survivors := make([]O, 0, len(items))
	var skipped []skippedWrite[O]
	for _, item := range items {
		err := c.tryWrite(ctx, item)
		if err == nil {
			survivors = append(survivors, item)
			continue
		}
		if err := c.skip(err, *counts); err != nil {
			return err
		}
		counts.skipWrite++
		skipped = append(skipped, skippedWrite[O]{item: item, err: err})
	}

	if err := c.writeInTx(ctx, survivors); err != nil {
		return err
	}
	counts.write += len(survivors)
	for _, s := range skipped {
		for _, l := range c.step.skipListeners {
			l.OnSkipWrite(ctx, s.item, s.err)
		}
	}
	return nil
}

// tryWrite は1件をトランザクション内で書き込み、結果に関わらずロールバックします。
func (c *chunkExecutor[I, O]) tryWrite(ctx context.Context, item O) error {
	tx, err := c.step.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	werr := c.step.writer.Write(ctx, tx, []O{item})
	if rbErr := tx.Rollback(ctx); rbErr != nil {
		logger.Errorf("ステップ '%s': 試し書きのロールバックに失敗しました: %v", c.step.name, rbErr)
	}
	if werr != nil {
		c.stepExecution.RollbackCount++
		return asKind(werr, exception.KindWrite, "chunk_step", "アイテムの書き込みに失敗しました", true)
	}
	return nil
}

func (c *chunkExecutor[I, O]) writeInTx(ctx context.Context, items []O) error {
	tx, err := c.step.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	if err := c.step.writer.Write(ctx, tx, items); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logger.Errorf("ステップ '%s': ロールバックに失敗しました: %v", c.step.name, rbErr)
		}
		c.stepExecution.RollbackCount++
		return asKind(err, exception.KindWrite, "chunk_step", "チャンクの書き込みに失敗しました", true)
	}
	if err := tx.Commit(ctx); err != nil {
		c.stepExecution.RollbackCount++
		return err
	}
	c.stepExecution.CommitCount++
	return nil
}

// skip はスキップポリシーに問い合わせ、スキップできない場合はステップを失敗させるエラーを返します。
func (c *chunkExecutor[I, O]) skip(err error, counts chunkCounts) error {
	ok, limitErr := c.step.skipPolicy.ShouldSkip(err, c.stepExecution.SkipCount()+counts.skips())
	if limitErr != nil {
		return limitErr
	}
	if !ok {
		return err
	}
	logger.Warnf("ステップ '%s': アイテムをスキップします: %v", c.step.name, err)
	return nil
}

func (c *chunkExecutor[I, O]) apply(counts chunkCounts) {
	se := c.stepExecution
	se.ReadCount += counts.read
	se.WriteCount += counts.write
	se.FilterCount += counts.filter
	se.SkipReadCount += counts.skipRead
	se.SkipProcessCount += counts.skipProcess
	se.SkipWriteCount += counts.skipWrite
}

func (c *chunkExecutor[I, O]) fail(ctx context.Context, err error) error {
	for _, l := range c.step.chunkListeners {
		l.AfterChunkError(ctx, c.stepExecution, err)
	}
	return err
}

// asKind は分類を持たないエラーを指定された分類の BatchError でラップします。
// 既に分類を持つエラーはそのまま返します。
func asKind(err error, kind exception.ErrorKind, module, message string, skippable bool) error {
	if exception.KindOf(err) != exception.KindUnknown {
		return err
	}
	var be *exception.BatchError
	if errors.As(err, &be) {
		return exception.NewBatchError(module, message, err, be.IsRetryable(), be.IsSkippable()).WithKind(kind)
	}
	return exception.NewBatchError(module, message, err, false, skippable).WithKind(kind)
}

func toInterfaceSlice[T any](items []T) []interface{} {
	out := make([]interface{}, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}
