package writer

import (
	"context"
	"fmt"

	"batchprocessing/pkg/batch/database"
	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/transaction"
	"batchprocessing/pkg/batch/util/exception"
)

// ArgsMapper はアイテムを SQL 文のパラメータに変換します。
type ArgsMapper[T any] func(item T) []any

// SQLWriter はアイテムごとにパラメータ化された SQL 文をチャンクのトランザクション内で実行する ItemWriter です。
type SQLWriter[T any] struct {
	query   string
	mapArgs ArgsMapper[T]
}

// NewSQLWriter は新しい SQLWriter を作成します。
// query のプレースホルダは "?" で記述し、dialect に合わせて変換されます。
func NewSQLWriter[T any](dialect, query string, mapArgs ArgsMapper[T]) *SQLWriter[T] {
	return &SQLWriter[T]{query: database.Rebind(dialect, query), mapArgs: mapArgs}
}

func (w *SQLWriter[T]) Open(context.Context, core.ExecutionContext) error   { return nil }
func (w *SQLWriter[T]) Update(context.Context, core.ExecutionContext) error { return nil }
func (w *SQLWriter[T]) Close(context.Context) error                         { return nil }

// Write は tx のデータベーストランザクションで各アイテムの SQL 文を実行します。
func (w *SQLWriter[T]) Write(ctx context.Context, tx transaction.Tx, items []T) error {
	sqlTx := tx.SQL()
	if sqlTx == nil {
		return exception.NewWriteError("sql_writer", "SQLWriter にはデータベーストランザクションが必要です", nil, false, false)
	}
	for i, item := range items {
		if _, err := sqlTx.ExecContext(ctx, w.query, w.mapArgs(item)...); err != nil {
			return exception.NewWriteError("sql_writer", fmt.Sprintf("チャンク内 %d 件目の書き込みに失敗しました", i+1), err, false, true)
		}
	}
	return nil
}

var _ core.ItemWriter[string] = (*SQLWriter[string])(nil)
