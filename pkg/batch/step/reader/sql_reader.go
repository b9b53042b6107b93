package reader

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"batchprocessing/pkg/batch/database"
	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/util/exception"
	"batchprocessing/pkg/batch/util/logger"
)

// RowMapper は現在の行をアイテムに変換します。rows.Next の呼び出しは SQLReader が行います。
type RowMapper[T any] func(rows *sql.Rows) (T, error)

// SQLReader はクエリ結果をカーソルで1行ずつ読み込む ItemReader です。
// 再起動時は ExecutionContext に保存されたコミット済み件数だけ行を読み飛ばします。
type SQLReader[T any] struct {
	name   string
	db     database.DBConnection
	query  string
	args   []any
	mapRow RowMapper[T]

	rows  *sql.Rows
	count int64
}

// NewSQLReader は新しい SQLReader を作成します。
// query のプレースホルダは "?" で記述し、接続先の方言に合わせて変換されます。
func NewSQLReader[T any](name string, db database.DBConnection, query string, mapRow RowMapper[T], args ...any) *SQLReader[T] {
	return &SQLReader[T]{
		name:   name,
		db:     db,
		query:  database.Rebind(db.Dialect(), query),
		args:   args,
		mapRow: mapRow,
	}
}

func (r *SQLReader[T]) key() string {
	return r.name + ".read.count"
}

// Open はクエリを実行し、保存された位置までカーソルを進めます。
func (r *SQLReader[T]) Open(ctx context.Context, ec core.ExecutionContext) error {
	rows, err := r.db.QueryContext(ctx, r.query, r.args...)
	if err != nil {
		return exception.NewReadError("sql_reader", fmt.Sprintf("クエリの実行に失敗しました: %s", r.query), err, false, false)
	}
	r.rows = rows
	r.count = 0

	restart, _ := ec.GetInt64(r.key())
	for r.count < restart {
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return exception.NewReadError("sql_reader", "再開位置への移動に失敗しました", err, false, false)
			}
			break
		}
		r.count++
	}
	if restart > 0 {
		logger.Infof("SQLReader '%s': %d 件目から読み込みを再開します。", r.name, r.count)
	}
	return nil
}

// Read は次の行をアイテムに変換して返します。
// 変換に失敗した行はスキップ可能な ReadError になります。
func (r *SQLReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if r.rows == nil {
		return zero, exception.NewReadError("sql_reader", "SQLReader がオープンされていません", nil, false, false)
	}
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return zero, exception.NewReadError("sql_reader", "行の読み込みに失敗しました", err, false, false)
		}
		return zero, io.EOF
	}
	r.count++
	item, err := r.mapRow(r.rows)
	if err != nil {
		return zero, exception.NewReadError("sql_reader", fmt.Sprintf("%d 行目の変換に失敗しました", r.count), err, false, true)
	}
	return item, nil
}

// Update は読み込み済みの行数を ExecutionContext に保存します。
func (r *SQLReader[T]) Update(_ context.Context, ec core.ExecutionContext) error {
	ec.Put(r.key(), r.count)
	return nil
}

// Close はカーソルを閉じます。
func (r *SQLReader[T]) Close(context.Context) error {
	if r.rows == nil {
		return nil
	}
	err := r.rows.Close()
	r.rows = nil
	return err
}

var _ core.ItemReader[string] = (*SQLReader[string])(nil)
