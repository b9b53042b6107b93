// Package reader は ItemReader の実装を提供します。
package reader

import (
	"context"
	"io"
	"sync"

	core "batchprocessing/pkg/batch/job/core"
)

// SliceReader はメモリ上のスライスからアイテムを順に読み込む ItemReader です。
// 読み込み位置は ExecutionContext の "<name>.read.count" に保存されます。
type SliceReader[T any] struct {
	name  string
	items []T

	mu  sync.Mutex
	pos int
}

// NewSliceReader は新しい SliceReader を作成します。
func NewSliceReader[T any](name string, items []T) *SliceReader[T] {
	return &SliceReader[T]{name: name, items: items}
}

func (r *SliceReader[T]) key() string {
	return r.name + ".read.count"
}

// Open は ExecutionContext から読み込み位置を復元します。
func (r *SliceReader[T]) Open(_ context.Context, ec core.ExecutionContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pos = 0
	if v, ok := ec.GetInt64(r.key()); ok && v > 0 {
		r.pos = min(int(v), len(r.items))
	}
	return nil
}

// Read は次のアイテムを返します。終端では io.EOF を返します。
func (r *SliceReader[T]) Read(_ context.Context) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pos >= len(r.items) {
		var zero T
		return zero, io.EOF
	}
	item := r.items[r.pos]
	r.pos++
	return item, nil
}

// Update は現在の読み込み位置を ExecutionContext に保存します。
func (r *SliceReader[T]) Update(_ context.Context, ec core.ExecutionContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ec.Put(r.key(), int64(r.pos))
	return nil
}

func (r *SliceReader[T]) Close(context.Context) error {
	return nil
}

var _ core.ItemReader[string] = (*SliceReader[string])(nil)
