package writer

import (
	"context"
	"slices"
	"sync"

	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/transaction"
)

// ListWriter はコミットされたアイテムをメモリ上に蓄積する ItemWriter です。
// 後続の処理や検証でステップの出力を参照する場合に使用します。
type ListWriter[T any] struct {
	mu    sync.Mutex
	items []T
}

// NewListWriter は新しい ListWriter を作成します。
func NewListWriter[T any]() *ListWriter[T] {
	return &ListWriter[T]{}
}

func (w *ListWriter[T]) Open(context.Context, core.ExecutionContext) error   { return nil }
func (w *ListWriter[T]) Update(context.Context, core.ExecutionContext) error { return nil }
func (w *ListWriter[T]) Close(context.Context) error                         { return nil }

// Write はアイテムを保留し、トランザクションのコミット時に反映します。
func (w *ListWriter[T]) Write(_ context.Context, tx transaction.Tx, items []T) error {
	if len(items) == 0 {
		return nil
	}
	tx.RegisterSynchronization(&listSync[T]{w: w, items: slices.Clone(items)})
	return nil
}

// Items はコミット済みのアイテムのコピーを返します。
func (w *ListWriter[T]) Items() []T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.items)
}

type listSync[T any] struct {
	w       *ListWriter[T]
	items   []T
	from    int
	applied bool
}

func (s *listSync[T]) BeforeCommit(context.Context) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.from = len(s.w.items)
	s.w.items = append(s.w.items, s.items...)
	s.applied = true
	return nil
}

// AfterRollback はコミット前処理の後にコミットが失敗した場合、反映済みのアイテムを取り消します。
func (s *listSync[T]) AfterRollback(context.Context) {
	if !s.applied {
		return
	}
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.items = s.w.items[:s.from]
	s.applied = false
}

var _ core.ItemWriter[string] = (*ListWriter[string])(nil)
