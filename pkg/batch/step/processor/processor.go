// Package processor は ItemProcessor の汎用実装を提供します。
package processor

import (
	"context"
	"errors"

	core "batchprocessing/pkg/batch/job/core"
)

// PassThrough はアイテムを変更せずに返す ItemProcessor です。
type PassThrough[T any] struct{}

func (PassThrough[T]) Process(_ context.Context, item T) (T, error) {
	return item, nil
}

// Func は関数を ItemProcessor として扱うアダプタです。
// core.ErrFiltered を返すとアイテムは除外されます。
type Func[I, O any] func(ctx context.Context, item I) (O, error)

func (f Func[I, O]) Process(ctx context.Context, item I) (O, error) {
	return f(ctx, item)
}

// Filter は keep が false を返したアイテムを除外する ItemProcessor を返します。
func Filter[T any](keep func(T) bool) Func[T, T] {
	return func(_ context.Context, item T) (T, error) {
		if !keep(item) {
			var zero T
			return zero, core.ErrFiltered
		}
		return item, nil
	}
}

// Composite は複数の ItemProcessor を順に適用します。
// いずれかがアイテムを除外するかエラーを返した時点で終了します。
type Composite[T any] struct {
	delegates []core.ItemProcessor[T, T]
}

// NewComposite は新しい Composite を作成します。
func NewComposite[T any](delegates ...core.ItemProcessor[T, T]) *Composite[T] {
	return &Composite[T]{delegates: delegates}
}

func (c *Composite[T]) Process(ctx context.Context, item T) (T, error) {
	var err error
	for _, d := range c.delegates {
		item, err = d.Process(ctx, item)
		if err != nil {
			if errors.Is(err, core.ErrFiltered) {
				var zero T
				return zero, err
			}
			return item, err
		}
	}
	return item, nil
}

// Chain は型の異なる2つの ItemProcessor を連結します。
func Chain[I, M, O any](first core.ItemProcessor[I, M], second core.ItemProcessor[M, O]) Func[I, O] {
	return func(ctx context.Context, item I) (O, error) {
		mid, err := first.Process(ctx, item)
		if err != nil {
			var zero O
			return zero, err
		}
		return second.Process(ctx, mid)
	}
}

var (
	_ core.ItemProcessor[string, string] = PassThrough[string]{}
	_ core.ItemProcessor[string, int]    = Func[string, int](nil)
	_ core.ItemProcessor[string, string] = (*Composite[string])(nil)
)
