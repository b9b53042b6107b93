// Package retry はアイテムレベルのリトライ判定を提供します。
package retry

import (
	"context"
	"time"

	"batchprocessing/pkg/batch/config"
	"batchprocessing/pkg/batch/util/exception"
	"batchprocessing/pkg/batch/util/logger"
)

// Policy はエラーが発生した操作を再試行するかを判定します。
type Policy interface {
	// CanRetry は attempt 回目の試行で発生した err を再試行してよいかを返します。attempt は 1 始まりです。
	CanRetry(err error, attempt int) bool
	// Backoff は再試行前の待機時間を返します。
	Backoff(attempt int) time.Duration
}

// SimplePolicy は最大試行回数と固定間隔による Policy です。
type SimplePolicy struct {
	maxAttempts int
	interval    time.Duration
	kinds       map[exception.ErrorKind]bool
}

// NewSimplePolicy は新しい SimplePolicy を作成します。
// maxAttempts は初回を含む試行回数です。kinds が空の場合、エラー自身のリトライ可能フラグのみで判定します。
func NewSimplePolicy(maxAttempts int, interval time.Duration, kinds ...exception.ErrorKind) *SimplePolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	p := &SimplePolicy{maxAttempts: maxAttempts, interval: interval, kinds: make(map[exception.ErrorKind]bool, len(kinds))}
	for _, k := range kinds {
		p.kinds[k] = true
	}
	return p
}

// NewPolicyFromConfig は設定から SimplePolicy を作成します。未知のエラー種別は無視されます。
func NewPolicyFromConfig(cfg config.ItemRetryConfig) *SimplePolicy {
	kinds := make([]exception.ErrorKind, 0, len(cfg.RetryableExceptions))
	for _, name := range cfg.RetryableExceptions {
		kind, ok := exception.ParseErrorKind(name)
		if !ok {
			logger.Warnf("未知のエラー種別がリトライ対象に指定されています: %s", name)
			continue
		}
		kinds = append(kinds, kind)
	}
	return NewSimplePolicy(cfg.MaxAttempts, time.Duration(cfg.InitialInterval)*time.Millisecond, kinds...)
}

// NoRetryPolicy は再試行しない Policy を返します。
func NoRetryPolicy() *SimplePolicy {
	return NewSimplePolicy(1, 0)
}

// MaxAttempts は初回を含む最大試行回数を返します。
func (p *SimplePolicy) MaxAttempts() int {
	return p.maxAttempts
}

// CanRetry は Policy インターフェースの実装です。
func (p *SimplePolicy) CanRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts || !exception.IsRetryable(err) {
		return false
	}
	if len(p.kinds) == 0 {
		return true
	}
	return p.kinds[exception.KindOf(err)]
}

// Backoff は Policy インターフェースの実装です。
func (p *SimplePolicy) Backoff(int) time.Duration {
	return p.interval
}

// Do は fn を実行し、policy が許す限り再試行します。
// onRetry は再試行の直前に呼び出されます。最後に発生したエラーを返します。
func Do(ctx context.Context, policy Policy, fn func() error, onRetry func(err error, attempt int)) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !policy.CanRetry(err, attempt) {
			return err
		}
		if onRetry != nil {
			onRetry(err, attempt)
		}
		if err := wait(ctx, policy.Backoff(attempt)); err != nil {
			return err
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Policy = (*SimplePolicy)(nil)
