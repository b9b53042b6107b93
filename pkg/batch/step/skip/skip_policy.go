// Package skip はアイテムレベルのスキップ判定を提供します。
package skip

import (
	"batchprocessing/pkg/batch/config"
	"batchprocessing/pkg/batch/util/exception"
	"batchprocessing/pkg/batch/util/logger"
)

// Policy はエラーが発生したアイテムをスキップできるかを判定します。
type Policy interface {
	// ShouldSkip は err をスキップしてよいかを返します。
	// skipCount はステップでこれまでにスキップした件数です。
	// スキップ可能だが上限に達している場合は SkipLimitExceeded エラーを返します。
	ShouldSkip(err error, skipCount int) (bool, error)
	// IsSkippable は err がスキップ対象かを返します。上限は考慮しません。
	IsSkippable(err error) bool
}

// LimitCheckingPolicy は対象のエラー種別とスキップ上限でスキップを判定する Policy です。
type LimitCheckingPolicy struct {
	limit int
	kinds map[exception.ErrorKind]bool
}

// NewLimitCheckingPolicy は新しい LimitCheckingPolicy を作成します。
// kinds が空の場合、エラー自身のスキップ可能フラグのみで判定します。
func NewLimitCheckingPolicy(limit int, kinds ...exception.ErrorKind) *LimitCheckingPolicy {
	p := &LimitCheckingPolicy{limit: limit, kinds: make(map[exception.ErrorKind]bool, len(kinds))}
	for _, k := range kinds {
		p.kinds[k] = true
	}
	return p
}

// NewPolicyFromConfig は設定から Policy を作成します。未知のエラー種別は無視されます。
// スキップ上限が0以下の場合はスキップしません。
func NewPolicyFromConfig(cfg config.ItemSkipConfig) Policy {
	kinds := make([]exception.ErrorKind, 0, len(cfg.SkippableExceptions))
	for _, name := range cfg.SkippableExceptions {
		kind, ok := exception.ParseErrorKind(name)
		if !ok {
			logger.Warnf("未知のエラー種別がスキップ対象に指定されています: %s", name)
			continue
		}
		kinds = append(kinds, kind)
	}
	if cfg.SkipLimit <= 0 {
		return NeverSkipPolicy()
	}
	return NewLimitCheckingPolicy(cfg.SkipLimit, kinds...)
}

// Limit はスキップ上限を返します。
func (p *LimitCheckingPolicy) Limit() int {
	return p.limit
}

// IsSkippable はエラーの種別とフラグからスキップ対象かを判定します。上限は考慮しません。
func (p *LimitCheckingPolicy) IsSkippable(err error) bool {
	if err == nil || !exception.IsSkippable(err) {
		return false
	}
	if len(p.kinds) == 0 {
		return true
	}
	return p.kinds[exception.KindOf(err)]
}

// ShouldSkip は Policy インターフェースの実装です。
func (p *LimitCheckingPolicy) ShouldSkip(err error, skipCount int) (bool, error) {
	if !p.IsSkippable(err) {
		return false, nil
	}
	if skipCount >= p.limit {
		return false, exception.NewSkipLimitExceededError("skip_policy", p.limit, err)
	}
	return true, nil
}

type neverSkip struct{}

// NeverSkipPolicy はどのエラーもスキップしない Policy を返します。エラーはそのままステップを失敗させます。
func NeverSkipPolicy() Policy {
	return neverSkip{}
}

func (neverSkip) ShouldSkip(error, int) (bool, error) {
	return false, nil
}

func (neverSkip) IsSkippable(error) bool {
	return false
}

var (
	_ Policy = (*LimitCheckingPolicy)(nil)
	_ Policy = neverSkip{}
)
