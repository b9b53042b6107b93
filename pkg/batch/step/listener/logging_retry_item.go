package listener

import (
	"context"

	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/util/exception"
	"batchprocessing/pkg/batch/util/logger"
)

// LoggingRetryItemListener はリトライ対象になったエラーを種別とともにログ出力します。
type LoggingRetryItemListener struct{}

// NewLoggingRetryItemListener は新しい LoggingRetryItemListener を作成します。
func NewLoggingRetryItemListener() *LoggingRetryItemListener {
	return &LoggingRetryItemListener{}
}

func (l *LoggingRetryItemListener) OnRetryRead(_ context.Context, err error) {
	logger.Warnf("[%s] 読み込みをリトライします: %v", exception.KindOf(err), err)
}

func (l *LoggingRetryItemListener) OnRetryProcess(_ context.Context, item interface{}, err error) {
	logger.Warnf("[%s] 処理をリトライします (アイテム: %+v): %v", exception.KindOf(err), item, err)
}

// OnRetryWrite はチャンク全体の書き込みをリトライする前に呼び出されます。
func (l *LoggingRetryItemListener) OnRetryWrite(_ context.Context, items []interface{}, err error) {
	logger.Warnf("[%s] %d 件のチャンク書き込みをリトライします: %v", exception.KindOf(err), len(items), err)
}

var _ core.RetryItemListener = (*LoggingRetryItemListener)(nil)
