package listener

import (
	"context"

	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/util/exception"
	"batchprocessing/pkg/batch/util/logger"
)

// LoggingSkipListener はスキップされたアイテムをエラー種別とともにログ出力します。
type LoggingSkipListener struct{}

// NewLoggingSkipListener は新しい LoggingSkipListener を作成します。
func NewLoggingSkipListener() *LoggingSkipListener {
	return &LoggingSkipListener{}
}

func (l *LoggingSkipListener) OnSkipRead(_ context.Context, err error) {
	logSkip("読み込み", nil, err)
}

func (l *LoggingSkipListener) OnSkipProcess(_ context.Context, item interface{}, err error) {
	logSkip("処理", item, err)
}

// OnSkipWrite はチャンクがコミットされた後、書き込みから除外されたアイテムごとに呼び出されます。
func (l *LoggingSkipListener) OnSkipWrite(_ context.Context, item interface{}, err error) {
	logSkip("書き込み", item, err)
}

func logSkip(stage string, item interface{}, err error) {
	if item == nil {
		logger.Warnf("[%s] %sでスキップしました: %v", exception.KindOf(err), stage, err)
		return
	}
	logger.Warnf("[%s] %sでスキップしました (アイテム: %+v): %v", exception.KindOf(err), stage, item, err)
}

var _ core.SkipListener = (*LoggingSkipListener)(nil)
