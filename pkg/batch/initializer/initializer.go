// Package initializer はバッチアプリケーションの共通の初期化処理を提供します。
package initializer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"batchprocessing/pkg/batch/config"
	"batchprocessing/pkg/batch/database"
	"batchprocessing/pkg/batch/database/connector"
	"batchprocessing/pkg/batch/job/joblauncher"
	"batchprocessing/pkg/batch/job/joboperator"
	"batchprocessing/pkg/batch/repository"
	"batchprocessing/pkg/batch/util/exception"
	"batchprocessing/pkg/batch/util/logger"
)

const (
	defaultConnectRetries    = 10
	defaultConnectRetryDelay = 5 * time.Second
)

// BatchInitializer はバッチアプリケーションの初期化処理を担当します。
// Initialize の後、JobOperator にジョブを登録して実行します。
type BatchInitializer struct {
	Config      *config.Config
	Registry    repository.RunRegistry
	JobLauncher *joblauncher.SimpleJobLauncher
	JobOperator *joboperator.DefaultJobOperator

	// ConnectRetries はソースデータベースへの接続の最大試行回数です。
	ConnectRetries int
	// ConnectRetryDelay は接続の再試行までの待機時間です。
	ConnectRetryDelay time.Duration

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// NewBatchInitializer は新しい BatchInitializer のインスタンスを作成します。
func NewBatchInitializer(cfg *config.Config) *BatchInitializer {
	return &BatchInitializer{
		Config:            cfg,
		ConnectRetries:    defaultConnectRetries,
		ConnectRetryDelay: defaultConnectRetryDelay,
	}
}

// Initialize はロギングを設定し、Run Registry、JobLauncher、JobOperator を生成します。
func (bi *BatchInitializer) Initialize(ctx context.Context) error {
	logger.SetLogLevel(bi.Config.System.Logging.Level)
	logger.SetFormat(bi.Config.System.Logging.Format)
	logger.Infof("ロギングレベルを '%s' に設定しました。", bi.Config.System.Logging.Level)

	registry, closeRegistry, err := repository.NewRunRegistry(ctx, bi.Config)
	if err != nil {
		return exception.NewBatchError("initializer", "Run Registry の生成に失敗しました", err, false, false)
	}
	bi.Registry = registry
	bi.closers = append(bi.closers, namedCloser{"Run Registry", closeRegistry})
	logger.Infof("Run Registry (Type: %s) を生成しました。", bi.Config.Registry.Type)

	bi.JobLauncher = joblauncher.NewSimpleJobLauncher(registry)
	bi.JobOperator = joboperator.NewDefaultJobOperator(bi.JobLauncher, registry)
	logger.Debugf("DefaultJobOperator を生成しました。")
	return nil
}

// ConnectSource は読み込み元データベースにリトライ付きで接続します。
// 接続は Close で閉じられます。
func (bi *BatchInitializer) ConnectSource(ctx context.Context) (database.DBConnection, error) {
	db, err := connectWithRetry(ctx, bi.Config.Database, bi.ConnectRetries, bi.ConnectRetryDelay)
	if err != nil {
		return nil, exception.NewBatchError("initializer", "データベースへの接続に失敗しました", err, false, false)
	}
	bi.closers = append(bi.closers, namedCloser{"ソースデータベース接続", db.Close})
	return db, nil
}

// connectWithRetry は指定されたデータベースにリトライ付きで接続を試みます。
func connectWithRetry(ctx context.Context, cfg config.DatabaseConfig, maxRetries int, delay time.Duration) (database.DBConnection, error) {
	var lastErr error
	for i := 0; i < max(maxRetries, 1); i++ {
		logger.Debugf("データベース接続を試行中 (試行 %d/%d)...", i+1, maxRetries)
		db, err := connector.NewDBConnectionFromConfig(ctx, cfg)
		if err == nil {
			logger.Infof("データベース接続に成功しました。(Type: %s)", cfg.Type)
			return db, nil
		}
		lastErr = err
		if !exception.IsRetryable(err) {
			return nil, err
		}
		logger.Warnf("データベースへの接続に失敗しました: %v", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("データベースへの接続に最大試行回数 (%d) 失敗しました: %w", maxRetries, lastErr)
}

// Close は BatchInitializer が保持するリソースを生成と逆順に解放します。
func (bi *BatchInitializer) Close() error {
	var errs []error
	for i := len(bi.closers) - 1; i >= 0; i-- {
		c := bi.closers[i]
		if err := c.close(); err != nil {
			logger.Errorf("%s のクローズに失敗しました: %v", c.name, err)
			errs = append(errs, fmt.Errorf("%s クローズエラー: %w", c.name, err))
			continue
		}
		logger.Debugf("%s を正常にクローズしました。", c.name)
	}
	bi.closers = nil
	return errors.Join(errs...)
}
