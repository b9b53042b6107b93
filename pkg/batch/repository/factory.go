package repository

import (
	"context"
	"fmt"
	"strings"

	"batchprocessing/pkg/batch/config"
	"batchprocessing/pkg/batch/database"
	"batchprocessing/pkg/batch/database/connector"
	"batchprocessing/pkg/batch/repository/migrations"
	"batchprocessing/pkg/batch/util/exception"
	"batchprocessing/pkg/batch/util/logger"
)

// NewRunRegistry は設定に基づいて RunRegistry を作成します。
// 返される close 関数は、レジストリが使用するデータベース接続を解放します。
func NewRunRegistry(ctx context.Context, cfg *config.Config) (RunRegistry, func() error, error) {
	switch cfg.Registry.Type {
	case "", "memory":
		logger.Debugf("MemoryRunRegistry を使用します。")
		return NewMemoryRunRegistry(), func() error { return nil }, nil
	case "sql":
	default:
		return nil, nil, exception.NewConfigurationError("repository_factory", fmt.Sprintf("未対応の registry.type です: %s", cfg.Registry.Type))
	}

	dbType := strings.ToLower(cfg.Database.Type)
	if cfg.Registry.Migrate {
		dir, ok := migrations.Dir(dbType)
		if !ok {
			return nil, nil, exception.NewConfigurationError("repository_factory", fmt.Sprintf("データベースタイプ '%s' のマイグレーションはサポートされていません", cfg.Database.Type))
		}
		if err := database.RunMigrations(dbType, cfg.Database.ConnectionString(), migrations.FS, dir); err != nil {
			return nil, nil, err
		}
	}

	db, err := connector.NewDBConnectionFromConfig(ctx, cfg.Database)
	if err != nil {
		return nil, nil, exception.NewRepositoryError("repository_factory", fmt.Sprintf("Run Registry 用のデータベース接続確立に失敗しました (Type: %s)", cfg.Database.Type), err)
	}
	logger.Debugf("SQLRunRegistry を使用します。(Type: %s)", dbType)
	return NewSQLRunRegistry(db), db.Close, nil
}
