package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"batchprocessing/pkg/batch/config"
	"batchprocessing/pkg/batch/database"
	"batchprocessing/pkg/batch/util/exception"
	"batchprocessing/pkg/batch/util/logger"
)

// DBConnector は特定のデータベースタイプへの接続を確立するためのインターフェースです。
type DBConnector interface {
	Connect(cfg config.DatabaseConfig) (*sql.DB, error)
}

var (
	mu         sync.RWMutex
	connectors = make(map[string]DBConnector)
)

// RegisterConnector は指定されたタイプ名でDBConnectorを登録します。
func RegisterConnector(dbType string, connector DBConnector) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := connectors[dbType]; exists {
		logger.Warnf("DBConnector '%s' は既に登録されています。上書きします。", dbType)
	}
	connectors[dbType] = connector
}

// GetSQLDB は設定に基づいて適切なデータベース接続を確立します。
func GetSQLDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	mu.RLock()
	connector, ok := connectors[strings.ToLower(cfg.Type)]
	mu.RUnlock()
	if !ok {
		return nil, exception.NewBatchError("database", fmt.Sprintf("未対応のデータベースタイプ: %s", cfg.Type), nil, false, false)
	}
	return connector.Connect(cfg)
}

// NewDBConnectionFromConfig は設定に基づいて接続を確立し、疎通を確認してから DBConnection として返します。
func NewDBConnectionFromConfig(ctx context.Context, cfg config.DatabaseConfig) (database.DBConnection, error) {
	rawDB, err := GetSQLDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := rawDB.PingContext(ctx); err != nil {
		rawDB.Close()
		return nil, exception.NewBatchError("database", "データベースへのPingに失敗しました", err, true, false)
	}
	return database.NewSQLDBAdapter(rawDB, strings.ToLower(cfg.Type)), nil
}

// open はドライバを開き、コネクションプール設定を適用します。
func open(driverName string, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(driverName, cfg.ConnectionString())
	if err != nil {
		return nil, exception.NewBatchError("database", fmt.Sprintf("%s への接続に失敗しました", driverName), err, false, false)
	}

	pool := cfg.ConnectionPool
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetimeSeconds > 0 {
		db.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetimeSeconds) * time.Second)
	}
	logger.Debugf("%s の接続を開きました。MaxOpenConns: %d, MaxIdleConns: %d, ConnMaxLifetime: %d秒",
		driverName, pool.MaxOpenConns, pool.MaxIdleConns, pool.ConnMaxLifetimeSeconds)
	return db, nil
}
