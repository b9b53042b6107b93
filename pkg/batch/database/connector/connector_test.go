package connector_test

import (
	"context"
	"testing"

	"batchprocessing/pkg/batch/config"
	"batchprocessing/pkg/batch/database/connector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSQLDB_UnknownType(t *testing.T) {
	_, err := connector.GetSQLDB(config.DatabaseConfig{Type: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "未対応のデータベースタイプ")
}

func TestGetSQLDB_RegisteredDriversOpenLazily(t *testing.T) {
	// sql.Open は接続を確立しないため、ドライバ登録のみを確認できる
	for _, typ := range []string{"postgres", "mysql", "redshift"} {
		db, err := connector.GetSQLDB(config.DatabaseConfig{
			Type: typ, Host: "127.0.0.1", Port: 1, Database: "x", User: "u", Password: "p", Sslmode: "disable",
			ConnectionPool: config.ConnectionPoolConfig{MaxOpenConns: 2, MaxIdleConns: 1, ConnMaxLifetimeSeconds: 30},
		})
		require.NoError(t, err, typ)
		assert.Equal(t, 2, db.Stats().MaxOpenConnections)
		require.NoError(t, db.Close())
	}
}

func TestNewDBConnectionFromConfig_PingFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := connector.NewDBConnectionFromConfig(ctx, config.DatabaseConfig{
		Type: "postgres", Host: "127.0.0.1", Port: 1, Database: "x", User: "u", Password: "p", Sslmode: "disable",
	})
	assert.Error(t, err)
}
