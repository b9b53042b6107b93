package connector

import (
	"database/sql"

	_ "github.com/snowflakedb/gosnowflake" // Snowflake ドライバ

	"batchprocessing/pkg/batch/config"
)

// snowflakeConnector はSnowflakeデータベースへの接続を確立するDBConnectorの実装です。
type snowflakeConnector struct{}

// Connect はSnowflakeデータベースへの接続を開き、*sql.DBを返します。
func (c *snowflakeConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	return open("snowflake", cfg)
}

func init() {
	RegisterConnector("snowflake", &snowflakeConnector{})
}
