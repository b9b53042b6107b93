package connector

import (
	"database/sql"

	_ "github.com/lib/pq" // PostgreSQL ドライバ

	"batchprocessing/pkg/batch/config"
)

// postgresConnector はPostgreSQLデータベースへの接続を確立するDBConnectorの実装です。
type postgresConnector struct{}

// Connect はPostgreSQLデータベースへの接続を開き、*sql.DBを返します。
func (c *postgresConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	return open("postgres", cfg)
}

func init() {
	RegisterConnector("postgres", &postgresConnector{})
	RegisterConnector("redshift", &postgresConnector{})
}
