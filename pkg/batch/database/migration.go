package database

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"    // MySQL ドライバを登録
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // PostgreSQL および Redshift ドライバを登録
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"batchprocessing/pkg/batch/util/exception"
	"batchprocessing/pkg/batch/util/logger"
)

// MigrationsTable はバッチフレームワークのマイグレーション履歴テーブル名です。
const MigrationsTable = "batch_schema_migrations"

// MigrationURL は golang-migrate が期待するデータベースURLを組み立てます。
func MigrationURL(dbType, connectionString string) (string, error) {
	databaseURL := connectionString
	switch strings.ToLower(dbType) {
	case "postgres", "redshift":
	case "mysql":
		databaseURL = "mysql://" + connectionString
		if !strings.Contains(databaseURL, "multiStatements=") {
			databaseURL = appendQuery(databaseURL, "multiStatements=true")
		}
	default:
		return "", exception.NewBatchErrorf("migration", "サポートされていないデータベースタイプ: %s", dbType)
	}
	return appendQuery(databaseURL, "x-migrations-table="+MigrationsTable), nil
}

func appendQuery(u, kv string) string {
	if strings.Contains(u, "?") {
		return u + "&" + kv
	}
	return u + "?" + kv
}

// RunMigrations は埋め込まれたマイグレーションファイルを指定されたデータベースに適用します。
//
// dbType: データベースの種類 (例: "postgres", "mysql")
// connectionString: config.DatabaseConfig.ConnectionString() の形式の接続文字列
// migrations: SQL マイグレーションファイルを含むファイルシステム
// dir: migrations 内のディレクトリ
func RunMigrations(dbType, connectionString string, migrations fs.FS, dir string) error {
	logger.Infof("データベースマイグレーションを開始します。DBタイプ: %s, ディレクトリ: %s", dbType, dir)

	databaseURL, err := MigrationURL(dbType, connectionString)
	if err != nil {
		return err
	}

	src, err := iofs.New(migrations, dir)
	if err != nil {
		return exception.NewBatchError("migration", "マイグレーションソースの読み込みに失敗しました", err, false, false)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return exception.NewBatchError("migration", "マイグレーションインスタンスの作成に失敗しました", err, false, false)
	}
	defer m.Close()

	if err = m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Infof("マイグレーションは不要です。データベースは最新の状態です。")
			return nil
		}
		return exception.NewBatchError("migration", "マイグレーションの実行に失敗しました", err, false, false)
	}

	logger.Infof("データベースマイグレーションが正常に完了しました。")
	return nil
}
