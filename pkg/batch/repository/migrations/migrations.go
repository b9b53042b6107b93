// Package migrations は Run Registry のスキーマ定義を埋め込みます。
package migrations

import "embed"

// FS は方言ごとのディレクトリ (postgres, mysql) に golang-migrate 形式のファイルを含みます。
//
//go:embed postgres/*.sql mysql/*.sql
var FS embed.FS

// Dir はデータベース種別に対応するマイグレーションディレクトリを返します。
func Dir(dbType string) (string, bool) {
	switch dbType {
	case "postgres", "redshift":
		return "postgres", true
	case "mysql":
		return "mysql", true
	default:
		return "", false
	}
}
