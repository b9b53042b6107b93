package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"batchprocessing/pkg/batch/util/logger"
)

// BytesConfigLoader はバイトスライスから設定をロードする ConfigLoader の実装です。
type BytesConfigLoader struct {
	data []byte
}

// NewBytesConfigLoader は新しい BytesConfigLoader のインスタンスを作成します。
func NewBytesConfigLoader(data []byte) *BytesConfigLoader {
	return &BytesConfigLoader{data: data}
}

// Load は埋め込まれたバイトスライスから設定をロードします。
// YAML に無い項目はデフォルト値のまま残り、その後環境変数で上書きされます。
func (l *BytesConfigLoader) Load() (*Config, error) {
	cfg := NewConfig()
	if err := yaml.Unmarshal(l.data, cfg); err != nil {
		return nil, fmt.Errorf("YAML設定のパースに失敗しました: %w", err)
	}
	cfg.EmbeddedConfig = l.data

	loadEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile は .env ファイルを環境変数に読み込みます。
// ファイルが存在しない場合は警告のみで続行します。
func LoadEnvFile(path string) {
	if path == "" {
		logger.Debugf(".env ファイルのパスが指定されていないため、ロードをスキップします。")
		return
	}
	if err := godotenv.Load(path); err != nil {
		logger.Warnf(".env ファイル '%s' のロードに失敗しました (本番環境では環境変数を使用): %v", path, err)
		return
	}
	logger.Infof(".env ファイル '%s' をロードしました。", path)
}

func envInt(key string, dst *int) {
	s := os.Getenv(key)
	if s == "" {
		return
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		logger.Warnf("%s の値 '%s' が無効です。デフォルト値または設定ファイルの値を使用します。", key, s)
		return
	}
	*dst = v
}

func envString(key string, dst *string) {
	if s := os.Getenv(key); s != "" {
		*dst = s
	}
}

// 環境変数で個別の設定値を上書きする関数
func loadEnvVars(cfg *Config) {
	// Database 設定
	envString("DATABASE_TYPE", &cfg.Database.Type)
	envString("DATABASE_HOST", &cfg.Database.Host)
	envInt("DATABASE_PORT", &cfg.Database.Port)
	envString("DATABASE_DATABASE", &cfg.Database.Database)
	envString("DATABASE_USER", &cfg.Database.User)
	envString("DATABASE_PASSWORD", &cfg.Database.Password)
	envString("DATABASE_SSLMODE", &cfg.Database.Sslmode)
	envString("DATABASE_ACCOUNT", &cfg.Database.Account)
	envString("DATABASE_WAREHOUSE", &cfg.Database.Warehouse)
	envInt("DATABASE_MAX_OPEN_CONNS", &cfg.Database.ConnectionPool.MaxOpenConns)
	envInt("DATABASE_MAX_IDLE_CONNS", &cfg.Database.ConnectionPool.MaxIdleConns)
	envInt("DATABASE_CONN_MAX_LIFETIME_SECONDS", &cfg.Database.ConnectionPool.ConnMaxLifetimeSeconds)

	// Batch 設定
	envString("BATCH_JOB_NAME", &cfg.Batch.JobName)
	envInt("BATCH_CHUNK_SIZE", &cfg.Batch.ChunkSize)
	envInt("BATCH_SKIP_LIMIT", &cfg.Batch.ItemSkip.SkipLimit)
	envString("BATCH_TRANSFORM", &cfg.Batch.Transform)
	if s := os.Getenv("BATCH_SKIPPABLE_EXCEPTIONS"); s != "" {
		cfg.Batch.ItemSkip.SkippableExceptions = strings.Split(s, ",")
	}

	// Output 設定
	envString("OUTPUT_PATH", &cfg.Output.Path)
	envString("OUTPUT_HEADER", &cfg.Output.Header)
	envString("OUTPUT_DELIMITER", &cfg.Output.Delimiter)

	// Registry 設定
	envString("REGISTRY_TYPE", &cfg.Registry.Type)

	// System 設定
	envString("SYSTEM_LOGGING_LEVEL", &cfg.System.Logging.Level)
	envString("SYSTEM_LOGGING_FORMAT", &cfg.System.Logging.Format)
}
