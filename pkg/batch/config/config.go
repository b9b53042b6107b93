package config

import (
	"fmt"
	"strings"

	"github.com/snowflakedb/gosnowflake"

	"batchprocessing/pkg/batch/util/exception"
)

// EmbeddedConfig は、埋め込まれた設定ファイルの内容です。
type EmbeddedConfig []byte

// ConnectionPoolConfig はデータベースコネクションプールの設定を保持します。
type ConnectionPoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `yaml:"conn_max_lifetime_seconds"`
}

// DatabaseConfig はソースおよび実行履歴のデータベース接続設定です。
type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Sslmode  string `yaml:"sslmode"`
	// Snowflake 用
	Account   string `yaml:"account"`
	Warehouse string `yaml:"warehouse"`
	Schema    string `yaml:"schema"`
	Role      string `yaml:"role"`

	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

// ConnectionString はドライバに渡す DSN を返します。
func (c DatabaseConfig) ConnectionString() string {
	switch strings.ToLower(c.Type) {
	case "postgres", "redshift":
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			c.User, c.Password, c.Host, c.Port, c.Database, c.Sslmode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case "snowflake":
		dsn, err := gosnowflake.DSN(&gosnowflake.Config{
			Account:   c.Account,
			User:      c.User,
			Password:  c.Password,
			Database:  c.Database,
			Schema:    c.Schema,
			Warehouse: c.Warehouse,
			Role:      c.Role,
		})
		if err != nil {
			return ""
		}
		return dsn
	default:
		return ""
	}
}

// ItemRetryConfig はアイテムレベルのリトライ設定です。
type ItemRetryConfig struct {
	MaxAttempts         int      `yaml:"max_attempts"`
	InitialInterval     int      `yaml:"initial_interval"` // ミリ秒
	RetryableExceptions []string `yaml:"retryable_exceptions"`
}

// ItemSkipConfig はアイテムレベルのスキップ設定です。
type ItemSkipConfig struct {
	SkipLimit           int      `yaml:"skip_limit"`
	SkippableExceptions []string `yaml:"skippable_exceptions"`
}

// BatchConfig はジョブ実行の設定です。
type BatchConfig struct {
	JobName           string          `yaml:"job_name"`
	StepName          string          `yaml:"step_name"`
	ChunkSize         int             `yaml:"chunk_size"`
	Transform         string          `yaml:"transform"`
	ContinueOnFailure bool            `yaml:"continue_on_failure"`
	ItemRetry         ItemRetryConfig `yaml:"item_retry"`
	ItemSkip          ItemSkipConfig  `yaml:"item_skip"`
}

// SourceConfig は読み込み元クエリの設定です。
type SourceConfig struct {
	Query string `yaml:"query"`
}

// OutputConfig は区切り文字付きフラットファイル出力の設定です。
type OutputConfig struct {
	Path      string `yaml:"path"`
	Header    string `yaml:"header"`
	Delimiter string `yaml:"delimiter"`
}

// RegistryConfig は実行履歴 (Run Registry) の保存先設定です。
type RegistryConfig struct {
	Type    string `yaml:"type"` // "memory" または "sql"
	Migrate bool   `yaml:"migrate"`
}

// LoggingConfig はログ設定です。
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

type Config struct {
	Database       DatabaseConfig `yaml:"database"`
	Batch          BatchConfig    `yaml:"batch"`
	Source         SourceConfig   `yaml:"source"`
	Output         OutputConfig   `yaml:"output"`
	Registry       RegistryConfig `yaml:"registry"`
	System         SystemConfig   `yaml:"system"`
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig はデフォルト値を設定した Config を返します。
func NewConfig() *Config {
	return &Config{
		System: SystemConfig{
			Timezone: "UTC",
			Logging:  LoggingConfig{Level: "INFO", Format: "console"},
		},
		Batch: BatchConfig{
			JobName:   "exampleJob",
			StepName:  "exampleJobStep",
			ChunkSize: 10,
			Transform: "none",
			ItemRetry: ItemRetryConfig{
				MaxAttempts:         1,
				RetryableExceptions: []string{},
			},
			ItemSkip: ItemSkipConfig{
				SkipLimit:           0,
				SkippableExceptions: []string{string(exception.KindRead), string(exception.KindProcess)},
			},
		},
		Source: SourceConfig{
			Query: "select first_name, last_name from persons",
		},
		Output: OutputConfig{
			Path:      "personData.txt",
			Header:    "person data",
			Delimiter: "^",
		},
		Registry: RegistryConfig{Type: "memory"},
	}
}

// Validate は設定値を検証し、不備があれば ConfigurationError を返します。
func (c *Config) Validate() error {
	if c.Batch.JobName == "" {
		return exception.NewConfigurationError("config", "batch.job_name が指定されていません")
	}
	if c.Batch.ChunkSize < 1 {
		return exception.NewConfigurationError("config", fmt.Sprintf("batch.chunk_size は 1 以上である必要があります: %d", c.Batch.ChunkSize))
	}
	if c.Batch.ItemSkip.SkipLimit < 0 {
		return exception.NewConfigurationError("config", "batch.item_skip.skip_limit は負の値にできません")
	}
	for _, k := range append(append([]string{}, c.Batch.ItemSkip.SkippableExceptions...), c.Batch.ItemRetry.RetryableExceptions...) {
		if _, ok := exception.ParseErrorKind(k); !ok {
			return exception.NewConfigurationError("config", fmt.Sprintf("不明なエラー種別です: %s", k))
		}
	}
	if c.Output.Path == "" {
		return exception.NewConfigurationError("config", "output.path が指定されていません")
	}
	switch c.Registry.Type {
	case "memory", "sql":
	default:
		return exception.NewConfigurationError("config", fmt.Sprintf("未対応の registry.type です: %s", c.Registry.Type))
	}
	return nil
}
