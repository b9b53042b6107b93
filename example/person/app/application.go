// Package app は person バッチアプリケーションの起動処理を提供します。
package app

import (
	"context"
	"errors"
	"time"

	personjob "batchprocessing/example/person/job"
	"batchprocessing/pkg/batch/config"
	"batchprocessing/pkg/batch/database"
	"batchprocessing/pkg/batch/initializer"
	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/util/exception"
	"batchprocessing/pkg/batch/util/logger"
)

// Options はアプリケーションの起動オプションです。
type Options struct {
	EnvFilePath    string
	EmbeddedConfig []byte
}

// Application は初期化済みのバッチアプリケーションです。
type Application struct {
	Config      *config.Config
	initializer *initializer.BatchInitializer
}

// NewApplication は Run Registry と JobOperator を初期化し、exampleJob を登録します。
// source が nil の場合は設定に従って読み込み元データベースに接続します。
func NewApplication(ctx context.Context, cfg *config.Config, source database.DBConnection) (*Application, error) {
	bi := initializer.NewBatchInitializer(cfg)
	if err := bi.Initialize(ctx); err != nil {
		return nil, err
	}
	a := &Application{Config: cfg, initializer: bi}

	if source == nil {
		db, err := bi.ConnectSource(ctx)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		source = db
	}

	exampleJob, err := personjob.NewExampleJob(cfg, source, bi.Registry)
	if err != nil {
		_ = a.Close()
		return nil, exception.NewBatchError("app", "ジョブの構築に失敗しました", err, false, false)
	}
	if err := bi.JobOperator.Register(exampleJob); err != nil {
		_ = a.Close()
		return nil, err
	}
	logger.Infof("バッチアプリケーションの初期化が完了しました。")
	return a, nil
}

// Start はジョブを新しい実行として起動します。
func (a *Application) Start(ctx context.Context) (*core.JobExecution, error) {
	params := core.NewJobParameters()
	params.Put("output.path", a.Config.Output.Path)
	params.Put("process.date", time.Now().Format("2006-01-02"))
	return a.initializer.JobOperator.Start(ctx, a.Config.Batch.JobName, params)
}

// Restart は指定された実行を再開します。runID が 0 以下の場合は最新の実行を再開します。
func (a *Application) Restart(ctx context.Context, runID int64) (*core.JobExecution, error) {
	op := a.initializer.JobOperator
	if runID <= 0 {
		last, err := op.GetLastRun(ctx, a.Config.Batch.JobName)
		if err != nil {
			return nil, err
		}
		runID = last.RunID
	}
	return op.Restart(ctx, a.Config.Batch.JobName, runID)
}

// LastRun はジョブの最新の実行を返します。
func (a *Application) LastRun(ctx context.Context) (*core.JobExecution, error) {
	return a.initializer.JobOperator.GetLastRun(ctx, a.Config.Batch.JobName)
}

// Close はアプリケーションのリソースを解放します。
func (a *Application) Close() error {
	return a.initializer.Close()
}

func setupApplication(ctx context.Context, opts Options) (*Application, error) {
	config.LoadEnvFile(opts.EnvFilePath)

	cfg, err := config.NewBytesConfigLoader(opts.EmbeddedConfig).Load()
	if err != nil {
		return nil, exception.NewBatchError("app", "設定のロードに失敗しました", err, false, false)
	}
	return NewApplication(ctx, cfg, nil)
}

// RunApplication は設定を読み込み、action を実行して終了コードを返します。
func RunApplication(ctx context.Context, opts Options, action func(ctx context.Context, a *Application) (*core.JobExecution, error)) int {
	a, err := setupApplication(ctx, opts)
	if err != nil {
		logger.Errorf("バッチアプリケーションの初期化に失敗しました: %v", err)
		return 1
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Errorf("バッチアプリケーションのリソースクローズ中にエラーが発生しました: %v", closeErr)
		} else {
			logger.Infof("バッチアプリケーションのリソースを正常にクローズしました。")
		}
	}()

	jobExecution, err := action(ctx, a)
	return handleApplicationError(err, jobExecution, a.Config.Batch.JobName)
}

// handleApplicationError はアプリケーションのエラーを処理し、適切な終了コードを返します。
func handleApplicationError(err error, jobExecution *core.JobExecution, jobName string) int {
	hasError := false

	if err != nil {
		hasError = true
		if jobExecution != nil {
			logger.Errorf("Job '%s' (RunID: %d) の実行中にエラーが発生しました: %v", jobName, jobExecution.RunID, err)
		} else {
			logger.Errorf("Job '%s' の起動処理中にエラーが発生しました: %v", jobName, err)
		}

		var be *exception.BatchError
		if errors.As(err, &be) {
			logger.Errorf("BatchError 詳細: Module=%s, Kind=%s, Message=%s, OriginalErr=%v", be.Module, be.Kind, be.Message, be.OriginalErr)
		}
	}

	if jobExecution == nil {
		return exitCode(hasError)
	}

	logger.Infof("Job '%s' (RunID: %d) の最終状態: %s, ExitStatus: %s", jobName, jobExecution.RunID, jobExecution.Status, jobExecution.ExitStatus)
	switch jobExecution.Status {
	case core.BatchStatusFailed:
		hasError = true
		logger.Errorf("Job '%s' は失敗しました。失敗したステップ: %s (%s)", jobName, jobExecution.FailedStepName, jobExecution.FailureKind)
	case core.BatchStatusStopped:
		hasError = true
		logger.Warnf("Job '%s' は停止しました。restart --run-id %d で再開できます。", jobName, jobExecution.RunID)
	}

	for i, f := range jobExecution.Failures {
		logger.Errorf("  - 失敗 %d: %v", i+1, f)
	}
	return exitCode(hasError)
}

func exitCode(hasError bool) int {
	if hasError {
		return 1
	}
	return 0
}
