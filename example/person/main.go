package main

import (
	"context"
	_ "embed"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"batchprocessing/example/person/app"
	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/util/logger"
)

//go:embed resources/application.yaml
var embeddedConfig []byte

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// シグナル受信時は Context をキャンセルし、現在のチャンクのコミット後にジョブを停止する
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("シグナル '%v' を受信しました。ジョブの停止を試みます...", sig)
		cancel()
	}()

	exitCode := 0
	root := newRootCmd(&exitCode)
	if err := root.ExecuteContext(ctx); err != nil {
		exitCode = 1
	}
	os.Exit(exitCode)
}

func newRootCmd(exitCode *int) *cobra.Command {
	opts := app.Options{EmbeddedConfig: embeddedConfig}

	root := &cobra.Command{
		Use:           "person-batch",
		Short:         "persons テーブルを区切り文字付きファイルに出力するバッチ",
		SilenceUsage: true,
	}
	defaultEnv := os.Getenv("ENV_FILE_PATH")
	if defaultEnv == "" {
		defaultEnv = ".env"
	}
	root.PersistentFlags().StringVar(&opts.EnvFilePath, "env-file", defaultEnv, ".env ファイルのパス")

	run := func(action func(ctx context.Context, a *app.Application) (*core.JobExecution, error)) func(*cobra.Command, []string) {
		return func(cmd *cobra.Command, _ []string) {
			*exitCode = app.RunApplication(cmd.Context(), opts, action)
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "ジョブを新しい実行として起動します",
		Args:  cobra.NoArgs,
		Run: run(func(ctx context.Context, a *app.Application) (*core.JobExecution, error) {
			return a.Start(ctx)
		}),
	})

	var runID int64
	restart := &cobra.Command{
		Use:   "restart",
		Short: "FAILED または STOPPED の実行を再開します",
		Args:  cobra.NoArgs,
		Run: run(func(ctx context.Context, a *app.Application) (*core.JobExecution, error) {
			return a.Restart(ctx, runID)
		}),
	}
	restart.Flags().Int64Var(&runID, "run-id", 0, "再開する RunID (省略時は最新の実行)")
	root.AddCommand(restart)

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "最新の実行の状態を表示します",
		Args:  cobra.NoArgs,
		Run: run(func(ctx context.Context, a *app.Application) (*core.JobExecution, error) {
			last, err := a.LastRun(ctx)
			if err != nil {
				return nil, err
			}
			for _, se := range last.StepExecutions {
				logger.Infof("Step '%s': %s (Read: %d, Write: %d, Filter: %d, Skip: %d, Commit: %d, Rollback: %d)",
					se.StepName, se.Status, se.ReadCount, se.WriteCount, se.FilterCount, se.SkipCount(), se.CommitCount, se.RollbackCount)
			}
			return last, nil
		}),
	})
	return root
}
