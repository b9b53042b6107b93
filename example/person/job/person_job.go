package job

import (
	"batchprocessing/example/person/domain/entity"
	personprocessor "batchprocessing/example/person/step/processor"
	"batchprocessing/pkg/batch/config"
	"batchprocessing/pkg/batch/database"
	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/job/runner"
	"batchprocessing/pkg/batch/step"
	"batchprocessing/pkg/batch/step/listener"
	"batchprocessing/pkg/batch/step/reader"
	"batchprocessing/pkg/batch/step/retry"
	"batchprocessing/pkg/batch/step/skip"
	"batchprocessing/pkg/batch/step/writer"
	"batchprocessing/pkg/batch/util/logger"
)

const (
	personReaderName = "personItemReader"
	personWriterName = "personItemWriter"
)

// NewExampleJob は persons テーブルを読み込み、区切り文字付きのフラットファイルに出力するジョブを作成します。
// ステップの結果は recorder に記録されます。
func NewExampleJob(cfg *config.Config, source database.DBConnection, recorder core.StepExecutionRecorder) (*runner.SimpleJob, error) {
	proc, err := personprocessor.NewPersonProcessor(cfg.Batch.Transform)
	if err != nil {
		return nil, err
	}

	personReader := reader.NewSQLReader[entity.Person](personReaderName, source, cfg.Source.Query, entity.MapPersonRow)
	personWriter := writer.NewFlatFileWriter[entity.Person](personWriterName, cfg.Output.Path, entity.PersonFields,
		writer.WithHeader(cfg.Output.Header),
		writer.WithDelimiter(cfg.Output.Delimiter),
	)

	exampleJobStep, err := step.NewChunkStep[entity.Person, entity.Person](cfg.Batch.StepName, personReader, proc, personWriter,
		step.WithChunkSize(cfg.Batch.ChunkSize),
		step.WithSkipPolicy(skip.NewPolicyFromConfig(cfg.Batch.ItemSkip)),
		step.WithRetryPolicy(retry.NewPolicyFromConfig(cfg.Batch.ItemRetry)),
		step.WithStepListeners(listener.NewLoggingStepListener()),
		step.WithChunkListeners(listener.NewLoggingChunkListener()),
		step.WithSkipListeners(listener.NewLoggingSkipListener()),
		step.WithRetryListeners(listener.NewLoggingRetryItemListener()),
	)
	if err != nil {
		return nil, err
	}

	opts := []runner.Option{runner.WithJobListeners(listener.NewLoggingJobListener())}
	if recorder != nil {
		opts = append(opts, runner.WithStepExecutionRecorder(recorder))
	}
	if cfg.Batch.ContinueOnFailure {
		opts = append(opts, runner.WithContinueOnFailure())
	}
	logger.Debugf("ジョブ '%s' を構築しました。(Step: %s, ChunkSize: %d, Output: %s)",
		cfg.Batch.JobName, cfg.Batch.StepName, cfg.Batch.ChunkSize, cfg.Output.Path)
	return runner.NewSimpleJob(cfg.Batch.JobName, []core.Step{exampleJobStep}, opts...)
}
