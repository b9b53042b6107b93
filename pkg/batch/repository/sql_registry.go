package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"batchprocessing/pkg/batch/database"
	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/util/exception"
	"batchprocessing/pkg/batch/util/logger"
	"batchprocessing/pkg/batch/util/serialization"
)

// runIDAllocationAttempts は RunID の採番が一意制約で競合した場合の試行回数です。
const runIDAllocationAttempts = 3

// SQLRunRegistry は batch_job_run / batch_step_outcome テーブルに実行履歴を記録する RunRegistry です。
// クエリは "?" で記述し、接続先の方言に合わせてプレースホルダを変換します。
type SQLRunRegistry struct {
	db database.DBConnection
}

// NewSQLRunRegistry は新しい SQLRunRegistry を作成します。
func NewSQLRunRegistry(db database.DBConnection) *SQLRunRegistry {
	return &SQLRunRegistry{db: db}
}

func (r *SQLRunRegistry) q(query string) string {
	return database.Rebind(r.db.Dialect(), query)
}

// RecordStart はトランザクション内で MAX(run_id)+1 を採番して実行を登録します。
// 同時に採番した実行とは (job_name, run_id) の主キーで競合し、再試行されます。
func (r *SQLRunRegistry) RecordStart(ctx context.Context, jobName string, params core.JobParameters) (int64, error) {
	paramsJSON, err := serialization.MarshalJobParameters(params)
	if err != nil {
		return 0, err
	}

	var lastErr error
	for attempt := 1; attempt <= runIDAllocationAttempts; attempt++ {
		runID, err := r.insertRun(ctx, jobName, string(paramsJSON))
		if err == nil {
			logger.Debugf("ジョブ '%s' の実行を登録しました。RunID: %d", jobName, runID)
			return runID, nil
		}
		lastErr = err
		logger.Warnf("ジョブ '%s' の RunID の採番に失敗しました (試行回数: %d/%d): %v", jobName, attempt, runIDAllocationAttempts, err)
	}
	return 0, exception.NewRepositoryError("run_registry", "実行の登録に失敗しました", lastErr)
}

func (r *SQLRunRegistry) insertRun(ctx context.Context, jobName, paramsJSON string) (runID int64, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var last int64
	if err = tx.QueryRowContext(ctx, r.q("SELECT COALESCE(MAX(run_id), 0) FROM batch_job_run WHERE job_name = ?"), jobName).Scan(&last); err != nil {
		return 0, err
	}
	runID = last + 1
	_, err = tx.ExecContext(ctx,
		r.q("INSERT INTO batch_job_run (job_name, run_id, status, exit_status, job_parameters, start_time) VALUES (?, ?, ?, ?, ?, ?)"),
		jobName, runID, string(core.BatchStatusStarted), string(core.ExitStatusUnknown), paramsJSON, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

// RecordStepOutcome はステップの結果を1行追記します。
func (r *SQLRunRegistry) RecordStepOutcome(ctx context.Context, jobName string, runID int64, se *core.StepExecution) (err error) {
	ecJSON, err := serialization.MarshalExecutionContext(se.ExecutionContext)
	if err != nil {
		return err
	}
	failuresJSON, err := serialization.MarshalFailures(se.Failures)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return exception.NewRepositoryError("run_registry", "トランザクションの開始に失敗しました", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var status string
	err = tx.QueryRowContext(ctx, r.q("SELECT status FROM batch_job_run WHERE job_name = ? AND run_id = ?"), jobName, runID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(jobName, runID)
	}
	if err != nil {
		return exception.NewRepositoryError("run_registry", "実行の取得に失敗しました", err)
	}
	if core.BatchStatus(status).IsFinished() {
		return alreadyCompleted(jobName, runID)
	}

	var seq int
	if err = tx.QueryRowContext(ctx, r.q("SELECT COALESCE(MAX(seq), 0) FROM batch_step_outcome WHERE job_name = ? AND run_id = ?"), jobName, runID).Scan(&seq); err != nil {
		return exception.NewRepositoryError("run_registry", "ステップ結果の連番の取得に失敗しました", err)
	}

	_, err = tx.ExecContext(ctx, r.q(`INSERT INTO batch_step_outcome (
    job_name, run_id, seq, step_execution_id, step_name, status, exit_status,
    read_count, write_count, filter_count, skip_read_count, skip_process_count, skip_write_count,
    commit_count, rollback_count, start_time, end_time, execution_context, failures
  ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		jobName, runID, seq+1, se.ID, se.StepName, string(se.Status), string(se.ExitStatus),
		se.ReadCount, se.WriteCount, se.FilterCount, se.SkipReadCount, se.SkipProcessCount, se.SkipWriteCount,
		se.CommitCount, se.RollbackCount, se.StartTime.UTC(), nullTime(se.EndTime), string(ecJSON), string(failuresJSON))
	if err != nil {
		return exception.NewRepositoryError("run_registry", "ステップ結果の記録に失敗しました", err)
	}
	if err = tx.Commit(); err != nil {
		return exception.NewRepositoryError("run_registry", "ステップ結果のコミットに失敗しました", err)
	}
	return nil
}

// RecordCompletion は終了していない実行にのみ最終状態を記録します。
func (r *SQLRunRegistry) RecordCompletion(ctx context.Context, jobName string, runID int64, status core.BatchStatus, failure error) error {
	if !status.IsFinished() {
		return invalidCompletion(status)
	}

	var kind, message sql.NullString
	if failure != nil {
		data, err := serialization.MarshalFailures([]error{failure})
		if err != nil {
			return err
		}
		kind = sql.NullString{String: string(exception.KindOf(failure)), Valid: true}
		message = sql.NullString{String: string(data), Valid: true}
	}

	res, err := r.db.ExecContext(ctx,
		r.q("UPDATE batch_job_run SET status = ?, exit_status = ?, end_time = ?, failure_kind = ?, failure_message = ? WHERE job_name = ? AND run_id = ? AND end_time IS NULL"),
		string(status), string(status.ToExitStatus()), time.Now().UTC(), kind, message, jobName, runID)
	if err != nil {
		return exception.NewRepositoryError("run_registry", "実行の終了の記録に失敗しました", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	var count int
	if err := r.db.QueryRowContext(ctx, r.q("SELECT COUNT(*) FROM batch_job_run WHERE job_name = ? AND run_id = ?"), jobName, runID).Scan(&count); err != nil {
		return exception.NewRepositoryError("run_registry", "実行の取得に失敗しました", err)
	}
	if count == 0 {
		return notFound(jobName, runID)
	}
	return alreadyCompleted(jobName, runID)
}

// FindRun は実行とステップの結果を読み込み、JobExecution を復元します。
func (r *SQLRunRegistry) FindRun(ctx context.Context, jobName string, runID int64) (*core.JobExecution, error) {
	var (
		status     string
		paramsJSON string
		startTime  time.Time
		endTime    sql.NullTime
		kind       sql.NullString
		message    sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		r.q("SELECT status, job_parameters, start_time, end_time, failure_kind, failure_message FROM batch_job_run WHERE job_name = ? AND run_id = ?"),
		jobName, runID).Scan(&status, &paramsJSON, &startTime, &endTime, &kind, &message)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(jobName, runID)
	}
	if err != nil {
		return nil, exception.NewRepositoryError("run_registry", "実行の取得に失敗しました", err)
	}

	params, err := serialization.UnmarshalJobParameters([]byte(paramsJSON))
	if err != nil {
		return nil, err
	}
	je := core.NewJobExecution(jobName, runID, params)
	je.Status = core.BatchStatus(status)
	je.ExitStatus = je.Status.ToExitStatus()
	je.StartTime = startTime
	if endTime.Valid {
		je.EndTime = endTime.Time
	}

	steps, err := r.findSteps(ctx, jobName, runID)
	if err != nil {
		return nil, err
	}
	for _, se := range steps {
		je.AddStepExecution(se)
	}

	var failure error
	if message.Valid {
		failures, err := serialization.UnmarshalFailures([]byte(message.String))
		if err != nil {
			return nil, err
		}
		if len(failures) > 0 {
			failure = failures[0]
		}
	}
	applyOutcome(je, failure)
	return je, nil
}

func (r *SQLRunRegistry) findSteps(ctx context.Context, jobName string, runID int64) ([]*core.StepExecution, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`SELECT step_execution_id, step_name, status, exit_status,
    read_count, write_count, filter_count, skip_read_count, skip_process_count, skip_write_count,
    commit_count, rollback_count, start_time, end_time, execution_context, failures
  FROM batch_step_outcome WHERE job_name = ? AND run_id = ? ORDER BY seq`), jobName, runID)
	if err != nil {
		return nil, exception.NewRepositoryError("run_registry", "ステップ結果の取得に失敗しました", err)
	}
	defer rows.Close()

	var steps []*core.StepExecution
	for rows.Next() {
		var (
			se           core.StepExecution
			status       string
			exitStatus   string
			endTime      sql.NullTime
			ecJSON       string
			failuresJSON string
		)
		if err := rows.Scan(&se.ID, &se.StepName, &status, &exitStatus,
			&se.ReadCount, &se.WriteCount, &se.FilterCount, &se.SkipReadCount, &se.SkipProcessCount, &se.SkipWriteCount,
			&se.CommitCount, &se.RollbackCount, &se.StartTime, &endTime, &ecJSON, &failuresJSON); err != nil {
			return nil, exception.NewRepositoryError("run_registry", "ステップ結果の読み込みに失敗しました", err)
		}
		se.Status = core.BatchStatus(status)
		se.ExitStatus = core.ExitStatus(exitStatus)
		if endTime.Valid {
			se.EndTime = endTime.Time
		}
		if se.ExecutionContext, err = serialization.UnmarshalExecutionContext([]byte(ecJSON)); err != nil {
			return nil, err
		}
		if se.Failures, err = serialization.UnmarshalFailures([]byte(failuresJSON)); err != nil {
			return nil, err
		}
		se.LastUpdated = se.EndTime
		steps = append(steps, &se)
	}
	if err := rows.Err(); err != nil {
		return nil, exception.NewRepositoryError("run_registry", "ステップ結果の読み込みに失敗しました", err)
	}
	return steps, nil
}

// LastRun はジョブの最大の RunID を持つ実行を返します。
func (r *SQLRunRegistry) LastRun(ctx context.Context, jobName string) (*core.JobExecution, error) {
	var last sql.NullInt64
	if err := r.db.QueryRowContext(ctx, r.q("SELECT MAX(run_id) FROM batch_job_run WHERE job_name = ?"), jobName).Scan(&last); err != nil {
		return nil, exception.NewRepositoryError("run_registry", "最新の実行の取得に失敗しました", err)
	}
	if !last.Valid {
		return nil, notFound(jobName, 0)
	}
	return r.FindRun(ctx, jobName, last.Int64)
}

// Close はデータベース接続を閉じます。
func (r *SQLRunRegistry) Close() error {
	return r.db.Close()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

var _ RunRegistry = (*SQLRunRegistry)(nil)
