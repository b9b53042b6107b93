package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"batchprocessing/pkg/batch/database"
	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/repository"
	"batchprocessing/pkg/batch/util/exception"
	"batchprocessing/pkg/batch/util/serialization"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLRegistry(t *testing.T) (*repository.SQLRunRegistry, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return repository.NewSQLRunRegistry(database.NewSQLDBAdapter(db, "postgres")), mock
}

func q(s string) string {
	return regexp.QuoteMeta(s)
}

func TestSQLRunRegistry_RecordStart(t *testing.T) {
	reg, mock := newSQLRegistry(t)
	params := core.NewJobParameters()
	params.Put("input", "persons")

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT COALESCE(MAX(run_id), 0) FROM batch_job_run WHERE job_name = $1")).
		WithArgs("exampleJob").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(4)))
	mock.ExpectExec(q("INSERT INTO batch_job_run")).
		WithArgs("exampleJob", int64(5), "STARTED", "UNKNOWN", `{"input":"persons"}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	runID, err := reg.RecordStart(context.Background(), "exampleJob", params)
	require.NoError(t, err)
	assert.Equal(t, int64(5), runID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRunRegistry_RecordStartRetriesOnConflict(t *testing.T) {
	reg, mock := newSQLRegistry(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("MAX(run_id)")).WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(0)))
	mock.ExpectExec(q("INSERT INTO batch_job_run")).WillReturnError(errors.New("duplicate key value violates unique constraint"))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectQuery(q("MAX(run_id)")).WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(1)))
	mock.ExpectExec(q("INSERT INTO batch_job_run")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	runID, err := reg.RecordStart(context.Background(), "job", core.NewJobParameters())
	require.NoError(t, err)
	assert.Equal(t, int64(2), runID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRunRegistry_RecordStartGivesUp(t *testing.T) {
	reg, mock := newSQLRegistry(t)
	for i := 0; i < 3; i++ {
		mock.ExpectBegin().WillReturnError(errors.New("connection refused"))
	}

	_, err := reg.RecordStart(context.Background(), "job", core.NewJobParameters())
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindRepository))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRunRegistry_RecordStepOutcome(t *testing.T) {
	reg, mock := newSQLRegistry(t)
	se := completedStep("exampleJobStep", 3)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT status FROM batch_job_run WHERE job_name = $1 AND run_id = $2")).
		WithArgs("job", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("STARTED"))
	mock.ExpectQuery(q("SELECT COALESCE(MAX(seq), 0) FROM batch_step_outcome")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(1)))
	mock.ExpectExec(q("INSERT INTO batch_step_outcome")).
		WithArgs("job", int64(1), 2, se.ID, "exampleJobStep", "COMPLETED", "COMPLETED",
			3, 3, 0, 0, 0, 0, 0, 0,
			sqlmock.AnyArg(), sqlmock.AnyArg(), `{"reader.read.count":3}`, "[]").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, reg.RecordStepOutcome(context.Background(), "job", 1, se))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRunRegistry_RecordStepOutcomeOnFinishedRun(t *testing.T) {
	reg, mock := newSQLRegistry(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT status FROM batch_job_run")).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("COMPLETED"))
	mock.ExpectRollback()

	err := reg.RecordStepOutcome(context.Background(), "job", 1, completedStep("s", 1))
	assert.ErrorIs(t, err, repository.ErrRunAlreadyCompleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRunRegistry_RecordStepOutcomeUnknownRun(t *testing.T) {
	reg, mock := newSQLRegistry(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT status FROM batch_job_run")).
		WillReturnRows(sqlmock.NewRows([]string{"status"}))
	mock.ExpectRollback()

	err := reg.RecordStepOutcome(context.Background(), "job", 9, completedStep("s", 1))
	assert.ErrorIs(t, err, repository.ErrRunNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRunRegistry_RecordCompletion(t *testing.T) {
	tests := []struct {
		name    string
		updated int64
		count   int64
		wantErr error
	}{
		{"first completion", 1, 0, nil},
		{"already completed", 0, 1, repository.ErrRunAlreadyCompleted},
		{"unknown run", 0, 0, repository.ErrRunNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, mock := newSQLRegistry(t)
			mock.ExpectExec(q("UPDATE batch_job_run SET status = $1")).
				WithArgs("COMPLETED", "COMPLETED", sqlmock.AnyArg(), nil, nil, "job", int64(1)).
				WillReturnResult(sqlmock.NewResult(0, tt.updated))
			if tt.updated == 0 {
				mock.ExpectQuery(q("SELECT COUNT(*) FROM batch_job_run")).
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tt.count))
			}

			err := reg.RecordCompletion(context.Background(), "job", 1, core.BatchStatusCompleted, nil)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLRunRegistry_RecordCompletionRejectsUnfinishedStatus(t *testing.T) {
	reg, mock := newSQLRegistry(t)

	err := reg.RecordCompletion(context.Background(), "job", 1, core.BatchStatusExecuting, nil)
	assert.True(t, exception.IsKind(err, exception.KindRepository))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRunRegistry_FindRun(t *testing.T) {
	reg, mock := newSQLRegistry(t)
	start := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)

	failure := exception.NewSkipLimitExceededError("skip_policy", 2, nil)
	failureJSON, err := serialization.MarshalFailures([]error{failure})
	require.NoError(t, err)

	mock.ExpectQuery(q("FROM batch_job_run WHERE job_name = $1 AND run_id = $2")).
		WithArgs("job", int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "job_parameters", "start_time", "end_time", "failure_kind", "failure_message"}).
			AddRow("FAILED", `{"input":"persons"}`, start, end, "SkipLimitExceeded", string(failureJSON)))
	mock.ExpectQuery(q("FROM batch_step_outcome WHERE job_name = $1 AND run_id = $2 ORDER BY seq")).
		WithArgs("job", int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{
			"step_execution_id", "step_name", "status", "exit_status",
			"read_count", "write_count", "filter_count", "skip_read_count", "skip_process_count", "skip_write_count",
			"commit_count", "rollback_count", "start_time", "end_time", "execution_context", "failures",
		}).
			AddRow("id-1", "extract", "COMPLETED", "COMPLETED", 5, 5, 0, 0, 0, 0, 1, 0, start, end, `{"reader.read.count":5}`, "[]").
			AddRow("id-2", "load", "FAILED", "FAILED", 4, 0, 0, 2, 0, 0, 0, 1, start, end, `{"reader.read.count":0}`, string(failureJSON)))

	je, err := reg.FindRun(context.Background(), "job", 3)
	require.NoError(t, err)

	assert.Equal(t, int64(3), je.RunID)
	assert.Equal(t, core.BatchStatusFailed, je.Status)
	assert.Equal(t, start, je.StartTime)
	assert.Equal(t, "load", je.FailedStepName)
	assert.Equal(t, exception.KindSkipLimitExceeded, je.FailureKind)
	require.Len(t, je.StepExecutions, 2)

	extract := je.FindStepExecution("extract")
	require.NotNil(t, extract)
	pos, ok := extract.ExecutionContext.GetInt64("reader.read.count")
	assert.True(t, ok)
	assert.Equal(t, int64(5), pos)

	load := je.FindStepExecution("load")
	require.Len(t, load.Failures, 1)
	assert.Equal(t, failure.Error(), load.Failures[0].Error())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRunRegistry_LastRun(t *testing.T) {
	reg, mock := newSQLRegistry(t)

	mock.ExpectQuery(q("SELECT MAX(run_id) FROM batch_job_run")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	_, err := reg.LastRun(context.Background(), "job")
	assert.ErrorIs(t, err, repository.ErrRunNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
