package writer_test

import (
	"context"
	"errors"
	"testing"

	"batchprocessing/pkg/batch/database"
	"batchprocessing/pkg/batch/step/writer"
	"batchprocessing/pkg/batch/transaction"
	"batchprocessing/pkg/batch/util/exception"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const insertPerson = "insert into people (first_name, last_name) values (?, ?)"

func personArgs(p person) []any {
	return []any{p.First, p.Last}
}

func TestSQLWriter_ExecutesInChunkTransaction(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("insert into people (first_name, last_name) values ($1, $2)").
		WithArgs("Ann", "Lee").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into people (first_name, last_name) values ($1, $2)").
		WithArgs("Bo", "Kim").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	w := writer.NewSQLWriter("postgres", insertPerson, personArgs)
	tx, err := transaction.NewSQLManager(database.NewSQLDBAdapter(db, "postgres")).Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, w.Write(ctx, tx, []person{{"Ann", "Lee"}, {"Bo", "Kim"}}))
	require.NoError(t, tx.Commit(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLWriter_ExecFailureIsWriteError(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(insertPerson).WithArgs("Ann", "Lee").WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	w := writer.NewSQLWriter("mysql", insertPerson, personArgs)
	tx, err := transaction.NewSQLManager(database.NewSQLDBAdapter(db, "mysql")).Begin(ctx)
	require.NoError(t, err)

	err = w.Write(ctx, tx, []person{{"Ann", "Lee"}})
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindWrite))
	assert.True(t, exception.IsSkippable(err))

	require.NoError(t, tx.Rollback(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLWriter_RequiresDatabaseTransaction(t *testing.T) {
	ctx := context.Background()
	tx, err := transaction.NewResourcelessManager().Begin(ctx)
	require.NoError(t, err)

	err = writer.NewSQLWriter("mysql", insertPerson, personArgs).Write(ctx, tx, []person{{"Ann", "Lee"}})

	assert.True(t, exception.IsKind(err, exception.KindWrite))
	assert.False(t, exception.IsSkippable(err))
}
