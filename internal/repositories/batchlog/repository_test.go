package batchlog

import (
	"context"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

func newTestRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	db := database.NewDatabaseInstance(sqlx.NewDb(mockDB, "postgres"), logger)
	return NewRepository(db, logger), mock
}

func batchRow(status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(columns).AddRow(
		"b1", "owner", "upload.csv", "alice", status, 3, 2, 1, 0,
		`[{"kind":"validation","row":4,"field":"node_category","message":"invalid node category \"InvalidType\""}]`,
		now, now, now, nil, nil,
	)
}

func TestRepository_Get(t *testing.T) {
	repo, mock := newTestRepository(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM batch_logs")).WillReturnRows(batchRow("processed"))

	batch, err := repo.Get(context.Background(), "owner", "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusProcessed, batch.Status)
	require.Len(t, batch.ErrorReport.GetValue(), 1)
	assert.Equal(t, "node_category", batch.ErrorReport.GetValue()[0].Field)
}

func TestRepository_Finalize(t *testing.T) {
	t.Run("pending batch", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE batch_logs")).WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Finalize(context.Background(), "owner", "b1", models.BatchOutcome{Status: models.BatchStatusProcessed, TotalRecords: 3})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already finalized", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE batch_logs")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("FROM batch_logs")).WillReturnRows(batchRow("processed"))

		err := repo.Finalize(context.Background(), "owner", "b1", models.BatchOutcome{Status: models.BatchStatusError})
		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
	})
}

func TestRepository_MarkRolledBack_Pending(t *testing.T) {
	repo, mock := newTestRepository(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE batch_logs")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM batch_logs")).WillReturnRows(batchRow("pending"))

	err := repo.MarkRolledBack(context.Background(), "owner", "b1", "alice", time.Now())
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestRepository_List(t *testing.T) {
	repo, mock := newTestRepository(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM batch_logs")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM batch_logs")).WillReturnRows(batchRow("processed"))

	batches, total, err := repo.List(context.Background(), "owner", models.BatchFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, batches, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_AppendError_Missing(t *testing.T) {
	repo, mock := newTestRepository(t)
	mock.ExpectExec(regexp.QuoteMeta("error_report = error_report ||")).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AppendError(context.Background(), "owner", "missing", models.BatchError{Kind: models.BatchErrorKindRollback, Message: "x"})
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}
