package dedupe

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTracker(t *testing.T) (*Tracker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS archive_dedupe").WillReturnResult(sqlmock.NewResult(0, 0))
	tracker, err := NewTracker(context.Background(), db)
	require.NoError(t, err)
	return tracker, mock
}

func TestRecordReturnsSeenCount(t *testing.T) {
	tracker, mock := newTracker(t)

	mock.ExpectQuery("INSERT INTO archive_dedupe").
		WithArgs("uploads/batch.zip", "catalog_ingest").
		WillReturnRows(sqlmock.NewRows([]string{"seen_count"}).AddRow(2))

	count, err := tracker.Record(context.Background(), Key("uploads", "batch.zip"), "catalog_ingest")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSeenCountUnknownArchive(t *testing.T) {
	tracker, mock := newTracker(t)

	mock.ExpectQuery("SELECT seen_count FROM archive_dedupe").
		WithArgs("uploads/new.zip").
		WillReturnError(sql.ErrNoRows)

	count, err := tracker.GetSeenCount(context.Background(), "uploads/new.zip")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	require.NoError(t, mock.ExpectationsWereMet())
}
