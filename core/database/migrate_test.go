package database

import (
	"context"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (Database, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewDatabase(sqlx.NewDb(db, "postgres")), mock
}

func expectApplied(mock sqlmock.Sqlmock, name string, applied bool) {
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM schema_migrations WHERE name = \$1\)`).
		WithArgs(name).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(applied))
}

func TestMigrateSkipsRecordedFiles(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	expectApplied(mock, "migrations/001_calendar_integrations.sql", true)
	expectApplied(mock, "migrations/002_calendar_events.sql", true)
	expectApplied(mock, "migrations/003_calendar_sync_runs.sql", true)
	expectApplied(mock, "migrations/004_notifications.sql", false)
	mock.ExpectBegin()
	mock.ExpectExec(`.+`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schema_migrations \(name\) VALUES \(\$1\)`).
		WithArgs("migrations/004_notifications.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateRollsBackFailedFile(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	expectApplied(mock, "migrations/001_calendar_integrations.sql", false)
	mock.ExpectBegin()
	mock.ExpectExec(`.+`).WillReturnError(fmt.Errorf("syntax error"))
	mock.ExpectRollback()

	err := Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_calendar_integrations.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}
