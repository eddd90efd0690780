package postgres

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations_AppliesPendingInOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	files := fstest.MapFS{
		"migrations/0002_second.sql": {Data: []byte("CREATE TABLE second_table (id INT)")},
		"migrations/0001_first.sql":  {Data: []byte("CREATE TABLE first_table (id INT)")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	// 0001 is already applied.
	mock.ExpectQuery("SELECT 1 FROM schema_migrations").
		WithArgs("0001_first").
		WillReturnRows(pgxmock.NewRows([]string{"one"}).AddRow(1))

	mock.ExpectQuery("SELECT 1 FROM schema_migrations").
		WithArgs("0002_second").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE second_table").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("0002_second").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = runMigrations(context.Background(), mock, files, zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_RollsBackFailedFile(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	files := fstest.MapFS{
		"migrations/0001_broken.sql": {Data: []byte("CREATE TABLE broken (")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT 1 FROM schema_migrations").
		WithArgs("0001_broken").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE broken").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = runMigrations(context.Background(), mock, files, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0001_broken")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmbeddedMigrations_Present(t *testing.T) {
	data, err := migrationFiles.ReadFile("migrations/0001_init.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS processed_transactions")
	assert.Contains(t, string(data), "UNIQUE (referrer_id, referred_id)")
}
