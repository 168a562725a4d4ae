package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateSkipsAppliedMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	for range migrations {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	}

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateAppliesAndRecordsPendingMigration(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	// First migration pending: every statement runs in one transaction
	// and the name is recorded.
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("001_create_entities").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS entities").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE UNIQUE INDEX IF NOT EXISTS entities_name_type_uniq").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("001_create_entities").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// The rest are already applied.
	for i := 1; i < len(migrations); i++ {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(migrations[i].Name).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	}

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateToleratesTrigramFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	for i := 0; i < len(migrations)-1; i++ {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(migrations[i].Name).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	}

	// pg_trgm cannot be installed; the migration is skipped, not fatal.
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("004_trigram_entities").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE EXTENSION IF NOT EXISTS pg_trgm").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateAbortsOnCoreFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("001_create_entities").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS entities").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_create_entities")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationOrderIsStable(t *testing.T) {
	require.GreaterOrEqual(t, len(migrations), 4)
	assert.Equal(t, "001_create_entities", migrations[0].Name)
	assert.Equal(t, "002_create_facts", migrations[1].Name)
	assert.Equal(t, "003_create_user_memory", migrations[2].Name)
	assert.Equal(t, "004_trigram_entities", migrations[3].Name)
}
