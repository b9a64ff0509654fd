package persistence

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// anyMatcher accepts any actual SQL against any expectation: the exact
// text gorm emits for a given clause isn't part of this package's
// contract, only that the right calls happen in the right order.
type anyMatcher struct{}

func (anyMatcher) Match(expectedSQL, actualSQL string) error { return nil }

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(anyMatcher{}))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       sqlDB,
		DriverName: "postgres",
	}), &gorm.Config{})
	require.NoError(t, err)

	return NewRepository(gdb), mock
}

func TestRepository_Save_InsertsRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	err := repo.Save("td9_futures", Snapshot{
		SavedAt:           time.Now().UTC(),
		CurrentDT:         time.Now().UTC(),
		TargetAggregate:   map[string]interface{}{},
		PositionAggregate: map[string]interface{}{},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Load_ArchiveNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{
		"id", "strategy_name", "snapshot_json", "schema_version", "saved_at",
	}))

	_, err := repo.Load("td9_futures")
	require.Error(t, err)
}

func TestRepository_Load_CorruptJSON(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{
		"id", "strategy_name", "snapshot_json", "schema_version", "saved_at",
	}).AddRow(1, "td9_futures", "not json", 1, time.Now()))

	_, err := repo.Load("td9_futures")
	require.Error(t, err)
}

func TestRepository_Load_MissingSchemaVersion(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{
		"id", "strategy_name", "snapshot_json", "schema_version", "saved_at",
	}).AddRow(1, "td9_futures", `{"target_aggregate":{}}`, 0, time.Now()))

	_, err := repo.Load("td9_futures")
	require.Error(t, err)
}

func TestRepository_Cleanup_DeletesOldRows(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err := repo.Cleanup("td9_futures", 30)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
