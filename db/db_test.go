package db

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/cadence/errors"
)

func TestOpen(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer db.Close()

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, SQLiteBusyTimeoutMS, busyTimeout)
}

func TestOpenInvalidPath(t *testing.T) {
	db, err := Open("/invalid/nonexistent/path/db.sqlite", nil)
	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, fmt.Sprintf("%+v", err), "connection.go")
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"schema_migrations", "schedules", "generation_jobs", "schedule_executions", "characters", "content_items", "entity_images"} {
		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n))
		assert.Equal(t, 1, n, "table %s should exist", table)
	}

	pending, err := Pending(db)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, Migrate(db, nil))

	files, err := migrationFiles()
	require.NoError(t, err)
	var recorded int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&recorded))
	assert.Equal(t, len(files), recorded)
}

func TestPendingOnFreshDatabase(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "fresh.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	pending, err := Pending(db)
	require.NoError(t, err)
	require.NotEmpty(t, pending)
	assert.Equal(t, "000_create_schema_migrations.sql", pending[0])
}

func TestTimeRoundTripPreservesOrdering(t *testing.T) {
	a := time.Date(2026, 1, 2, 3, 4, 5, 6, time.FixedZone("X", 3600))
	b := a.Add(time.Nanosecond)

	assert.Less(t, FormatTime(a), FormatTime(b))
	assert.Len(t, FormatTime(a), len(TimeLayout))

	parsed, err := ParseTime(FormatTime(a))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(a))

	rfc, err := ParseTime("2026-01-02T03:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, 2026, rfc.Year())

	_, err = ParseTime("yesterday")
	assert.Error(t, err)
}

func TestParseNullTime(t *testing.T) {
	got, err := ParseNullTime(sql.NullString{})
	require.NoError(t, err)
	assert.Nil(t, got)

	now := time.Now()
	got, err = ParseNullTime(FormatTimePtr(&now))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(now.UTC()))
}

func TestIsDatabaseClosed(t *testing.T) {
	assert.False(t, IsDatabaseClosed(nil))
	assert.True(t, IsDatabaseClosed(errors.Wrap(ErrDatabaseClosed, "query")))
	assert.True(t, IsDatabaseClosed(errors.New("sql: database is closed")))
	assert.False(t, IsDatabaseClosed(errors.New("no such table")))
	assert.True(t, IsBusy(errors.New("database is locked")))
}
