package migrate

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

// openTestDB opens an in-memory SQLite database. The pool is pinned to
// one connection so every statement sees the same memory database.
func openTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunMigrations(t *testing.T) {
	t.Run("rejects unknown driver", func(t *testing.T) {
		db := openTestDB(t)
		err := RunMigrations(db, "oracle")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported database driver")
	})

	t.Run("creates the routing schema", func(t *testing.T) {
		db := openTestDB(t)
		require.NoError(t, RunMigrations(db, "sqlite"))

		for _, table := range []string{
			"documents",
			"routing_outbox",
			"routing_executions",
			"service_tokens",
		} {
			var name string
			err := db.QueryRow(
				"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
				table).Scan(&name)
			require.NoError(t, err, table)
			assert.Equal(t, table, name)
		}

		// The pending scan index is partial.
		var indexSQL string
		err := db.QueryRow(
			"SELECT sql FROM sqlite_master WHERE type = 'index' AND name = ?",
			"idx_routing_outbox_pending").Scan(&indexSQL)
		require.NoError(t, err)
		assert.Contains(t, indexSQL, "WHERE status = 'pending'")
	})

	t.Run("is repeatable", func(t *testing.T) {
		db := openTestDB(t)
		require.NoError(t, RunMigrations(db, "sqlite"))
		require.NoError(t, RunMigrations(db, "sqlite"))
	})

	t.Run("reports the applied version", func(t *testing.T) {
		db := openTestDB(t)
		require.NoError(t, RunMigrations(db, "sqlite"))

		version, dirty, err := GetMigrationVersion(db, "sqlite")
		require.NoError(t, err)
		assert.False(t, dirty)
		assert.Equal(t, uint(4), version)
	})

	t.Run("migrated schema accepts routing rows", func(t *testing.T) {
		db := openTestDB(t)
		require.NoError(t, RunMigrations(db, "sqlite"))

		_, err := db.Exec(`
			INSERT INTO documents (uuid, collection, fields, status)
			VALUES ('0d4cfb54-55a1-4efc-b88c-58f9e395e113', 'entities', '{"docId":"doc-1"}', 'received')`)
		require.NoError(t, err)

		var id int64
		require.NoError(t, db.QueryRow("SELECT id FROM documents").Scan(&id))
		assert.NotZero(t, id)
	})
}
