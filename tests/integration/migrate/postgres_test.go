package migrate

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/niranworks/compass/internal/migrate"
)

// startPostgres starts a PostgreSQL container and returns its DSN.
func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("compass"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	return dsn
}

func TestRunMigrations_Postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dsn := startPostgres(t, ctx)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, migrate.RunMigrations(db, "postgres"))

	t.Run("creates all routing tables", func(t *testing.T) {
		rows, err := db.QueryContext(ctx, `
			SELECT table_name FROM information_schema.tables
			WHERE table_schema = 'public' AND table_type = 'BASE TABLE'`)
		require.NoError(t, err)
		defer rows.Close()

		tables := make(map[string]bool)
		for rows.Next() {
			var name string
			require.NoError(t, rows.Scan(&name))
			tables[name] = true
		}
		require.NoError(t, rows.Err())

		for _, want := range []string{
			"documents",
			"routing_outbox",
			"routing_executions",
			"service_tokens",
		} {
			assert.True(t, tables[want], "missing table %s", want)
		}
	})

	t.Run("records the schema version", func(t *testing.T) {
		version, dirty, err := migrate.GetMigrationVersion(db, "postgres")
		require.NoError(t, err)
		assert.Equal(t, uint(4), version)
		assert.False(t, dirty)
	})

	var documentID int64
	t.Run("assigns generated document ids", func(t *testing.T) {
		// The database-specific pass attaches sequences to the portable
		// integer id columns, so inserts without an explicit id must work.
		err := db.QueryRowContext(ctx, `
			INSERT INTO documents (created_at, updated_at, uuid, collection, fields, status)
			VALUES (now(), now(), gen_random_uuid(), 'people', '{"entityType": "Person"}'::jsonb, 'received')
			RETURNING id`).Scan(&documentID)
		require.NoError(t, err)
		assert.Greater(t, documentID, int64(0))
	})

	t.Run("assigns generated outbox ids", func(t *testing.T) {
		var outboxID int64
		err := db.QueryRowContext(ctx, `
			INSERT INTO routing_outbox
				(created_at, updated_at, document_id, document_uuid, collection,
				 idempotent_key, content_hash, event_type, source, payload)
			VALUES
				(now(), now(), $1, gen_random_uuid(), 'people',
				 'key-1', 'hash-1', 'document.received', 'test', '{}'::jsonb)
			RETURNING id`, documentID).Scan(&outboxID)
		require.NoError(t, err)
		assert.Greater(t, outboxID, int64(0))
	})

	t.Run("enforces unique idempotent keys", func(t *testing.T) {
		_, err := db.ExecContext(ctx, `
			INSERT INTO routing_outbox
				(created_at, updated_at, document_id, document_uuid, collection,
				 idempotent_key, content_hash, event_type, source, payload)
			VALUES
				(now(), now(), $1, gen_random_uuid(), 'people',
				 'key-1', 'hash-2', 'document.updated', 'test', '{}'::jsonb)`,
			documentID)
		assert.Error(t, err, "duplicate idempotent key must be rejected")
	})

	t.Run("creates jsonb gin indexes", func(t *testing.T) {
		var count int
		err := db.QueryRowContext(ctx, `
			SELECT count(*) FROM pg_indexes
			WHERE indexname IN ('idx_documents_fields_gin', 'idx_routing_outbox_payload_gin')`).
			Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("is repeatable", func(t *testing.T) {
		require.NoError(t, migrate.RunMigrations(db, "postgres"))

		version, dirty, err := migrate.GetMigrationVersion(db, "postgres")
		require.NoError(t, err)
		assert.Equal(t, uint(4), version)
		assert.False(t, dirty)
	})
}
