package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// newTestDB opens an in-memory SQLite database with the package's
// standard pragmas and schema already applied, for unit tests.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(context.Background(), Config{
		Path:            ":memory:",
		MaxOpenConns:    1,
		ConnMaxLifetime: time.Hour,
		MmapSize:        0,
		BusyTimeout:     5000,
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestSchemaMigration_MissingDeletedColumn covers spec scenario S6: a
// database previously written without buckets.deleted must open
// cleanly, gain the column with a false default, and keep serving its
// prior rows.
func TestSchemaMigration_MissingDeletedColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	// Simulate a pre-existing database written before the deleted
	// tombstone column existed: create the buckets table by hand,
	// without it, and mark migration 1 as already applied so NewDB's
	// CREATE TABLE IF NOT EXISTS step is a no-op.
	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = raw.Exec(`
		CREATE TABLE schema_migrations (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL DEFAULT (datetime('now')));
		INSERT INTO schema_migrations (version) VALUES (1);
		CREATE TABLE users (
			id TEXT PRIMARY KEY, tenant TEXT NOT NULL DEFAULT '', ns TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '', email TEXT NOT NULL DEFAULT '',
			access_keys BLOB, swift_keys BLOB, sub_users BLOB, caps BLOB, placement_tags BLOB,
			quota BLOB, temp_url_keys BLOB, mfa_ids BLOB, suspended INTEGER NOT NULL DEFAULT 0,
			max_buckets INTEGER NOT NULL DEFAULT 1000, op_mask INTEGER NOT NULL DEFAULT 0,
			system INTEGER NOT NULL DEFAULT 0, admin INTEGER NOT NULL DEFAULT 0,
			assumed_role_arn TEXT NOT NULL DEFAULT '', user_attrs BLOB,
			password_hash TEXT NOT NULL DEFAULT '', created_at TEXT NOT NULL, updated_at TEXT NOT NULL,
			user_version INTEGER NOT NULL DEFAULT 0, user_version_tag TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE buckets (
			bucket_id TEXT PRIMARY KEY, name TEXT NOT NULL, tenant TEXT NOT NULL DEFAULT '',
			marker TEXT NOT NULL DEFAULT '', owner_id TEXT NOT NULL, flags INTEGER NOT NULL DEFAULT 0,
			zonegroup TEXT NOT NULL DEFAULT '', create_time TEXT NOT NULL,
			placement_name TEXT NOT NULL DEFAULT '', bucket_attrs BLOB, object_lock BLOB
		);
		INSERT INTO users (id, display_name, email, created_at, updated_at)
			VALUES ('u1', 'Legacy User', 'legacy@example.com', '2020-01-01T00:00:00Z', '2020-01-01T00:00:00Z');
		INSERT INTO buckets (bucket_id, name, owner_id, create_time)
			VALUES ('b1', 'legacy-bucket', 'u1', '2020-01-01T00:00:00Z');
	`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	// Opening through the package now must reconcile the missing
	// columns rather than failing.
	db, err := NewDB(context.Background(), Config{Path: path, MaxOpenConns: 1, BusyTimeout: 5000}, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	has, err := db.hasColumn(context.Background(), "buckets", "deleted")
	require.NoError(t, err)
	require.True(t, has, "deleted column must be added by reconciliation")

	bucketStore := NewBucketStore(db)
	b, err := bucketStore.GetBucket(context.Background(), "b1")
	require.NoError(t, err)
	require.Equal(t, "legacy-bucket", b.Name)
	require.False(t, b.Deleted, "reconciled deleted column must default to false")

	// Idempotent: opening a second time does not error or duplicate work.
	db2, err := NewDB(context.Background(), Config{Path: path, MaxOpenConns: 1, BusyTimeout: 5000}, zerolog.Nop())
	require.NoError(t, err)
	defer db2.Close()
}
