package database

import (
	"context"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_EveryDriverHasUpAndDown(t *testing.T) {
	for _, driver := range []string{DriverMySQL, DriverSQLite} {
		names, err := fs.Glob(migrationsFS, "migrations/"+driver+"/*.sql")
		require.NoError(t, err, driver)
		assert.Contains(t, names, "migrations/"+driver+"/000001_init.up.sql")
		assert.Contains(t, names, "migrations/"+driver+"/000001_init.down.sql")
	}
}

func TestApplySchema_SQLiteIsIdempotent(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "schema.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, ApplySchema(ctx, db, DriverSQLite))
	require.NoError(t, ApplySchema(ctx, db, DriverSQLite))

	var n int
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('roles','permissions','role_permissions','users','refresh_tokens','items')",
	).Scan(&n))
	assert.Equal(t, 6, n)

	var version int
	var dirty bool
	require.NoError(t, db.QueryRowContext(ctx, "SELECT version, dirty FROM schema_migrations").Scan(&version, &dirty))
	assert.Equal(t, 1, version)
	assert.False(t, dirty)

	// The pool must survive the migration run.
	require.NoError(t, db.PingContext(ctx))
}

func TestApplySchema_UnknownDriver(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "schema.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	assert.Error(t, ApplySchema(context.Background(), db, "postgres"))
}
