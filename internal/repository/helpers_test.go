package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/weighbridge-ops/internal/database"
	"github.com/iliyamo/weighbridge-ops/internal/model"
)

// testDB opens a file-backed SQLite database in a temp dir with the
// migrations applied. A file (rather than :memory:) keeps every
// pooled connection on the same database.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.ApplySchema(context.Background(), db, database.DriverSQLite))
	return db
}

// seedUser creates a role (if needed) and a user holding it.
func seedUser(t *testing.T, db *sql.DB, email, roleName string) *model.User {
	t.Helper()
	ctx := context.Background()
	role, err := NewRoleRepo(db).UpsertRole(ctx, roleName)
	require.NoError(t, err)
	u := &model.User{Name: "Test " + roleName, Email: email, PasswordHash: "hash", RoleID: role.ID}
	require.NoError(t, NewUserRepo(db).Create(ctx, u))
	return u
}
