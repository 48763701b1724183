package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleRepo_HasPermissionTracksMatrix(t *testing.T) {
	db := testDB(t)
	repo := NewRoleRepo(db)
	ctx := context.Background()

	role, err := repo.UpsertRole(ctx, "USER")
	require.NoError(t, err)
	perm, err := repo.UpsertPermission(ctx, "READ_ITEMS")
	require.NoError(t, err)

	ok, err := repo.HasPermission(ctx, "USER", "READ_ITEMS")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Grant(ctx, role.ID, perm.ID))
	require.NoError(t, repo.Grant(ctx, role.ID, perm.ID))
	ok, err = repo.HasPermission(ctx, "USER", "READ_ITEMS")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.RevokePermission(ctx, role.ID, perm.ID))
	ok, err = repo.HasPermission(ctx, "USER", "READ_ITEMS")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.HasPermission(ctx, "GHOST", "READ_ITEMS")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRoleRepo_UpsertIsIdempotent(t *testing.T) {
	db := testDB(t)
	repo := NewRoleRepo(db)
	ctx := context.Background()

	first, err := repo.UpsertRole(ctx, "ADMIN")
	require.NoError(t, err)
	second, err := repo.UpsertRole(ctx, "ADMIN")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = repo.UpsertRole(ctx, "USER")
	require.NoError(t, err)
	roles, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "ADMIN", roles[0].Name)

	byID, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "ADMIN", byID.Name)
	_, err = repo.GetByName(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestRoleRepo_PermissionNames(t *testing.T) {
	db := testDB(t)
	repo := NewRoleRepo(db)
	ctx := context.Background()
	role, err := repo.UpsertRole(ctx, "USER")
	require.NoError(t, err)
	for _, name := range []string{"READ_PROFILE", "READ_ITEMS"} {
		p, err := repo.UpsertPermission(ctx, name)
		require.NoError(t, err)
		require.NoError(t, repo.Grant(ctx, role.ID, p.ID))
	}

	names, err := repo.PermissionNames(ctx, "USER")
	require.NoError(t, err)
	assert.Equal(t, []string{"READ_ITEMS", "READ_PROFILE"}, names)

	none, err := repo.PermissionNames(ctx, "NOBODY")
	require.NoError(t, err)
	assert.Empty(t, none)
}
