package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRepo_CreateAndLookup(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepo(db)
	ctx := context.Background()
	exp := time.Now().UTC().Add(time.Hour)

	require.NoError(t, repo.Create(ctx, "hash-a", "user-1", exp))

	tok, err := repo.Lookup(ctx, "hash-a")
	require.NoError(t, err)
	assert.Equal(t, "user-1", tok.UserID)
	assert.False(t, tok.IsRevoked)
	assert.WithinDuration(t, exp, tok.ExpiresAt, time.Second)
	assert.True(t, tok.Active(time.Now()))

	_, err = repo.Lookup(ctx, "missing")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestTokenRepo_CreateDuplicateHash(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepo(db)
	ctx := context.Background()
	exp := time.Now().UTC().Add(time.Hour)

	require.NoError(t, repo.Create(ctx, "dup", "user-1", exp))
	assert.ErrorIs(t, repo.Create(ctx, "dup", "user-2", exp), ErrDuplicateToken)
}

func TestTokenRepo_Rotate(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepo(db)
	ctx := context.Background()
	exp := time.Now().UTC().Add(time.Hour)
	require.NoError(t, repo.Create(ctx, "old", "user-1", exp))

	require.NoError(t, repo.Rotate(ctx, "old", "new", "user-1", exp))

	old, err := repo.Lookup(ctx, "old")
	require.NoError(t, err)
	assert.True(t, old.IsRevoked)
	fresh, err := repo.Lookup(ctx, "new")
	require.NoError(t, err)
	assert.False(t, fresh.IsRevoked)

	// Second use of the same old token fails and writes nothing.
	err = repo.Rotate(ctx, "old", "newer", "user-1", exp)
	assert.ErrorIs(t, err, ErrSessionNotActive)
	_, err = repo.Lookup(ctx, "newer")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestTokenRepo_RotateDuplicateNewHashRollsBack(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepo(db)
	ctx := context.Background()
	exp := time.Now().UTC().Add(time.Hour)
	require.NoError(t, repo.Create(ctx, "old", "user-1", exp))
	require.NoError(t, repo.Create(ctx, "taken", "user-2", exp))

	err := repo.Rotate(ctx, "old", "taken", "user-1", exp)
	assert.ErrorIs(t, err, ErrDuplicateToken)

	old, err := repo.Lookup(ctx, "old")
	require.NoError(t, err)
	assert.False(t, old.IsRevoked, "revoke must be rolled back with the failed insert")
}

func TestTokenRepo_ConcurrentRotateSucceedsOnce(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepo(db)
	ctx := context.Background()
	exp := time.Now().UTC().Add(time.Hour)
	require.NoError(t, repo.Create(ctx, "shared", "user-1", exp))

	const racers = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		denied  int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.Rotate(ctx, "shared", "next-"+string(rune('a'+i)), "user-1", exp)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrSessionNotActive):
				denied++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, racers-1, denied)
	active, err := repo.ListActiveByUser(ctx, "user-1", time.Now().UTC())
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestTokenRepo_RevokeAndListActive(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, "a", "user-1", now.Add(time.Hour)))
	require.NoError(t, repo.Create(ctx, "b", "user-1", now.Add(time.Hour)))
	require.NoError(t, repo.Create(ctx, "expired", "user-1", now.Add(-time.Minute)))
	require.NoError(t, repo.Create(ctx, "other", "user-2", now.Add(time.Hour)))

	require.NoError(t, repo.Revoke(ctx, "a"))
	require.NoError(t, repo.Revoke(ctx, "a"))
	require.NoError(t, repo.Revoke(ctx, "unknown"))

	active, err := repo.ListActiveByUser(ctx, "user-1", now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "b", active[0].TokenHash)

	n, err := repo.RevokeAllForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n) // b and the expired row
	other, err := repo.Lookup(ctx, "other")
	require.NoError(t, err)
	assert.False(t, other.IsRevoked)
}
