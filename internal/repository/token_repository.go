package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/weighbridge-ops/internal/model"
)

// TokenRepo persists refresh token records (single 'token_hash' column).
// It stores hashes only and never judges expiry itself: callers compare
// ExpiresAt against their own clock so the same code runs on MySQL and
// SQLite.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

const tokenColumns = "id, token_hash, user_id, expires_at, is_revoked, created_at"

// Create inserts an active refresh token row.
func (r *TokenRepo) Create(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	return insertToken(ctx, r.DB, tokenHash, userID, expiresAt)
}

// Rotate revokes oldHash and stores newHash in one transaction. The revoke
// is conditional on the row still being active, so of two concurrent
// rotations of the same token exactly one commits; the other gets
// ErrSessionNotActive and nothing is written.
func (r *TokenRepo) Rotate(ctx context.Context, oldHash, newHash, userID string, expiresAt time.Time) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET is_revoked=1 WHERE token_hash=? AND is_revoked=0",
		oldHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrSessionNotActive
	}

	if err := insertToken(ctx, tx, newHash, userID, expiresAt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Revoke marks a token as revoked. Unknown or already revoked hashes are
// not an error.
func (r *TokenRepo) Revoke(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET is_revoked=1 WHERE token_hash=? AND is_revoked=0",
		tokenHash)
	return err
}

// RevokeAllForUser revokes all user's active tokens and returns how many
// rows changed.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET is_revoked=1 WHERE user_id=? AND is_revoked=0",
		userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Lookup fetches a token record by hash, revoked or not.
func (r *TokenRepo) Lookup(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var t model.RefreshToken
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+tokenColumns+" FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&t.ID, &t.TokenHash, &t.UserID, &t.ExpiresAt, &t.IsRevoked, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListActiveByUser returns the user's tokens that are neither revoked nor
// expired at now, newest first.
func (r *TokenRepo) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]model.RefreshToken, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+tokenColumns+" FROM refresh_tokens WHERE user_id=? AND is_revoked=0 ORDER BY created_at DESC",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RefreshToken
	for rows.Next() {
		var t model.RefreshToken
		if err := rows.Scan(&t.ID, &t.TokenHash, &t.UserID, &t.ExpiresAt, &t.IsRevoked, &t.CreatedAt); err != nil {
			return nil, err
		}
		if t.Active(now) {
			out = append(out, t)
		}
	}
	return out, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertToken(ctx context.Context, db execer, tokenHash, userID string, expiresAt time.Time) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (id, token_hash, user_id, expires_at, is_revoked, created_at) VALUES (?,?,?,?,0,?)",
		uuid.NewString(), tokenHash, userID, expiresAt.UTC(), time.Now().UTC())
	if isUniqueViolation(err) {
		return ErrDuplicateToken
	}
	return err
}
