package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/weighbridge-ops/internal/model"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// UserUpdate carries the optional changes accepted by Update. Nil fields
// are left untouched.
type UserUpdate struct {
	Name         *string
	Email        *string
	RoleID       *string
	PasswordHash *string
}

const userSelect = `SELECT u.id, u.name, u.email, u.password_hash, u.role_id, r.name,
	u.password_reset_token_hash, u.password_reset_expires_at, u.created_at, u.updated_at
	FROM users u JOIN roles r ON r.id = u.role_id`

// NormalizeEmail is the canonical form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts u, assigning its ID and timestamps. PasswordHash must
// already be a bcrypt hash.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	now := time.Now().UTC()
	u.ID = uuid.NewString()
	u.Email = NormalizeEmail(u.Email)
	u.CreatedAt, u.UpdatedAt = now, now
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (id, name, email, password_hash, role_id, created_at, updated_at) VALUES (?,?,?,?,?,?,?)",
		u.ID, u.Name, u.Email, u.PasswordHash, u.RoleID, now, now)
	if isUniqueViolation(err) {
		return ErrEmailExists
	}
	return err
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, userSelect+" WHERE u.email=? LIMIT 1", NormalizeEmail(email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getOne(ctx, userSelect+" WHERE u.id=? LIMIT 1", id)
}

// GetByResetTokenHash fetches the user holding a pending reset token. The
// caller checks PasswordResetExpiresAt.
func (r *UserRepo) GetByResetTokenHash(ctx context.Context, hash string) (*model.User, error) {
	return r.getOne(ctx, userSelect+" WHERE u.password_reset_token_hash=? LIMIT 1", hash)
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg any) (*model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u         model.User
		resetHash sql.NullString
		resetExp  sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.RoleID, &u.RoleName,
		&resetHash, &resetExp, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if resetHash.Valid {
		u.PasswordResetTokenHash = &resetHash.String
	}
	if resetExp.Valid {
		t := resetExp.Time.UTC()
		u.PasswordResetExpiresAt = &t
	}
	return &u, nil
}

// List returns one page of users ordered by name, optionally filtered by a
// substring of name or email, together with the total number of matches.
func (r *UserRepo) List(ctx context.Context, search string, limit, offset int) ([]model.User, int, error) {
	where, args := "", []any{}
	if s := strings.TrimSpace(search); s != "" {
		where = " WHERE (u.name LIKE ? ESCAPE '!' OR u.email LIKE ? ESCAPE '!')"
		like := containsPattern(s)
		args = append(args, like, like)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users u"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.DB.QueryContext(ctx,
		userSelect+where+" ORDER BY u.name ASC, u.id ASC LIMIT ? OFFSET ?",
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]model.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}

// likeEscaper escapes LIKE wildcards with '!'. A backslash would need
// different quoting in MySQL and SQLite.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// containsPattern is a LIKE pattern matching s literally anywhere in the
// column. Use it with ESCAPE '!'.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// Update applies the non-nil fields of upd. It returns ErrNotFound when the
// user does not exist and ErrEmailExists on an email clash.
func (r *UserRepo) Update(ctx context.Context, id string, upd UserUpdate) error {
	sets, args := []string{}, []any{}
	if upd.Name != nil {
		sets, args = append(sets, "name=?"), append(args, *upd.Name)
	}
	if upd.Email != nil {
		sets, args = append(sets, "email=?"), append(args, NormalizeEmail(*upd.Email))
	}
	if upd.RoleID != nil {
		sets, args = append(sets, "role_id=?"), append(args, *upd.RoleID)
	}
	if upd.PasswordHash != nil {
		sets, args = append(sets, "password_hash=?"), append(args, *upd.PasswordHash)
	}
	sets, args = append(sets, "updated_at=?"), append(args, time.Now().UTC(), id)

	res, err := r.DB.ExecContext(ctx, "UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id=?", args...)
	if isUniqueViolation(err) {
		return ErrEmailExists
	}
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// Delete removes a user. Refresh token rows are kept.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// SetResetToken stores the hash and expiry of a freshly issued reset
// token, replacing any previous one.
func (r *UserRepo) SetResetToken(ctx context.Context, id, hash string, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_reset_token_hash=?, password_reset_expires_at=?, updated_at=? WHERE id=?",
		hash, expiresAt.UTC(), time.Now().UTC(), id)
	return err
}

// ClearResetToken drops any pending reset token.
func (r *UserRepo) ClearResetToken(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_reset_token_hash=NULL, password_reset_expires_at=NULL, updated_at=? WHERE id=?",
		time.Now().UTC(), id)
	return err
}

// ConsumeResetToken sets a new password hash and clears the reset fields,
// but only while the row still holds hash. Two concurrent resets with the
// same token therefore succeed at most once; the loser gets ErrNotFound.
func (r *UserRepo) ConsumeResetToken(ctx context.Context, id, hash, newPasswordHash string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET password_hash=?, password_reset_token_hash=NULL, password_reset_expires_at=NULL, updated_at=?
		 WHERE id=? AND password_reset_token_hash=?`,
		newPasswordHash, time.Now().UTC(), id, hash)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
