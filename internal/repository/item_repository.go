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

// ItemRepo provides data access to the items table.
type ItemRepo struct{ DB *sql.DB }

func NewItemRepo(db *sql.DB) *ItemRepo { return &ItemRepo{DB: db} }

const itemColumns = "id, name, description, quantity, created_at, updated_at"

// Create inserts it, assigning ID and timestamps.
func (r *ItemRepo) Create(ctx context.Context, it *model.Item) error {
	now := time.Now().UTC()
	it.ID = uuid.NewString()
	it.CreatedAt, it.UpdatedAt = now, now
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO items ("+itemColumns+") VALUES (?,?,?,?,?,?)",
		it.ID, it.Name, it.Description, it.Quantity, now, now)
	return err
}

// GetByID fetches an item or returns ErrNotFound.
func (r *ItemRepo) GetByID(ctx context.Context, id string) (*model.Item, error) {
	var it model.Item
	err := r.DB.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM items WHERE id=? LIMIT 1", id).
		Scan(&it.ID, &it.Name, &it.Description, &it.Quantity, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// List returns one page of items, newest first, optionally filtered by a
// substring of name or description, with the total number of matches.
func (r *ItemRepo) List(ctx context.Context, search string, limit, offset int) ([]model.Item, int, error) {
	where, args := "", []any{}
	if s := strings.TrimSpace(search); s != "" {
		where = " WHERE (name LIKE ? ESCAPE '!' OR description LIKE ? ESCAPE '!')"
		like := containsPattern(s)
		args = append(args, like, like)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM items"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+itemColumns+" FROM items"+where+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]model.Item, 0, limit)
	for rows.Next() {
		var it model.Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Description, &it.Quantity, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

// Update overwrites the editable fields of an existing item and refreshes
// it with the stored timestamps.
func (r *ItemRepo) Update(ctx context.Context, it *model.Item) error {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		"UPDATE items SET name=?, description=?, quantity=?, updated_at=? WHERE id=?",
		it.Name, it.Description, it.Quantity, now, it.ID)
	if err != nil {
		return err
	}
	if err := requireOneRow(res); err != nil {
		return err
	}
	stored, err := r.GetByID(ctx, it.ID)
	if err != nil {
		return err
	}
	*it = *stored
	return nil
}

// Delete removes an item or returns ErrNotFound.
func (r *ItemRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM items WHERE id=?", id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}
