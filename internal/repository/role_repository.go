package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/iliyamo/weighbridge-ops/internal/model"
)

// RoleRepo reads and maintains the RBAC tables: roles, permissions and the
// role_permissions matrix.
type RoleRepo struct{ DB *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{DB: db} }

// HasPermission reports whether the role named roleName is granted the
// permission named perm. It reads the matrix on every call, so changes are
// visible immediately.
func (r *RoleRepo) HasPermission(ctx context.Context, roleName, perm string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx,
		`SELECT 1 FROM role_permissions rp
		 JOIN roles r ON r.id = rp.role_id
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE r.name=? AND p.name=? LIMIT 1`,
		roleName, perm).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PermissionNames lists every permission granted to roleName, sorted.
func (r *RoleRepo) PermissionNames(ctx context.Context, roleName string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT p.name FROM role_permissions rp
		 JOIN roles r ON r.id = rp.role_id
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE r.name=? ORDER BY p.name`,
		roleName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// GetByName fetches a role by name.
func (r *RoleRepo) GetByName(ctx context.Context, name string) (*model.Role, error) {
	return r.getOne(ctx, "SELECT id, name FROM roles WHERE name=? LIMIT 1", name)
}

// GetByID fetches a role by id.
func (r *RoleRepo) GetByID(ctx context.Context, id string) (*model.Role, error) {
	return r.getOne(ctx, "SELECT id, name FROM roles WHERE id=? LIMIT 1", id)
}

func (r *RoleRepo) getOne(ctx context.Context, query, arg string) (*model.Role, error) {
	var role model.Role
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(&role.ID, &role.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// List returns all roles ordered by name.
func (r *RoleRepo) List(ctx context.Context) ([]model.Role, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT id, name FROM roles ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := []model.Role{}
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UpsertRole returns the role named name, creating it when missing.
func (r *RoleRepo) UpsertRole(ctx context.Context, name string) (*model.Role, error) {
	if err := r.insertNamed(ctx, "roles", name); err != nil {
		return nil, err
	}
	return r.GetByName(ctx, name)
}

// UpsertPermission returns the permission named name, creating it when
// missing.
func (r *RoleRepo) UpsertPermission(ctx context.Context, name string) (*model.Permission, error) {
	if err := r.insertNamed(ctx, "permissions", name); err != nil {
		return nil, err
	}
	var p model.Permission
	if err := r.DB.QueryRowContext(ctx, "SELECT id, name FROM permissions WHERE name=? LIMIT 1", name).
		Scan(&p.ID, &p.Name); err != nil {
		return nil, err
	}
	return &p, nil
}

// insertNamed inserts into a (id, name) table, treating an existing name
// as success. table is always a constant from this file.
func (r *RoleRepo) insertNamed(ctx context.Context, table, name string) error {
	_, err := r.DB.ExecContext(ctx, "INSERT INTO "+table+" (id, name) VALUES (?,?)", uuid.NewString(), name)
	if err != nil && !isUniqueViolation(err) {
		return err
	}
	return nil
}

// Grant adds a cell to the matrix. Granting twice is a no-op.
func (r *RoleRepo) Grant(ctx context.Context, roleID, permissionID string) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO role_permissions (role_id, permission_id) VALUES (?,?)", roleID, permissionID)
	if err != nil && !isUniqueViolation(err) {
		return err
	}
	return nil
}

// RevokePermission removes a cell from the matrix.
func (r *RoleRepo) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM role_permissions WHERE role_id=? AND permission_id=?", roleID, permissionID)
	return err
}
