package model

import "time"

// User represents an application account as stored in the `users` table.
// The role name is not a column of its own; repositories populate RoleName
// by joining the roles table so handlers and token issuance never need a
// second query.
//
// Fields:
//
//	ID                     – uuid primary key.
//	Name                   – display name.
//	Email                  – unique login identifier.
//	PasswordHash           – bcrypt hash.
//	RoleID                 – foreign key into roles.
//	RoleName               – roles.name resolved through RoleID.
//	PasswordResetTokenHash – SHA-256 of a pending reset token (nil when none).
//	PasswordResetExpiresAt – expiry of the pending reset token.
type User struct {
	ID                     string     // users.id
	Name                   string     // users.name
	Email                  string     // users.email
	PasswordHash           string     // users.password_hash
	RoleID                 string     // users.role_id
	RoleName               string     // roles.name (joined)
	PasswordResetTokenHash *string    // users.password_reset_token_hash (nullable)
	PasswordResetExpiresAt *time.Time // users.password_reset_expires_at (nullable)
	CreatedAt              time.Time  // users.created_at
	UpdatedAt              time.Time  // users.updated_at
}

// Role is a row of the `roles` table. The set of roles is fixed at seeding
// time (ADMIN, USER).
type Role struct {
	ID   string `json:"id"`   // roles.id
	Name string `json:"name"` // roles.name
}

// Role names created by the seeder.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// Permission is a named capability from the `permissions` catalogue.
type Permission struct {
	ID   string // permissions.id
	Name string // permissions.name
}

// Permission names checked by the HTTP routes. The full catalogue,
// including the weighbridge module permissions, lives in the seed matrix.
const (
	PermReadProfile = "READ_PROFILE"
	PermReadUsers   = "READ_USERS"
	PermCreateUser  = "CREATE_USER"
	PermUpdateUser  = "UPDATE_USER"
	PermDeleteUser  = "DELETE_USER"
	PermReadItems   = "READ_ITEMS"
	PermCreateItem  = "CREATE_ITEM"
	PermUpdateItem  = "UPDATE_ITEM"
	PermDeleteItem  = "DELETE_ITEM"
)

// RolePermission is one cell of the authorization matrix.
type RolePermission struct {
	RoleID       string // role_permissions.role_id
	PermissionID string // role_permissions.permission_id
}

// RefreshToken models a row of the `refresh_tokens` table. Only the SHA-256
// hash of the token the client holds is stored. Rows are never deleted; a
// token ends its life either by revocation or by passing ExpiresAt.
type RefreshToken struct {
	ID        string    // refresh_tokens.id
	TokenHash string    // refresh_tokens.token_hash
	UserID    string    // refresh_tokens.user_id
	ExpiresAt time.Time // refresh_tokens.expires_at
	IsRevoked bool      // refresh_tokens.is_revoked
	CreatedAt time.Time // refresh_tokens.created_at
}

// Expired reports whether the token is past its expiry at the given instant.
func (t RefreshToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// Active reports whether the token can still be exchanged.
func (t RefreshToken) Active(now time.Time) bool {
	return !t.IsRevoked && !t.Expired(now)
}
