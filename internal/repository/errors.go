// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services to distinguish between different failure scenarios without
// inspecting driver errors. For example, ErrSessionNotActive indicates that
// a refresh token was revoked between lookup and rotation, while
// ErrDuplicateToken signals a token hash collision the caller may retry.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a user or item does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an insert or update would duplicate
// users.email. Services translate it into an HTTP 409 response.
var ErrEmailExists = errors.New("email already exists")

// ErrRoleNotFound is returned when a role id or name is unknown.
var ErrRoleNotFound = errors.New("role not found")

// ErrTokenNotFound is returned by a refresh token lookup with no row.
var ErrTokenNotFound = errors.New("refresh token not found")

// ErrDuplicateToken is returned when a refresh token hash is already
// stored. Token ids make this practically impossible, so callers retry
// with a freshly generated token a bounded number of times.
var ErrDuplicateToken = errors.New("refresh token hash already stored")

// ErrSessionNotActive is returned by Rotate when the presented token is no
// longer active, typically because a concurrent refresh rotated it first.
var ErrSessionNotActive = errors.New("refresh session is not active")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isUniqueViolation reports whether err is a unique-key violation from
// either supported driver.
func isUniqueViolation(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
