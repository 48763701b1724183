package middleware

// identity.go defines the context keys the authentication gate fills and
// helpers shared across middleware files and handlers for reading them.

import "github.com/labstack/echo/v4"

// Context keys set by JWTAuth.
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

// UserID returns the authenticated user id, or "" when the request did not
// pass JWTAuth.
func UserID(c echo.Context) string {
	s, _ := c.Get(CtxUserID).(string)
	return s
}

// Role returns the role claim of the authenticated user, or "".
func Role(c echo.Context) string {
	s, _ := c.Get(CtxRole).(string)
	return s
}

// currentUserID is UserID with a placeholder for anonymous callers, for use
// in cache and rate limit keys.
func currentUserID(c echo.Context) string {
	if id := UserID(c); id != "" {
		return id
	}
	return "anon"
}

func deny(c echo.Context, status int, body map[string]any) error {
	return c.JSON(status, body)
}
