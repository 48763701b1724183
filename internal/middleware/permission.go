package middleware // middleware provides shared request processing for handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4" // echo provides middleware chaining and context
	"go.uber.org/zap"

	"github.com/iliyamo/weighbridge-ops/internal/apperr"
)

// PermissionChecker answers whether a role holds a named permission.
// repository.RoleRepo asks the database every time; service.PermissionCache
// answers from memory.
type PermissionChecker interface {
	HasPermission(ctx context.Context, roleName, perm string) (bool, error)
}

var (
	errNoRole       = apperr.Forbidden("Forbidden: User role not available.")
	errNoPermission = apperr.Forbidden("Forbidden: You do not have permission to perform this action.")
	errCheckFailed  = apperr.Internal("Internal server error during permission check.", nil)
)

// RequirePermission returns a middleware that lets the request through
// only when the authenticated role holds perm. It must run after JWTAuth.
// The answer reflects the role matrix at request time, not at login.
func RequirePermission(checker PermissionChecker, perm string, log *zap.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := Role(c)
			if role == "" {
				permissionChecks.WithLabelValues(perm, "no_role").Inc()
				return deny(c, http.StatusForbidden, errNoRole.Body())
			}

			ok, err := checker.HasPermission(c.Request().Context(), role, perm)
			if err != nil {
				permissionChecks.WithLabelValues(perm, "error").Inc()
				log.Error("permission check failed",
					zap.String("role", role), zap.String("permission", perm), zap.Error(err))
				return deny(c, http.StatusInternalServerError, errCheckFailed.Body())
			}
			if !ok {
				permissionChecks.WithLabelValues(perm, "denied").Inc()
				return deny(c, http.StatusForbidden, errNoPermission.Body())
			}
			permissionChecks.WithLabelValues(perm, "allowed").Inc()
			return next(c)
		}
	}
}
