package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"errors"
	"strings" // string utilities for prefix checking and trimming

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/iliyamo/weighbridge-ops/internal/apperr"
	"github.com/iliyamo/weighbridge-ops/internal/utils"
)

// Authentication gate responses. An expired token is reported apart from
// an invalid one so clients know a refresh will help.
var (
	errTokenMissing = apperr.Unauthenticated(apperr.CodeTokenMissing, "Unauthorized: No token provided")
	errTokenExpired = apperr.TokenRejected(apperr.CodeTokenExpired, "Forbidden: Token has expired", nil)
	errTokenInvalid = apperr.TokenRejected(apperr.CodeTokenInvalid, "Forbidden: Invalid token", nil)
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects the token's user id and role claims into the request context. It
// never touches the database: a valid signature within its lifetime is
// enough. Handlers read the identity via UserID(c) and Role(c).
func JWTAuth(issuer *utils.TokenIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return deny(c, errTokenMissing.Status, errTokenMissing.Body())
			}

			claims, err := issuer.ParseAccessToken(raw)
			if err != nil {
				if errors.Is(err, utils.ErrTokenExpired) {
					return deny(c, errTokenExpired.Status, errTokenExpired.Body())
				}
				return deny(c, errTokenInvalid.Status, errTokenInvalid.Body())
			}

			c.Set(CtxUserID, claims.UserID)
			c.Set(CtxRole, claims.Role)
			return next(c)
		}
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	raw := strings.TrimSpace(header[len(prefix):])
	return raw, raw != ""
}
