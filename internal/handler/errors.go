package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/weighbridge-ops/internal/apperr"
	"github.com/iliyamo/weighbridge-ops/internal/logging"
)

// ErrorHandler is the service's echo.HTTPErrorHandler. *apperr.Error values
// are rendered as {"message","code","errors"} with their status; Echo's own
// errors (unknown route, bad body) keep their status with a matching code;
// anything else becomes a logged 500 whose cause never reaches the client.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		ae := toAppError(err)
		if ae.Status >= http.StatusInternalServerError {
			logging.FromContext(c.Request().Context(), log).Error("request failed",
				zap.Int("status", ae.Status), zap.String("code", ae.Code), zap.Error(err))
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(ae.Status)
		} else {
			werr = c.JSON(ae.Status, ae.Body())
		}
		if werr != nil {
			logging.FromContext(c.Request().Context(), log).Warn("writing error response failed", zap.Error(werr))
		}
	}
}

func toAppError(err error) *apperr.Error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		switch {
		case he.Code == http.StatusNotFound:
			return apperr.NotFound(msg)
		case he.Code == http.StatusUnauthorized:
			return apperr.Unauthenticated(apperr.CodeUnauthorized, msg)
		case he.Code == http.StatusForbidden:
			return apperr.Forbidden(msg)
		case he.Code >= 400 && he.Code < 500:
			return &apperr.Error{Kind: apperr.KindValidation, Status: he.Code, Code: httpCode(he.Code), Message: msg, Err: err}
		default:
			return apperr.Internal("", err)
		}
	}
	return apperr.Internal("", err)
}

func httpCode(status int) string {
	switch status {
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	default:
		return apperr.CodeValidation
	}
}
