package handler

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/weighbridge-ops/internal/apperr"
)

// dbTimeout bounds the store calls made while serving one request.
const dbTimeout = 5 * time.Second

var errInvalidBody = apperr.BadRequest("Invalid request body")

func dbContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// bindJSON decodes the request body into dst, reporting a malformed body
// as a 400 instead of Echo's plain-text error.
func bindJSON(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return errInvalidBody
	}
	return nil
}

// pagination reads ?page and ?limit. Missing or invalid values fall back
// to page 1 and 10 rows; limit is capped at 100. page is capped so the
// offset stays within a 32-bit signed integer.
func pagination(c echo.Context) (page, limit, offset int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	if maxPage := math.MaxInt32/limit + 1; page > maxPage {
		page = maxPage
	}
	return page, limit, (page - 1) * limit
}

func totalPages(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
