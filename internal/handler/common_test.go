package handler

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestPaginationPageCap(t *testing.T) {
	cases := []struct {
		query               string
		page, limit, offset int
	}{
		{"", 1, 10, 0},
		{"?page=3&limit=20", 3, 20, 40},
		{"?page=-2&limit=0", 1, 10, 0},
		{"?limit=500", 1, 100, 0},
		{"?page=abc", 1, 10, 0},
		{"?page=9223372036854775807&limit=100", math.MaxInt32/100 + 1, 100, (math.MaxInt32 / 100) * 100},
		{"?page=99999999999999999999", math.MaxInt32/10 + 1, 10, (math.MaxInt32 / 10) * 10},
	}
	e := echo.New()
	for _, tc := range cases {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/items"+tc.query, nil), httptest.NewRecorder())
		page, limit, offset := pagination(c)
		assert.Equal(t, tc.page, page, tc.query)
		assert.Equal(t, tc.limit, limit, tc.query)
		assert.Equal(t, tc.offset, offset, tc.query)
		assert.GreaterOrEqual(t, offset, 0, tc.query)
	}
}
