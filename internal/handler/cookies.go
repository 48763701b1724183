package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RefreshCookieName is the cookie that carries the refresh token. Its value
// is never exposed to scripts or put in a response body.
const RefreshCookieName = "refreshToken"

// CookieOptions are the attributes shared by setting and clearing the
// refresh cookie. Browsers only drop a cookie when the clearing
// Set-Cookie repeats them.
type CookieOptions struct {
	Secure bool
	MaxAge time.Duration
}

func (o CookieOptions) base() *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookieName,
		Path:     "/",
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func setRefreshCookie(c echo.Context, o CookieOptions, raw string) {
	ck := o.base()
	ck.Value = raw
	ck.MaxAge = int(o.MaxAge / time.Second)
	ck.Expires = time.Now().Add(o.MaxAge)
	c.SetCookie(ck)
}

func clearRefreshCookie(c echo.Context, o CookieOptions) {
	ck := o.base()
	ck.MaxAge = -1
	ck.Expires = time.Unix(0, 0)
	c.SetCookie(ck)
}

func refreshCookie(c echo.Context) string {
	ck, err := c.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return ck.Value
}
