package handler

import (
	"net/http" // HTTP status codes

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/weighbridge-ops/internal/apperr"
	"github.com/iliyamo/weighbridge-ops/internal/service"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Auth    *service.AuthService
	Cookies CookieOptions
}

func NewAuthHandler(auth *service.AuthService, cookies CookieOptions) *AuthHandler {
	return &AuthHandler{Auth: auth, Cookies: cookies}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotReq struct {
	Email string `json:"email"`
}

type resetReq struct {
	Password string `json:"password"`
}

// sessionResp is the body of a successful login or refresh. The refresh
// token travels only in the cookie.
type sessionResp struct {
	AccessToken string              `json:"accessToken"`
	User        service.UserProfile `json:"user"`
}

// Register: create an account with the default role. No session is opened.
func (h *AuthHandler) Register(c echo.Context) error {
	var req service.RegisterInput
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	if _, err := h.Auth.Register(ctx, req); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "User registered successfully"})
}

// Login: verify credentials, set the refresh cookie, return the access token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	sess, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return err
	}
	setRefreshCookie(c, h.Cookies, sess.RefreshToken.Raw)
	return c.JSON(http.StatusOK, sessionResp{AccessToken: sess.AccessToken, User: sess.User})
}

// Refresh: rotate the refresh cookie and return a new access token. Every
// 403 clears the cookie so the client stops presenting a dead token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx, cancel := dbContext(c)
	defer cancel()

	sess, err := h.Auth.Refresh(ctx, refreshCookie(c))
	if err != nil {
		if apperr.From(err).Status == http.StatusForbidden {
			clearRefreshCookie(c, h.Cookies)
		}
		return err
	}
	setRefreshCookie(c, h.Cookies, sess.RefreshToken.Raw)
	return c.JSON(http.StatusOK, sessionResp{AccessToken: sess.AccessToken, User: sess.User})
}

// Logout: revoke the presented refresh token, if any, and clear the cookie.
// Always 200.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx, cancel := dbContext(c)
	defer cancel()

	h.Auth.Logout(ctx, refreshCookie(c))
	clearRefreshCookie(c, h.Cookies)
	return c.JSON(http.StatusOK, echo.Map{"message": "Logged out successfully"})
}

// ForgotPassword: start a reset. The response does not reveal whether the
// email belongs to an account.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	if err := h.Auth.ForgotPassword(ctx, req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": service.MsgForgotPassword})
}

// ResetPassword: set a new password with the token from the reset link.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	if err := h.Auth.ResetPassword(ctx, c.Param("token"), req.Password); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": service.MsgPasswordResetDone})
}
