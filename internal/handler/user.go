package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/weighbridge-ops/internal/apperr"
	"github.com/iliyamo/weighbridge-ops/internal/logging"
	"github.com/iliyamo/weighbridge-ops/internal/middleware"
	"github.com/iliyamo/weighbridge-ops/internal/model"
	"github.com/iliyamo/weighbridge-ops/internal/repository"
	"github.com/iliyamo/weighbridge-ops/internal/service"
	"github.com/iliyamo/weighbridge-ops/internal/utils"
)

// UserHandler serves the account administration endpoints and the
// caller's own profile.
type UserHandler struct {
	Users      *repository.UserRepo
	Roles      *repository.RoleRepo
	Sessions   *repository.TokenRepo
	BcryptCost int
	Log        *zap.Logger
}

// NewUserHandler constructs a UserHandler and panics if a repository is nil.
func NewUserHandler(users *repository.UserRepo, roles *repository.RoleRepo, sessions *repository.TokenRepo, bcryptCost int, log *zap.Logger) *UserHandler {
	if users == nil || roles == nil || sessions == nil {
		panic("nil repository passed to NewUserHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &UserHandler{Users: users, Roles: roles, Sessions: sessions, BcryptCost: bcryptCost, Log: log}
}

var (
	errUserNotFound  = apperr.NotFound("User not found")
	errEmailInUse    = apperr.Conflict("Email is already in use")
	errEmailTaken    = apperr.Conflict("Email is already in use by another account.")
	errRoleNotFound  = apperr.BadRequest("Role not found")
	errDeleteSelf    = apperr.Forbidden("Action forbidden: You cannot delete your own account.")
	errUserIDMissing = apperr.Unauthenticated(apperr.CodeUnauthorized, "Unauthorized")
)

type userSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	RoleID string `json:"roleId"`
}

func summarize(u *model.User) userSummary {
	return userSummary{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.RoleName, RoleID: u.RoleID}
}

type createUserReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	RoleID   string `json:"roleId"`
}

type updateUserReq struct {
	Name   *string `json:"name"`
	Email  *string `json:"email"`
	RoleID *string `json:"roleId"`
}

// Profile handles GET /api/users/profile for the authenticated caller. It
// includes the permissions of the caller's role and the number of devices
// holding a live refresh token.
func (h *UserHandler) Profile(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == "" {
		return errUserIDMissing
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return errUserNotFound
	}
	if err != nil {
		return err
	}
	perms, err := h.Roles.PermissionNames(ctx, u.RoleName)
	if err != nil {
		return err
	}
	active, err := h.Sessions.ListActiveByUser(ctx, u.ID, time.Now().UTC())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":             u.ID,
		"name":           u.Name,
		"email":          u.Email,
		"role":           u.RoleName,
		"permissions":    perms,
		"activeSessions": len(active),
	})
}

// List handles GET /api/users with ?search, ?page and ?limit.
func (h *UserHandler) List(c echo.Context) error {
	page, limit, offset := pagination(c)
	ctx, cancel := dbContext(c)
	defer cancel()

	users, total, err := h.Users.List(ctx, c.QueryParam("search"), limit, offset)
	if err != nil {
		return err
	}
	out := make([]userSummary, 0, len(users))
	for i := range users {
		out = append(out, summarize(&users[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"users":       out,
		"totalPages":  totalPages(total, limit),
		"currentPage": page,
	})
}

// Create handles POST /api/users: an administrator creates an account with
// an explicit role.
func (h *UserHandler) Create(c echo.Context) error {
	var req createUserReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	fields := service.ValidateAccount(req.Name, req.Email, req.Password, true)
	if strings.TrimSpace(req.RoleID) == "" {
		fields["roleId"] = "A role is required"
	}
	if len(fields) > 0 {
		return apperr.Validation("Validation failed", fields)
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	role, err := h.Roles.GetByID(ctx, req.RoleID)
	if errors.Is(err, repository.ErrRoleNotFound) {
		return errRoleNotFound
	}
	if err != nil {
		return err
	}
	hash, err := utils.HashPassword(req.Password, h.BcryptCost)
	if err != nil {
		return err
	}
	u := &model.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        req.Email,
		PasswordHash: hash,
		RoleID:       role.ID,
		RoleName:     role.Name,
	}
	if err := h.Users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return errEmailInUse
		}
		return err
	}
	logging.FromContext(ctx, h.Log).Info("user created",
		zap.String("user_id", u.ID), zap.String("role", role.Name), zap.String("by", middleware.UserID(c)))
	return c.JSON(http.StatusCreated, echo.Map{"message": "User created successfully", "user": summarize(u)})
}

// ListRoles handles GET /api/users/roles.
func (h *UserHandler) ListRoles(c echo.Context) error {
	ctx, cancel := dbContext(c)
	defer cancel()

	roles, err := h.Roles.List(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, roles)
}

// Get handles GET /api/users/:id.
func (h *UserHandler) Get(c echo.Context) error {
	ctx, cancel := dbContext(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		return errUserNotFound
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"id": u.ID, "name": u.Name, "email": u.Email, "roleId": u.RoleID})
}

// Update handles PUT /api/users/:id. Only the fields present in the body
// change.
func (h *UserHandler) Update(c echo.Context) error {
	var req updateUserReq
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	fields := map[string]string{}
	if req.Name != nil && len([]rune(strings.TrimSpace(*req.Name))) < 2 {
		fields["name"] = "Name must be at least 2 characters long"
	}
	if req.Email != nil && !service.ValidEmail(*req.Email) {
		fields["email"] = "Invalid email address"
	}
	if req.RoleID != nil && strings.TrimSpace(*req.RoleID) == "" {
		fields["roleId"] = "Role ID cannot be empty"
	}
	if len(fields) > 0 {
		return apperr.Validation("Validation failed", fields)
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	if req.RoleID != nil {
		if _, err := h.Roles.GetByID(ctx, *req.RoleID); err != nil {
			if errors.Is(err, repository.ErrRoleNotFound) {
				return errRoleNotFound
			}
			return err
		}
	}
	upd := repository.UserUpdate{Email: req.Email, RoleID: req.RoleID}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		upd.Name = &name
	}
	switch err := h.Users.Update(ctx, c.Param("id"), upd); {
	case errors.Is(err, repository.ErrNotFound):
		return errUserNotFound
	case errors.Is(err, repository.ErrEmailExists):
		return errEmailTaken
	case err != nil:
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "User updated successfully"})
}

// Delete handles DELETE /api/users/:id. Administrators cannot delete
// themselves. The deleted user's sessions are revoked.
func (h *UserHandler) Delete(c echo.Context) error {
	id := c.Param("id")
	if id == middleware.UserID(c) {
		return errDeleteSelf
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	if err := h.Users.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errUserNotFound
		}
		return err
	}
	if n, err := h.Sessions.RevokeAllForUser(ctx, id); err != nil {
		logging.FromContext(ctx, h.Log).Warn("revoking sessions of deleted user failed", zap.String("user_id", id), zap.Error(err))
	} else if n > 0 {
		logging.FromContext(ctx, h.Log).Info("sessions of deleted user revoked", zap.String("user_id", id), zap.Int64("count", n))
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "User deleted successfully"})
}
