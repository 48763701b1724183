// Package service holds the authentication flows: registration, login,
// refresh token rotation, logout and the password reset flow. Handlers
// translate HTTP to these calls; every error returned here is either an
// *apperr.Error or an internal failure the error handler hides.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/weighbridge-ops/internal/apperr"
	"github.com/iliyamo/weighbridge-ops/internal/model"
	"github.com/iliyamo/weighbridge-ops/internal/repository"
	"github.com/iliyamo/weighbridge-ops/internal/utils"
)

// maxRefreshTokenAttempts bounds the generate-and-store loop for refresh
// tokens. Only a token hash collision is retried.
const maxRefreshTokenAttempts = 5

// Client-facing messages shared with the handlers.
const (
	MsgInvalidCredentials = "Invalid credentials"
	MsgNoRefreshToken     = "Unauthorized: No refresh token provided"
	MsgRefreshDenied      = "Forbidden: Invalid or expired refresh token"
	MsgUserNotFound       = "Forbidden: User not found"
)

// UserStore is the part of the user repository the flows need.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByResetTokenHash(ctx context.Context, hash string) (*model.User, error)
	SetResetToken(ctx context.Context, id, hash string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, id string) error
	ConsumeResetToken(ctx context.Context, id, hash, newPasswordHash string) error
}

// SessionStore persists refresh token records.
type SessionStore interface {
	Create(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	Rotate(ctx context.Context, oldHash, newHash, userID string, expiresAt time.Time) error
	Revoke(ctx context.Context, tokenHash string) error
	Lookup(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

// RoleStore resolves roles and their permissions.
type RoleStore interface {
	GetByName(ctx context.Context, name string) (*model.Role, error)
	PermissionNames(ctx context.Context, roleName string) ([]string, error)
}

// AuthOptions carries the tunables read from configuration.
type AuthOptions struct {
	BcryptCost           int
	ResetTokenTTL        time.Duration
	FrontendURL          string
	ResetRevokesSessions bool
}

// AuthService implements the authentication flows.
type AuthService struct {
	Users    UserStore
	Sessions SessionStore
	Roles    RoleStore
	Tokens   *utils.TokenIssuer
	Mail     Mailer
	Log      *zap.Logger
	Opts     AuthOptions
	Now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService wires the flows. log may be nil.
func NewAuthService(users UserStore, sessions SessionStore, roles RoleStore, tokens *utils.TokenIssuer, mailer Mailer, log *zap.Logger, opts AuthOptions) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		Users:    users,
		Sessions: sessions,
		Roles:    roles,
		Tokens:   tokens,
		Mail:     mailer,
		Log:      log,
		Opts:     opts,
	}
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// UserProfile is the user view returned with a session.
type UserProfile struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// Session is the outcome of a login or refresh. RefreshToken.Raw belongs
// in the refresh cookie and nowhere else.
type Session struct {
	AccessToken  string
	RefreshToken utils.RefreshToken
	User         UserProfile
}

// RegisterInput is the self-registration payload.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account with the default USER role.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	if fields := ValidateAccount(in.Name, in.Email, in.Password, true); len(fields) > 0 {
		return nil, apperr.Validation("Validation failed", fields)
	}

	if _, err := s.Users.GetByEmail(ctx, in.Email); err == nil {
		return nil, apperr.Conflict("Email is already in use")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	role, err := s.Roles.GetByName(ctx, model.RoleUser)
	if errors.Is(err, repository.ErrRoleNotFound) {
		return nil, apperr.Internal("Default user role not found", err)
	}
	if err != nil {
		return nil, err
	}

	hash, err := utils.HashPassword(in.Password, s.Opts.BcryptCost)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        in.Email,
		PasswordHash: hash,
		RoleID:       role.ID,
		RoleName:     role.Name,
	}
	if err := s.Users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, apperr.Conflict("Email is already in use")
		}
		return nil, err
	}
	s.Log.Info("user registered", zap.String("user_id", u.ID))
	return u, nil
}

// Login checks credentials and opens a new session. Unknown email and wrong
// password are indistinguishable to the caller, including in timing.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apperr.BadRequest("Email and password are required")
	}

	u, err := s.Users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		utils.VerifyPassword(s.timingHash(), password)
		loginsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, apperr.Unauthenticated(apperr.CodeUnauthorized, MsgInvalidCredentials)
	}
	if err != nil {
		loginsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		loginsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, apperr.Unauthenticated(apperr.CodeUnauthorized, MsgInvalidCredentials)
	}

	rt, err := s.issueRefreshSession(ctx, u.ID, "")
	if err != nil {
		loginsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	sess, err := s.buildSession(ctx, u, rt)
	if err != nil {
		loginsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	loginsTotal.WithLabelValues("success").Inc()
	return sess, nil
}

// Refresh exchanges a refresh token for a new access token and a rotated
// refresh token. The stored record is the authority on whether the token
// is still usable; a valid signature alone is not enough.
func (s *AuthService) Refresh(ctx context.Context, raw string) (*Session, error) {
	if raw == "" {
		refreshesTotal.WithLabelValues("missing").Inc()
		return nil, apperr.Unauthenticated(apperr.CodeTokenMissing, MsgNoRefreshToken)
	}
	deny := func(cause error) error {
		refreshesTotal.WithLabelValues("denied").Inc()
		return apperr.TokenRejected(apperr.CodeRefreshDenied, MsgRefreshDenied, cause)
	}

	claims, err := s.Tokens.ParseRefreshToken(raw)
	if err != nil {
		return nil, deny(err)
	}

	hash := utils.HashToken(raw)
	rec, err := s.Sessions.Lookup(ctx, hash)
	if errors.Is(err, repository.ErrTokenNotFound) {
		return nil, deny(err)
	}
	if err != nil {
		refreshesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if !rec.Active(s.now()) || rec.UserID != claims.UserID {
		return nil, deny(repository.ErrSessionNotActive)
	}

	u, err := s.Users.GetByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		if rerr := s.Sessions.Revoke(ctx, hash); rerr != nil {
			s.Log.Warn("revoke token of deleted user failed", zap.Error(rerr))
		}
		refreshesTotal.WithLabelValues("denied").Inc()
		return nil, apperr.TokenRejected(apperr.CodeRefreshDenied, MsgUserNotFound, err)
	}
	if err != nil {
		refreshesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	rt, err := s.issueRefreshSession(ctx, u.ID, hash)
	if errors.Is(err, repository.ErrSessionNotActive) {
		// Lost a race with another refresh of the same token.
		return nil, deny(err)
	}
	if err != nil {
		refreshesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	sess, err := s.buildSession(ctx, u, rt)
	if err != nil {
		refreshesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	refreshesTotal.WithLabelValues("success").Inc()
	return sess, nil
}

// Logout revokes the presented refresh token if there is one. It never
// fails: a logout must always leave the client logged out.
func (s *AuthService) Logout(ctx context.Context, raw string) {
	if raw == "" {
		return
	}
	if err := s.Sessions.Revoke(ctx, utils.HashToken(raw)); err != nil {
		s.Log.Warn("logout revoke failed", zap.Error(err))
	}
}

// issueRefreshSession generates a refresh token and stores it, rotating
// away from rotateFrom when that is set. A hash collision is retried with
// a fresh token up to maxRefreshTokenAttempts times; any other error,
// including a lost rotation race, is returned at once.
func (s *AuthService) issueRefreshSession(ctx context.Context, userID, rotateFrom string) (utils.RefreshToken, error) {
	var lastErr error
	for attempt := 0; attempt < maxRefreshTokenAttempts; attempt++ {
		rt, err := s.Tokens.IssueRefreshToken(userID)
		if err != nil {
			return utils.RefreshToken{}, err
		}
		if rotateFrom == "" {
			err = s.Sessions.Create(ctx, rt.Hash, userID, rt.Exp)
		} else {
			err = s.Sessions.Rotate(ctx, rotateFrom, rt.Hash, userID, rt.Exp)
		}
		if err == nil {
			return rt, nil
		}
		if !errors.Is(err, repository.ErrDuplicateToken) {
			return utils.RefreshToken{}, err
		}
		lastErr = err
		sessionIssueRetries.Inc()
		s.Log.Warn("refresh token hash collision, retrying", zap.Int("attempt", attempt+1))
	}
	return utils.RefreshToken{}, apperr.TransientStore("Could not issue session", lastErr)
}

func (s *AuthService) buildSession(ctx context.Context, u *model.User, rt utils.RefreshToken) (*Session, error) {
	at, err := s.Tokens.IssueAccessToken(u.ID, u.RoleName)
	if err != nil {
		return nil, err
	}
	perms, err := s.Roles.PermissionNames(ctx, u.RoleName)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken:  at.Token,
		RefreshToken: rt,
		User: UserProfile{
			ID:          u.ID,
			Name:        u.Name,
			Email:       u.Email,
			Role:        u.RoleName,
			Permissions: perms,
		},
	}, nil
}

// timingHash is a bcrypt hash at the configured cost, compared against
// when the email is unknown so both failure paths cost one bcrypt.
func (s *AuthService) timingHash() string {
	s.dummyOnce.Do(func() {
		h, err := utils.HashPassword("timing-equaliser", s.Opts.BcryptCost)
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

// ValidateAccount checks the account fields and returns per-field
// messages. requirePassword is false for updates that keep the password.
func ValidateAccount(name, email, password string, requirePassword bool) map[string]string {
	fields := map[string]string{}
	if len([]rune(strings.TrimSpace(name))) < 2 {
		fields["name"] = "Name must be at least 2 characters long"
	}
	if !ValidEmail(email) {
		fields["email"] = "Invalid email address"
	}
	if requirePassword || password != "" {
		if msg := validatePassword(password); msg != "" {
			fields["password"] = msg
		}
	}
	return fields
}

func validatePassword(password string) string {
	if len([]rune(password)) < 8 {
		return "Password must be at least 8 characters long"
	}
	if len(password) > utils.MaxPasswordBytes {
		return fmt.Sprintf("Password must be at most %d bytes long", utils.MaxPasswordBytes)
	}
	return ""
}

// ValidEmail accepts a bare address such as ops@example.com, rejecting
// display-name forms.
func ValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}
