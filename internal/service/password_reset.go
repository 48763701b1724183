package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/weighbridge-ops/internal/apperr"
	"github.com/iliyamo/weighbridge-ops/internal/repository"
	"github.com/iliyamo/weighbridge-ops/internal/utils"
)

// Client-facing messages of the reset flow.
const (
	MsgForgotPassword     = "If a user with that email exists, a password reset link has been sent."
	MsgResetTokenInvalid  = "Token is invalid or has expired."
	MsgPasswordResetDone  = "Password has been reset successfully. Please log in."
	msgEmailRequired      = "Please provide an email address."
	msgResetInternalError = "An error occurred while resetting the password."
)

// ForgotPassword starts a password reset. The only error it returns is a
// validation error for an empty email; every other outcome, including an
// unknown address or a failed send, looks the same to the caller.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return apperr.BadRequest(msgEmailRequired)
	}

	u, err := s.Users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		passwordResetsTotal.WithLabelValues("request", "unknown_email").Inc()
		return nil
	}
	if err != nil {
		s.Log.Error("forgot password: user lookup failed", zap.Error(err))
		passwordResetsTotal.WithLabelValues("request", "error").Inc()
		return nil
	}

	raw, hash, err := utils.NewResetToken()
	if err != nil {
		s.Log.Error("forgot password: token generation failed", zap.Error(err))
		passwordResetsTotal.WithLabelValues("request", "error").Inc()
		return nil
	}

	now := s.now()
	if err := s.sendReset(ctx, u.ID, u.Email, u.Name, raw, hash); err != nil {
		s.Log.Error("forgot password: reset not delivered", zap.String("user_id", u.ID), zap.Error(err))
		if cerr := s.Users.ClearResetToken(ctx, u.ID); cerr != nil {
			s.Log.Warn("forgot password: clearing reset token failed", zap.String("user_id", u.ID), zap.Error(cerr))
		}
		passwordResetsTotal.WithLabelValues("request", "error").Inc()
		return nil
	}
	s.Log.Info("password reset requested", zap.String("user_id", u.ID), zap.Time("at", now))
	passwordResetsTotal.WithLabelValues("request", "sent").Inc()
	return nil
}

func (s *AuthService) sendReset(ctx context.Context, userID, to, name, raw, hash string) error {
	now := s.now()
	if err := s.Users.SetResetToken(ctx, userID, hash, now.Add(s.Opts.ResetTokenTTL)); err != nil {
		return err
	}
	link := strings.TrimRight(s.Opts.FrontendURL, "/") + "/reset-password/" + raw
	job, err := passwordResetMail(to, name, link, s.Opts.ResetTokenTTL, now)
	if err != nil {
		return err
	}
	return s.Mail.Send(ctx, job)
}

// ResetPassword sets a new password using a reset token. The token is
// consumed atomically, so it works at most once even under concurrency.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, password string) error {
	if msg := validatePassword(password); msg != "" {
		return apperr.Validation("Validation failed", map[string]string{"password": msg})
	}
	invalid := func() error {
		passwordResetsTotal.WithLabelValues("complete", "rejected").Inc()
		return apperr.BadRequest(MsgResetTokenInvalid)
	}
	if rawToken == "" {
		return invalid()
	}

	hash := utils.HashToken(rawToken)
	u, err := s.Users.GetByResetTokenHash(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return invalid()
	}
	if err != nil {
		return apperr.Internal(msgResetInternalError, err)
	}
	if u.PasswordResetExpiresAt == nil || !u.PasswordResetExpiresAt.After(s.now()) {
		return invalid()
	}

	newHash, err := utils.HashPassword(password, s.Opts.BcryptCost)
	if err != nil {
		return apperr.Internal(msgResetInternalError, err)
	}
	err = s.Users.ConsumeResetToken(ctx, u.ID, hash, newHash)
	if errors.Is(err, repository.ErrNotFound) {
		return invalid()
	}
	if err != nil {
		return apperr.Internal(msgResetInternalError, err)
	}

	if s.Opts.ResetRevokesSessions {
		n, err := s.Sessions.RevokeAllForUser(ctx, u.ID)
		if err != nil {
			s.Log.Warn("reset password: revoking sessions failed", zap.String("user_id", u.ID), zap.Error(err))
		} else {
			s.Log.Info("reset password: sessions revoked", zap.String("user_id", u.ID), zap.Int64("count", n))
		}
	}
	passwordResetsTotal.WithLabelValues("complete", "success").Inc()
	return nil
}
