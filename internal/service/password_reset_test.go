package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/weighbridge-ops/internal/apperr"
	"github.com/iliyamo/weighbridge-ops/internal/queue"
	"github.com/iliyamo/weighbridge-ops/internal/utils"
)

func TestForgotPassword_SameOutcomeForUnknownEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Op", "op@example.com", "password123")
	ctx := context.Background()

	assert.NoError(t, f.svc.ForgotPassword(ctx, "op@example.com"))
	assert.NoError(t, f.svc.ForgotPassword(ctx, "ghost@example.com"))
	assert.Len(t, f.mail.jobs, 1)

	err := f.svc.ForgotPassword(ctx, "  ")
	assert.Equal(t, http.StatusBadRequest, apperr.From(err).Status)
}

func TestForgotPassword_StoresHashAndMailsLink(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "Op", "op@example.com", "password123")
	ctx := context.Background()

	require.NoError(t, f.svc.ForgotPassword(ctx, "op@example.com"))

	job := f.mail.last(t)
	assert.Equal(t, queue.MailKindPasswordReset, job.Kind)
	assert.Equal(t, "op@example.com", job.To)
	assert.Contains(t, job.Subject, "10 min")
	assert.Contains(t, job.Text, "http://app.test/reset-password/")
	raw := resetTokenFromMail(t, job)
	assert.Len(t, raw, 64)

	stored, err := f.users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PasswordResetTokenHash)
	assert.Equal(t, utils.HashToken(raw), *stored.PasswordResetTokenHash)
	assert.NotEqual(t, raw, *stored.PasswordResetTokenHash)
	assert.WithinDuration(t, f.now.Add(10*time.Minute), *stored.PasswordResetExpiresAt, time.Second)
}

func TestForgotPassword_SendFailureClearsToken(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "Op", "op@example.com", "password123")
	f.mail.err = errors.New("smtp down")

	assert.NoError(t, f.svc.ForgotPassword(context.Background(), "op@example.com"))

	stored, err := f.users.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PasswordResetTokenHash)
	assert.Nil(t, stored.PasswordResetExpiresAt)
}

func TestResetPassword_SingleUse(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Op", "op@example.com", "password123")
	ctx := context.Background()
	require.NoError(t, f.svc.ForgotPassword(ctx, "op@example.com"))
	raw := resetTokenFromMail(t, f.mail.last(t))

	require.NoError(t, f.svc.ResetPassword(ctx, raw, "brand-new-pass"))

	err := f.svc.ResetPassword(ctx, raw, "another-pass")
	ae := apperr.From(err)
	assert.Equal(t, http.StatusBadRequest, ae.Status)
	assert.Equal(t, MsgResetTokenInvalid, ae.Message)

	_, err = f.svc.Login(ctx, "op@example.com", "password123")
	assert.Error(t, err)
	_, err = f.svc.Login(ctx, "op@example.com", "brand-new-pass")
	assert.NoError(t, err)
}

func TestResetPassword_ConcurrentUseSucceedsOnce(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Op", "op@example.com", "password123")
	ctx := context.Background()
	require.NoError(t, f.svc.ForgotPassword(ctx, "op@example.com"))
	raw := resetTokenFromMail(t, f.mail.last(t))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.svc.ResetPassword(ctx, raw, "brand-new-pass"); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, success)
}

func TestResetPassword_Rejections(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Op", "op@example.com", "password123")
	ctx := context.Background()
	require.NoError(t, f.svc.ForgotPassword(ctx, "op@example.com"))
	raw := resetTokenFromMail(t, f.mail.last(t))

	err := f.svc.ResetPassword(ctx, raw, "short")
	ae := apperr.From(err)
	assert.Equal(t, http.StatusBadRequest, ae.Status)
	assert.Contains(t, ae.Fields, "password")

	ae = apperr.From(f.svc.ResetPassword(ctx, raw, strings.Repeat("p", 80)))
	assert.Equal(t, http.StatusBadRequest, ae.Status)
	assert.Equal(t, "Password must be at most 72 bytes long", ae.Fields["password"])

	assert.Equal(t, MsgResetTokenInvalid, apperr.From(f.svc.ResetPassword(ctx, "", "long-enough")).Message)
	assert.Equal(t, MsgResetTokenInvalid, apperr.From(f.svc.ResetPassword(ctx, "deadbeef", "long-enough")).Message)

	f.now = f.now.Add(11 * time.Minute)
	assert.Equal(t, MsgResetTokenInvalid, apperr.From(f.svc.ResetPassword(ctx, raw, "long-enough")).Message)
}

func TestResetPassword_OptionallyRevokesSessions(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Op", "op@example.com", "password123")
	ctx := context.Background()
	sess, err := f.svc.Login(ctx, "op@example.com", "password123")
	require.NoError(t, err)

	f.svc.Opts.ResetRevokesSessions = true
	require.NoError(t, f.svc.ForgotPassword(ctx, "op@example.com"))
	require.NoError(t, f.svc.ResetPassword(ctx, resetTokenFromMail(t, f.mail.last(t)), "brand-new-pass"))

	_, err = f.svc.Refresh(ctx, sess.RefreshToken.Raw)
	assert.Equal(t, http.StatusForbidden, apperr.From(err).Status)
}

func TestPasswordResetMail_EscapesHTML(t *testing.T) {
	job, err := passwordResetMail("a@example.com", "<script>x</script>", "http://app.test/reset-password/abc",
		10*time.Minute, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "Your password reset token (valid for 10 min)", job.Subject)
	assert.False(t, strings.Contains(job.HTML, "<script>"))
	assert.Contains(t, job.HTML, "http://app.test/reset-password/abc")
	assert.Contains(t, job.HTML, "2026")
}
