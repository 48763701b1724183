package service

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/weighbridge-ops/internal/database"
	"github.com/iliyamo/weighbridge-ops/internal/model"
	"github.com/iliyamo/weighbridge-ops/internal/queue"
	"github.com/iliyamo/weighbridge-ops/internal/repository"
	"github.com/iliyamo/weighbridge-ops/internal/utils"
)

// recordingMailer keeps every job it is asked to send.
type recordingMailer struct {
	mu   sync.Mutex
	jobs []queue.MailJob
	err  error
}

func (m *recordingMailer) Send(_ context.Context, job queue.MailJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *recordingMailer) last(t *testing.T) queue.MailJob {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.jobs)
	return m.jobs[len(m.jobs)-1]
}

type fixture struct {
	db     *sql.DB
	svc    *AuthService
	users  *repository.UserRepo
	tokens *repository.TokenRepo
	roles  *repository.RoleRepo
	mail   *recordingMailer
	now    time.Time
}

// newFixture builds an AuthService over a fresh SQLite database with the
// ADMIN and USER roles and a small permission matrix.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	require.NoError(t, database.ApplySchema(ctx, db, database.DriverSQLite))

	f := &fixture{
		db:     db,
		users:  repository.NewUserRepo(db),
		tokens: repository.NewTokenRepo(db),
		roles:  repository.NewRoleRepo(db),
		mail:   &recordingMailer{},
		now:    time.Now().UTC(),
	}
	grant := map[string][]string{
		model.RoleAdmin: {"READ_USERS", "READ_PROFILE", "READ_ITEMS"},
		model.RoleUser:  {"READ_PROFILE", "READ_ITEMS"},
	}
	for role, perms := range grant {
		r, err := f.roles.UpsertRole(ctx, role)
		require.NoError(t, err)
		for _, name := range perms {
			p, err := f.roles.UpsertPermission(ctx, name)
			require.NoError(t, err)
			require.NoError(t, f.roles.Grant(ctx, r.ID, p.ID))
		}
	}

	issuer := utils.NewTokenIssuer("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
	issuer.Now = func() time.Time { return f.now }
	f.svc = NewAuthService(f.users, f.tokens, f.roles, issuer, f.mail, nil, AuthOptions{
		BcryptCost:    bcrypt.MinCost,
		ResetTokenTTL: 10 * time.Minute,
		FrontendURL:   "http://app.test",
	})
	f.svc.Now = func() time.Time { return f.now }
	return f
}

func (f *fixture) register(t *testing.T, name, email, password string) *model.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), RegisterInput{Name: name, Email: email, Password: password})
	require.NoError(t, err)
	return u
}

// resetTokenFromMail extracts the raw token from the reset link.
func resetTokenFromMail(t *testing.T, job queue.MailJob) string {
	t.Helper()
	const marker = "/reset-password/"
	i := strings.Index(job.Text, marker)
	require.GreaterOrEqual(t, i, 0, "reset link missing from mail")
	rest := job.Text[i+len(marker):]
	if j := strings.IndexAny(rest, " \n"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

// stubSessions is a SessionStore whose writes fail with a scripted error
// sequence. Revoke always returns revokeErr.
type stubSessions struct {
	mu        sync.Mutex
	failures  []error
	calls     int
	revokeErr error
	revokes   int
}

func (s *stubSessions) next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.failures) == 0 {
		return nil
	}
	err := s.failures[0]
	s.failures = s.failures[1:]
	return err
}

func (s *stubSessions) Create(context.Context, string, string, time.Time) error { return s.next() }
func (s *stubSessions) Rotate(context.Context, string, string, string, time.Time) error {
	return s.next()
}
func (s *stubSessions) Revoke(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokes++
	return s.revokeErr
}
func (s *stubSessions) Lookup(context.Context, string) (*model.RefreshToken, error) {
	return nil, errors.New("not used")
}
func (s *stubSessions) RevokeAllForUser(context.Context, string) (int64, error) { return 0, nil }
