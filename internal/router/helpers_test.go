package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/weighbridge-ops/internal/config"
	"github.com/iliyamo/weighbridge-ops/internal/database"
	"github.com/iliyamo/weighbridge-ops/internal/handler"
	"github.com/iliyamo/weighbridge-ops/internal/model"
	"github.com/iliyamo/weighbridge-ops/internal/queue"
	"github.com/iliyamo/weighbridge-ops/internal/repository"
	"github.com/iliyamo/weighbridge-ops/internal/seed"
	"github.com/iliyamo/weighbridge-ops/internal/service"
	"github.com/iliyamo/weighbridge-ops/internal/utils"
)

const (
	adminEmail = "admin@example.com"
	adminPass  = "admin-pass-1"
	userEmail  = "ops@example.com"
	userPass   = "user-pass-1"
)

type mailRecorder struct {
	mu   sync.Mutex
	jobs []queue.MailJob
}

func (m *mailRecorder) Send(_ context.Context, job queue.MailJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *mailRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// resetToken returns the raw token from the most recent reset mail.
func (m *mailRecorder) resetToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.jobs)
	text := m.jobs[len(m.jobs)-1].Text
	const marker = "/reset-password/"
	i := strings.Index(text, marker)
	require.GreaterOrEqual(t, i, 0)
	rest := text[i+len(marker):]
	if j := strings.IndexAny(rest, " \n"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

type testApp struct {
	e        *echo.Echo
	issuer   *utils.TokenIssuer
	users    *repository.UserRepo
	roles    *repository.RoleRepo
	sessions *repository.TokenRepo
	items    *repository.ItemRepo
	mail     *mailRecorder
	now      time.Time
}

// appSetup is what an appOption may change before the app is built.
type appSetup struct {
	deps     *Deps
	auth     *service.AuthOptions
	sessions service.SessionStore
}

type appOption func(*appSetup)

// newApp wires the full HTTP surface over a fresh SQLite database seeded
// with the default RBAC matrix, an ADMIN and a USER account.
func newApp(t *testing.T, opts ...appOption) *testApp {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.ApplySchema(ctx, db, database.DriverSQLite))

	a := &testApp{
		users:    repository.NewUserRepo(db),
		roles:    repository.NewRoleRepo(db),
		sessions: repository.NewTokenRepo(db),
		items:    repository.NewItemRepo(db),
		mail:     &mailRecorder{},
		now:      time.Now().UTC(),
	}

	m, err := seed.DefaultMatrix()
	require.NoError(t, err)
	seeder := &seed.Seeder{Roles: a.roles, Users: a.users, BcryptCost: bcrypt.MinCost}
	require.NoError(t, seeder.Seed(ctx, m, []seed.Account{
		{Name: "Admin User", Email: adminEmail, Password: adminPass, Role: model.RoleAdmin},
		{Name: "Normal User", Email: userEmail, Password: userPass, Role: model.RoleUser},
	}))

	a.issuer = utils.NewTokenIssuer("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
	a.issuer.Now = func() time.Time { return a.now }

	authOpts := service.AuthOptions{
		BcryptCost:    bcrypt.MinCost,
		ResetTokenTTL: 10 * time.Minute,
		FrontendURL:   "http://app.test",
	}
	deps := Deps{
		Cfg:         config.Config{FrontendURL: "http://app.test"},
		RateLimit:   config.RateLimitConfig{Enabled: false},
		Cache:       config.CacheConfig{Enabled: false},
		DB:          db,
		Log:         zap.NewNop(),
		Tokens:      a.issuer,
		Permissions: a.roles,
	}
	setup := appSetup{deps: &deps, auth: &authOpts, sessions: a.sessions}
	for _, o := range opts {
		o(&setup)
	}

	svc := service.NewAuthService(a.users, setup.sessions, a.roles, a.issuer, a.mail, nil, authOpts)
	svc.Now = func() time.Time { return a.now }
	deps.Auth = handler.NewAuthHandler(svc, handler.CookieOptions{MaxAge: 7 * 24 * time.Hour})
	deps.Users = handler.NewUserHandler(a.users, a.roles, a.sessions, bcrypt.MinCost, nil)
	deps.Items = handler.NewItemHandler(a.items)
	a.e = New(deps)
	return a
}

// revokeFailingSessions is the real store except that Revoke always fails.
type revokeFailingSessions struct {
	service.SessionStore
}

func (revokeFailingSessions) Revoke(context.Context, string) error {
	return errors.New("session store unavailable")
}

type request struct {
	method, path string
	body         any
	bearer       string
	cookie       *http.Cookie
	remoteAddr   string
}

func (a *testApp) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if r.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(r.body))
	}
	req := httptest.NewRequest(r.method, r.path, &buf)
	if r.body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if r.bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+r.bearer)
	}
	if r.cookie != nil {
		req.AddCookie(r.cookie)
	}
	if r.remoteAddr != "" {
		req.RemoteAddr = r.remoteAddr
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

// login returns the access token and the refresh cookie.
func (a *testApp) login(t *testing.T, email, password string) (string, *http.Cookie) {
	t.Helper()
	rec := a.do(t, request{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{"email": email, "password": password}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	ck := refreshCookieOf(rec)
	require.NotNil(t, ck)
	return body.AccessToken, ck
}

func refreshCookieOf(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == handler.RefreshCookieName {
			return ck
		}
	}
	return nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}
