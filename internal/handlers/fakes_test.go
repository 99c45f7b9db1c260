package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"phaze17/dashboard/internal/apierror"
	"phaze17/dashboard/internal/auth"
	"phaze17/dashboard/internal/authstate"
	"phaze17/dashboard/internal/config"
	"phaze17/dashboard/internal/middleware"
	"phaze17/dashboard/internal/models"
	"phaze17/dashboard/internal/repository"
	"phaze17/dashboard/internal/service"
	"phaze17/dashboard/internal/views"
)

const (
	adminID   = "11111111-1111-4111-8111-111111111111"
	analystID = "22222222-2222-4222-8222-222222222222"
	otherID   = "33333333-3333-4333-8333-333333333333"
)

// fakeAuth answers bearer tokens of the form "token-<user id>".
type fakeAuth struct {
	mu       sync.Mutex
	sessions map[string][]models.Session
	signOuts []string
	revokes  []string
	signIn   func(email, password string) (models.AuthSession, error)
}

func (f *fakeAuth) Verify(_ context.Context, token string) (auth.Principal, error) {
	id, ok := strings.CutPrefix(token, "token-")
	if !ok {
		return auth.Principal{}, auth.ErrInvalidToken
	}
	return auth.Principal{Identity: models.Identity{ID: id}, SessionID: "sess-" + id}, nil
}

func (f *fakeAuth) Touch(context.Context, string, auth.ClientMeta) {}

func (f *fakeAuth) SignInWithPassword(_ context.Context, email, password string, _ auth.ClientMeta) (models.AuthSession, error) {
	if f.signIn == nil {
		return models.AuthSession{}, auth.ErrInvalidCredentials
	}
	return f.signIn(email, password)
}

func (f *fakeAuth) Refresh(_ context.Context, refreshToken string) (models.AuthSession, error) {
	if refreshToken != "refresh-ok" {
		return models.AuthSession{}, auth.ErrRefreshInvalid
	}
	return models.AuthSession{SessionID: "sess-" + adminID, AccessToken: "token-" + adminID, RefreshToken: "refresh-next"}, nil
}

func (f *fakeAuth) SignOut(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts = append(f.signOuts, sessionID)
	return nil
}

func (f *fakeAuth) Sessions(_ context.Context, userID string) ([]models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[userID], nil
}

func (f *fakeAuth) RevokeSession(_ context.Context, userID, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions[userID] {
		if s.ID == sessionID {
			f.revokes = append(f.revokes, sessionID)
			return nil
		}
	}
	return auth.ErrSessionNotFound
}

type fakeProfiles struct {
	users    map[string]models.User
	countErr error
}

func (f *fakeProfiles) GetByID(_ context.Context, id string) (models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeProfiles) Count(context.Context) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.users), nil
}

// Resolve makes fakeProfiles usable as the Session Store's resolver.
func (f *fakeProfiles) Resolve(ctx context.Context, id string) models.User {
	u, err := f.GetByID(ctx, id)
	if err != nil {
		return models.User{ID: id, Role: models.UserRoleOperator}
	}
	return u
}

type fakeAudit struct {
	entries []models.AuditEntry
	userIDs []string
}

func (f *fakeAudit) ListRecent(_ context.Context, userID string, limit int) ([]models.AuditEntry, error) {
	f.userIDs = append(f.userIDs, userID)
	if limit < len(f.entries) {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

type mockUserService struct {
	mock.Mock
}

func (m *mockUserService) List(ctx context.Context, params repository.ListParams) ([]models.User, service.Pagination, error) {
	args := m.Called(ctx, params)
	return args.Get(0).([]models.User), args.Get(1).(service.Pagination), args.Error(2)
}

func (m *mockUserService) Get(ctx context.Context, id string) (models.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *mockUserService) Create(ctx context.Context, in service.CreateUserInput) (models.User, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *mockUserService) Update(ctx context.Context, id string, upd repository.UserUpdate) (models.User, error) {
	args := m.Called(ctx, id, upd)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *mockUserService) UpdateRole(ctx context.Context, id string, role models.UserRole) (models.User, error) {
	args := m.Called(ctx, id, role)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *mockUserService) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type fakeAvatars struct {
	err error
}

func (f fakeAvatars) Upload(_ context.Context, userID string, _ multipart.File, header *multipart.FileHeader) (models.User, error) {
	if f.err != nil {
		return models.User{}, f.err
	}
	avatarURL := "https://cdn.test/avatars/" + userID + "/" + header.Filename
	return models.User{ID: userID, AvatarURL: &avatarURL}, nil
}

type credential struct {
	password string
	identity models.Identity
}

// browserClient is a per-browser provider client backed by a fixed
// credential table.
type browserClient struct {
	creds map[string]credential

	mu        sync.Mutex
	session   *models.AuthSession
	listeners map[int]auth.Listener
	next      int
}

func (b *browserClient) GetSession(context.Context) (*models.AuthSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session, nil
}

func (b *browserClient) SignInWithPassword(ctx context.Context, email, password string) (*models.AuthSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cred, ok := b.creds[email]
	if !ok || cred.password != password {
		return nil, auth.ErrInvalidCredentials
	}
	if cred.identity.EmailConfirmedAt == nil {
		return nil, auth.ErrEmailNotConfirmed
	}

	session := &models.AuthSession{SessionID: "sess-" + cred.identity.ID, User: cred.identity}
	b.mu.Lock()
	b.session = session
	b.mu.Unlock()
	b.emit(models.AuthEventSignedIn, session)
	return session, nil
}

func (b *browserClient) SignOut(context.Context) error {
	b.mu.Lock()
	b.session = nil
	b.mu.Unlock()
	b.emit(models.AuthEventSignedOut, nil)
	return nil
}

func (b *browserClient) OnAuthStateChange(fn auth.Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	id := b.next
	b.listeners[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

func (b *browserClient) Close() {}

func (b *browserClient) emit(event models.AuthEventType, session *models.AuthSession) {
	b.mu.Lock()
	fns := make([]auth.Listener, 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(event, session)
	}
}

type testEnv struct {
	engine   *gin.Engine
	auth     *fakeAuth
	profiles *fakeProfiles
	users    *mockUserService
	audit    *fakeAudit
	registry *authstate.Registry
}

func newTestEnv(t *testing.T, avatars AvatarService) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	apierror.UseJSONFieldNames()

	confirmed := time.Now()
	creds := map[string]credential{
		"admin@phaze17.com":     {password: "secret123", identity: models.Identity{ID: adminID, Email: "admin@phaze17.com", EmailConfirmedAt: &confirmed}},
		"analyst@phaze17.com":   {password: "secret123", identity: models.Identity{ID: analystID, Email: "analyst@phaze17.com", EmailConfirmedAt: &confirmed}},
		"unconfirmed@phaze.com": {password: "secret123", identity: models.Identity{ID: otherID, Email: "unconfirmed@phaze.com"}},
	}

	profiles := &fakeProfiles{users: map[string]models.User{
		adminID:   {ID: adminID, Email: "admin@phaze17.com", FullName: "Ada Admin", Role: models.UserRoleAdmin},
		analystID: {ID: analystID, Email: "analyst@phaze17.com", FullName: "Ana Analyst", Role: models.UserRoleAnalyst},
	}}

	registry := authstate.NewRegistry(100, time.Minute, func(string, auth.ClientMeta) authstate.ProviderClient {
		return &browserClient{creds: creds, listeners: map[int]auth.Listener{}}
	}, profiles, time.Second, zerolog.Nop())
	t.Cleanup(registry.Close)

	env := &testEnv{
		auth:     &fakeAuth{sessions: map[string][]models.Session{}},
		profiles: profiles,
		users:    &mockUserService{},
		audit:    &fakeAudit{},
		registry: registry,
	}

	h := NewHandlerSet(Deps{
		Log:      zerolog.Nop(),
		Config:   &config.AppConfig{Environment: "test", Auth: config.AuthConfig{SignInTimeout: 2 * time.Second}},
		Auth:     env.auth,
		Users:    env.users,
		Avatars:  avatars,
		Profiles: profiles,
		Audit:    env.audit,
		Registry: registry,
		Cookies:  middleware.NewCookieStore([]byte("0123456789abcdef0123456789abcdef"), false, time.Hour),
		OpenAPI:  []byte(`{"openapi":"3.0.0"}`),
	})

	tmpl, err := views.Templates()
	require.NoError(t, err)

	r := gin.New()
	r.SetHTMLTemplate(tmpl)
	h.Register(r.Group("/api"))
	h.RegisterPages(r)
	env.engine = r
	return env
}

func (e *testEnv) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) api(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.do(req)
}

func (e *testEnv) postForm(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req, cookies...)
}

func (e *testEnv) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil), cookies...)
}

var errBoom = errors.New("boom")
