package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phaze17/dashboard/internal/middleware"
	"phaze17/dashboard/internal/models"
)

func browserCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.BrowserCookieName {
			return c
		}
	}
	require.FailNow(t, "browser cookie not issued")
	return nil
}

func login(email string) url.Values {
	return url.Values{"email": {email}, "password": {"secret123"}}
}

func TestAdminLoginFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.postForm("/admin/login", login("admin@phaze17.com"))
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/admin/dashboard", rec.Header().Get("Location"))
	cookie := browserCookie(t, rec)

	rec = env.get("/admin/dashboard", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "User Management")
	assert.Contains(t, rec.Body.String(), "Ada Admin")
	assert.Equal(t, []string{""}, env.audit.userIDs)

	rec = env.get("/api/v1/session", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var snapshot struct {
		Loading bool     `json:"loading"`
		Roles   []string `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.False(t, snapshot.Loading)
	assert.Equal(t, []string{"admin"}, snapshot.Roles)
}

func TestLoginRedirectsBackToFrom(t *testing.T) {
	env := newTestEnv(t, nil)

	form := login("analyst@phaze17.com")
	form.Set("from", "/marketing/dashboard?tab=campaigns")
	rec := env.postForm("/marketing/login", form)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/marketing/dashboard?tab=campaigns", rec.Header().Get("Location"))

	form.Set("from", "https://evil.example/")
	rec = env.postForm("/marketing/login", form)
	assert.Equal(t, "/marketing/dashboard", rec.Header().Get("Location"))
}

func TestGuardRedirectsAnonymousToSurfaceLogin(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get("/admin/dashboard")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/admin/login?from=%2Fadmin%2Fdashboard", rec.Header().Get("Location"))

	rec = env.get("/marketing/dashboard")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/marketing/login?from=%2Fmarketing%2Fdashboard", rec.Header().Get("Location"))
}

func TestGuardDeniesWrongRole(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.postForm("/admin/login", login("analyst@phaze17.com"))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	cookie := browserCookie(t, rec)

	rec = env.get("/admin/dashboard", cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "ANALYST")
	assert.Contains(t, rec.Body.String(), "Go Back")

	rec = env.get("/marketing/dashboard", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Welcome to the Marketing Dashboard")
	assert.Equal(t, []string{analystID}, env.audit.userIDs)
}

func TestLoginErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name    string
		path    string
		form    url.Values
		status  int
		message string
	}{
		{"marketing bad password", "/marketing/login", url.Values{"email": {"analyst@phaze17.com"}, "password": {"nope"}}, http.StatusUnauthorized, "Invalid email or password"},
		{"marketing unconfirmed", "/marketing/login", login("unconfirmed@phaze.com"), http.StatusUnauthorized, "Please check your email and confirm your account"},
		{"admin shows provider message", "/admin/login", url.Values{"email": {"admin@phaze17.com"}, "password": {"nope"}}, http.StatusUnauthorized, "Invalid login credentials"},
		{"missing fields", "/admin/login", url.Values{"email": {"admin@phaze17.com"}}, http.StatusUnprocessableEntity, "Email and password are required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.postForm(tt.path, tt.form)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.message)
			assert.Empty(t, rec.Header().Get("Location"))
		})
	}
}

func TestMarketingLoginShowsDatabaseIssue(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get("/marketing/login")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Database connected")

	env.profiles.countErr = errors.New("dial tcp db.internal:5432: connect: connection refused")
	rec = env.get("/marketing/login")
	assert.Contains(t, rec.Body.String(), "Database Connection Issue")
	assert.Contains(t, rec.Body.String(), "Retry")
	assert.Contains(t, rec.Body.String(), "Unable to reach the database")
	assert.NotContains(t, rec.Body.String(), "db.internal")
	assert.NotContains(t, rec.Body.String(), "connection refused")

	rec = env.get("/admin/login")
	assert.NotContains(t, rec.Body.String(), "Database Connection Issue")
}

func TestLogoutPage(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.postForm("/admin/login", login("admin@phaze17.com"))
	cookie := browserCookie(t, rec)

	rec = env.postForm("/logout", url.Values{}, cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = env.get("/admin/dashboard", cookie)
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get("/api/v1/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Error.Code)

	rec = env.get("/somewhere/else")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get("/api/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "disabled", body["cache"])

	env.profiles.countErr = errBoom
	rec = env.get("/api/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestAuditListing(t *testing.T) {
	env := newTestEnv(t, nil)
	env.audit.entries = []models.AuditEntry{{ID: "a1", EventType: "SIGNED_IN", UserID: adminID}}

	rec := env.api(http.MethodGet, "/api/v1/audit?user_id="+adminID, adminToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"event_type":"SIGNED_IN"`)
	assert.Equal(t, []string{adminID}, env.audit.userIDs)

	rec = env.api(http.MethodGet, "/api/v1/audit?limit=0", adminToken, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.api(http.MethodGet, "/api/v1/audit", analystToken, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOpenAPIDocument(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.get("/api/openapi.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"openapi":"3.0.0"}`, rec.Body.String())
}

func TestBrowserCookieSlidesOnEveryRequest(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.postForm("/admin/login", login("admin@phaze17.com"))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	issued := browserCookie(t, rec)
	assert.Equal(t, 3600, issued.MaxAge)

	for i := 0; i < 3; i++ {
		rec = env.get("/admin/dashboard", issued)
		require.Equal(t, http.StatusOK, rec.Code)
		renewed := browserCookie(t, rec)
		assert.Equal(t, 3600, renewed.MaxAge)
		issued = renewed
	}

	rec = env.get("/api/v1/session", issued)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"admin"`)
}
