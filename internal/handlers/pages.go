package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"phaze17/dashboard/internal/apierror"
	"phaze17/dashboard/internal/auth"
	"phaze17/dashboard/internal/authstate"
	"phaze17/dashboard/internal/guard"
	"phaze17/dashboard/internal/middleware"
	"phaze17/dashboard/internal/models"
	"phaze17/dashboard/internal/views"
)

const (
	marketingSignInTimeout = 15 * time.Second
	settleWait             = 3 * time.Second
	activityLimit          = 10
)

const (
	msgLoginTimeout    = "Login is taking too long. Please check your connection and try again."
	msgBadCredentials  = "Invalid email or password"
	msgConfirmEmail    = "Please check your email and confirm your account"
	msgSignInFailed    = "Failed to sign in"
	msgMissingFields   = "Email and password are required"
	msgSignOutFailed   = "We could not end your session. Please try again."
	msgSessionsOffline = "Sign-in is temporarily unavailable. Please reload the page."
)

// loginSurface is one of the dashboard login pages.
type loginSurface struct {
	Path        string
	Dashboard   string
	Title       string
	Subtitle    string
	Placeholder string
	Button      string
	Footer      string
	Timeout     time.Duration
	// FriendlyErrors rewrites provider messages into form copy.
	FriendlyErrors bool
	HealthCheck    bool
}

func adminSurface(timeout time.Duration) loginSurface {
	return loginSurface{
		Path:        "/admin/login",
		Dashboard:   "/admin/dashboard",
		Title:       "Admin Dashboard",
		Subtitle:    "System Administrator Access",
		Placeholder: "admin@phaze17.com",
		Button:      "Sign In to Admin",
		Footer:      "Administrator access only",
		Timeout:     timeout,
	}
}

func marketingSurface() loginSurface {
	return loginSurface{
		Path:           "/marketing/login",
		Dashboard:      "/marketing/dashboard",
		Title:          "Marketing Dashboard",
		Subtitle:       "Campaign & Analytics Access",
		Placeholder:    "marketing@phaze17.com",
		Button:         "Sign In to Marketing",
		Footer:         "Marketing team access only",
		Timeout:        marketingSignInTimeout,
		FriendlyErrors: true,
		HealthCheck:    true,
	}
}

type pageData struct {
	Title    string
	Subtitle string
	Profile  models.User
	Health   *healthStatus

	Action      string
	Email       string
	From        string
	Error       string
	Placeholder string
	Button      string
	Footer      string

	UserCount      int
	ActiveSessions int
	Activity       []models.AuditEntry

	Message string
	Back    string
}

func (h HandlerSet) Landing(c *gin.Context) {
	c.HTML(http.StatusOK, views.Landing, pageData{Title: "Command Center"})
}

func (h HandlerSet) loginPage(c *gin.Context, surface loginSurface) pageData {
	data := pageData{
		Title:       surface.Title,
		Subtitle:    surface.Subtitle,
		Action:      surface.Path,
		Placeholder: surface.Placeholder,
		Button:      surface.Button,
		Footer:      surface.Footer,
	}
	if surface.HealthCheck {
		status := h.checkHealth(c.Request.Context())
		data.Health = &status
	}
	return data
}

func (h HandlerSet) LoginPage(surface loginSurface) gin.HandlerFunc {
	return func(c *gin.Context) {
		data := h.loginPage(c, surface)
		data.From = guard.SafeFrom(c.Query("from"))
		c.HTML(http.StatusOK, views.Login, data)
	}
}

// LoginSubmit signs the browser in through its Session Store, bounded by the
// surface's timeout, and waits for the profile before redirecting.
func (h HandlerSet) LoginSubmit(surface loginSurface) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := strings.TrimSpace(c.PostForm("email"))
		password := c.PostForm("password")
		from := guard.SafeFrom(c.PostForm("from"))

		render := func(status int, message string) {
			data := h.loginPage(c, surface)
			data.Email = email
			data.From = from
			data.Error = message
			c.HTML(status, views.Login, data)
		}

		if email == "" || password == "" {
			render(http.StatusUnprocessableEntity, msgMissingFields)
			return
		}

		entry, ok := middleware.BrowserEntry(c)
		if !ok {
			render(http.StatusServiceUnavailable, msgSessionsOffline)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), surface.Timeout)
		defer cancel()

		if err := entry.Store.SignIn(ctx, email, password); err != nil {
			status, message := loginFailure(ctx, err, surface.FriendlyErrors)
			h.log.Warn().Err(err).Str("surface", surface.Path).Int("status", status).Msg("sign-in failed")
			render(status, message)
			return
		}

		// A profile still resolving past the deadline is left to the
		// guard's pending page.
		_, _ = entry.Store.WaitSettled(ctx)

		target := from
		if target == "" {
			target = surface.Dashboard
		}
		c.Redirect(http.StatusSeeOther, target)
	}
}

func loginFailure(ctx context.Context, err error, friendly bool) (int, string) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, msgLoginTimeout
	}
	if errors.Is(err, authstate.ErrClosed) {
		return http.StatusServiceUnavailable, msgSessionsOffline
	}

	code := auth.CodeOf(err)
	if code == "" {
		return http.StatusServiceUnavailable, msgSignInFailed
	}
	status := http.StatusUnauthorized
	if code == auth.CodeProviderUnavailable {
		status = http.StatusServiceUnavailable
	}

	if friendly {
		switch code {
		case auth.CodeInvalidCredentials:
			return status, msgBadCredentials
		case auth.CodeEmailNotConfirmed:
			return status, msgConfirmEmail
		}
	}
	return status, auth.MessageOf(err)
}

func (h HandlerSet) AdminDashboard(c *gin.Context) {
	profile, _ := guard.Profile(c)
	status := h.checkHealth(c.Request.Context())

	c.HTML(http.StatusOK, views.AdminDashboard, pageData{
		Title:          "Admin Dashboard",
		Subtitle:       "System Management",
		Profile:        profile,
		Health:         &status,
		UserCount:      status.Users,
		ActiveSessions: h.registry.Len(),
		Activity:       h.recentActivity(c.Request.Context(), ""),
	})
}

func (h HandlerSet) MarketingDashboard(c *gin.Context) {
	profile, _ := guard.Profile(c)

	c.HTML(http.StatusOK, views.MarketingDashboard, pageData{
		Title:    "Marketing Dashboard",
		Subtitle: "Campaign Command Center",
		Profile:  profile,
		Activity: h.recentActivity(c.Request.Context(), profile.ID),
	})
}

func (h HandlerSet) recentActivity(ctx context.Context, userID string) []models.AuditEntry {
	if h.audit == nil {
		return nil
	}
	entries, err := h.audit.ListRecent(ctx, userID, activityLimit)
	if err != nil {
		h.log.Warn().Err(err).Msg("load recent activity")
		return nil
	}
	return entries
}

// LogoutPage signs the browser out. A failed remote sign-out leaves the
// session intact and says so.
func (h HandlerSet) LogoutPage(c *gin.Context) {
	entry, ok := middleware.BrowserEntry(c)
	if !ok {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}

	if err := entry.Store.SignOut(c.Request.Context()); err != nil {
		h.log.Error().Err(err).Msg("sign-out failed")
		c.HTML(http.StatusBadGateway, views.Failure, pageData{
			Title:   "Sign out failed",
			Message: msgSignOutFailed,
			Back:    "/",
		})
		return
	}

	c.Redirect(http.StatusSeeOther, "/")
}

// NotFound answers unknown API paths with the error document and sends
// everything else home.
func (h HandlerSet) NotFound(c *gin.Context) {
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		apierror.Abort(c, apierror.NotFound("Route", map[string]any{"path": c.Request.URL.Path}))
		return
	}
	c.Redirect(http.StatusFound, "/")
}
