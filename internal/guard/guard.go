package guard

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"phaze17/dashboard/internal/authstate"
	"phaze17/dashboard/internal/metrics"
	"phaze17/dashboard/internal/models"
)

type Kind int

const (
	Pending Kind = iota
	Redirect
	Denied
	Render
)

func (k Kind) String() string {
	switch k {
	case Pending:
		return "pending"
	case Redirect:
		return "redirect"
	case Denied:
		return "denied"
	case Render:
		return "render"
	}
	return "unknown"
}

type Decision struct {
	Kind Kind
}

// Decide maps a session snapshot and the required roles to a decision. The
// checks run in a fixed order: loading, identity, profile presence, role.
// An empty role set admits any signed-in identity.
func Decide(state authstate.State, required models.RoleSet) Decision {
	switch {
	case state.Loading:
		return Decision{Kind: Pending}
	case state.Identity == nil:
		return Decision{Kind: Redirect}
	case required.Empty():
		return Decision{Kind: Render}
	case state.Profile == nil:
		return Decision{Kind: Redirect}
	case !required.Contains(state.Profile.Role):
		return Decision{Kind: Denied}
	default:
		return Decision{Kind: Render}
	}
}

// StateSource is what the guard reads the session from.
type StateSource interface {
	WaitSettled(ctx context.Context) (authstate.State, error)
}

// Source finds the session for a request.
type Source func(c *gin.Context) (StateSource, bool)

type Options struct {
	Roles      models.RoleSet
	RedirectTo string
	// SettleWait bounds how long a request waits for an in-flight
	// resolution before answering with the pending page.
	SettleWait time.Duration
}

const (
	ContextIdentity = "guard_identity"
	ContextProfile  = "guard_profile"

	TemplatePending = "pending.html"
	TemplateDenied  = "denied.html"
)

// Require gates the following handlers behind Decide.
func Require(source Source, opts Options) gin.HandlerFunc {
	if opts.RedirectTo == "" {
		opts.RedirectTo = "/"
	}

	return func(c *gin.Context) {
		src, ok := source(c)
		if !ok {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), opts.SettleWait)
		state, _ := src.WaitSettled(ctx)
		cancel()

		decision := Decide(state, opts.Roles)
		metrics.GuardDecisions.WithLabelValues(decision.Kind.String()).Inc()

		switch decision.Kind {
		case Pending:
			c.Header("Refresh", "1")
			c.Header("Cache-Control", "no-store")
			c.HTML(http.StatusOK, TemplatePending, gin.H{
				"Title":   "Checking authentication",
				"Message": "Checking authentication...",
			})
			c.Abort()

		case Redirect:
			c.Redirect(http.StatusFound, RedirectURL(opts.RedirectTo, c.Request.URL.RequestURI()))
			c.Abort()

		case Denied:
			c.HTML(http.StatusForbidden, TemplateDenied, gin.H{
				"Title": "Access Denied",
				"Role":  state.Profile.Role.Label(),
				"Back":  backTarget(c),
			})
			c.Abort()

		default:
			c.Set(ContextIdentity, *state.Identity)
			if state.Profile != nil {
				c.Set(ContextProfile, *state.Profile)
			}
			c.Next()
		}
	}
}

// RedirectURL appends the originally requested location as "from".
func RedirectURL(target, from string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("from", from)
	u.RawQuery = q.Encode()
	return u.String()
}

// SafeFrom returns from when it is a local path, otherwise "".
func SafeFrom(from string) string {
	if !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") || strings.HasPrefix(from, "/\\") {
		return ""
	}
	return from
}

func backTarget(c *gin.Context) string {
	ref, err := url.Parse(c.Request.Referer())
	if err == nil && ref.Host == c.Request.Host {
		if path := SafeFrom(ref.RequestURI()); path != "" {
			return path
		}
	}
	return "/"
}

// Profile returns the profile the guard admitted, if any.
func Profile(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(ContextProfile)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}

func Identity(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return models.Identity{}, false
	}
	identity, ok := v.(models.Identity)
	return identity, ok
}
