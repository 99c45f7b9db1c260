package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"

	"phaze17/dashboard/internal/auth"
	"phaze17/dashboard/internal/authstate"
	"phaze17/dashboard/internal/guard"
	"phaze17/dashboard/internal/ids"
)

const (
	BrowserCookieName = "phaze_session"
	browserKeyValue   = "browser"

	ContextBrowserEntry = "browser_entry"
)

// NewCookieStore builds the signed cookie store that carries the browser
// key. Tokens themselves never leave the server. lifetime should match the
// refresh session lifetime so the key outlives the tokens stored under it.
func NewCookieStore(secret []byte, secure bool, lifetime time.Duration) *sessions.CookieStore {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	// MaxAge also sets the codecs' age limit, which Options alone does not.
	store.MaxAge(int(lifetime.Seconds()))
	return store
}

// BrowserSession attaches the Session Store of the calling browser. The key
// cookie is issued on first visit and re-issued on every request, so its
// expiry slides with use.
func BrowserSession(store sessions.Store, registry *authstate.Registry, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := store.Get(c.Request, BrowserCookieName)
		if err != nil {
			// Tampered or rotated-secret cookies get a fresh key.
			log.Debug().Err(err).Msg("browser cookie rejected")
		}

		key, _ := session.Values[browserKeyValue].(string)
		if key == "" {
			key = ids.New()
			session.Values[browserKeyValue] = key
		}
		if err := session.Save(c.Request, c.Writer); err != nil {
			log.Error().Err(err).Msg("save browser cookie")
		}

		entry := registry.Get(c.Request.Context(), key, auth.ClientMeta{
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		})
		c.Set(ContextBrowserEntry, entry)
		c.Next()
	}
}

func BrowserEntry(c *gin.Context) (*authstate.Entry, bool) {
	v, ok := c.Get(ContextBrowserEntry)
	if !ok {
		return nil, false
	}
	entry, ok := v.(*authstate.Entry)
	return entry, ok
}

// BrowserStateSource feeds the route guard from BrowserSession.
func BrowserStateSource(c *gin.Context) (guard.StateSource, bool) {
	entry, ok := BrowserEntry(c)
	if !ok {
		return nil, false
	}
	return entry.Store, true
}
