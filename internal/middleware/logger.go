package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// quietPaths are polled by probes and scrapers; they log at debug.
var quietPaths = map[string]bool{
	"/metrics":     true,
	"/api/healthz": true,
}

// Logger writes one access line per request through the request logger.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := LoggerFrom(c).WithLevel(accessLevel(c.Request.URL.Path, status))
		if ev == nil {
			return
		}

		surface := "page"
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			surface = "api"
		}
		ev = ev.Str("surface", surface).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("route", c.FullPath()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Str("client_ip", c.ClientIP()).
			Dur("latency", time.Since(began))

		if user, ok := CurrentUser(c); ok {
			ev = ev.Str("user_id", user.ID).Str("role", string(user.Role))
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			ev = ev.Strs("errors", errs.Errors())
		}
		ev.Msg("request served")
	}
}

func accessLevel(path string, status int) zerolog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zerolog.ErrorLevel
	case status >= http.StatusBadRequest:
		return zerolog.WarnLevel
	case quietPaths[path]:
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}
