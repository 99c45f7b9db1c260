package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"

	"phaze17/dashboard/internal/apierror"
	"phaze17/dashboard/internal/views"
)

// Recovery turns a handler panic into a 500. API callers get the JSON error
// document, browsers get the failure page.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("path", c.Request.URL.Path).
				Msg("handler panicked")

			if c.Writer.Written() {
				c.Abort()
				return
			}
			if strings.HasPrefix(c.Request.URL.Path, "/api/") {
				apierror.Abort(c, apierror.ErrInternal)
				return
			}
			c.HTML(http.StatusInternalServerError, views.Failure, gin.H{
				"Title":   "Something went wrong",
				"Message": "The page failed to load. Please try again.",
				"Back":    "/",
			})
			c.Abort()
		}()
		c.Next()
	}
}
