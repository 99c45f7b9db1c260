package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"phaze17/dashboard/internal/ids"
)

const (
	HeaderRequestID  = "X-Request-Id"
	contextRequestID = "request_id"
)

// RequestID tags the request with an id and a child logger carrying it.
// Inbound ids are only trusted when they are UUIDs.
func RequestID(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if !ids.IsUUID(id) {
			id = ids.NewUUID()
		}
		c.Set(contextRequestID, id)
		c.Header(HeaderRequestID, id)

		scoped := log.With().Str("request_id", id).Logger()
		c.Request = c.Request.WithContext(scoped.WithContext(c.Request.Context()))
		c.Next()
	}
}

func RequestIDFrom(c *gin.Context) string {
	return c.GetString(contextRequestID)
}

// LoggerFrom returns the request's logger, or a disabled one outside
// RequestID.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	return zerolog.Ctx(c.Request.Context())
}
