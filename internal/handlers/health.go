package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	healthTimeout = 2 * time.Second

	// msgDatabaseUnavailable is shown to anonymous visitors; the driver
	// error goes to the log only.
	msgDatabaseUnavailable = "Unable to reach the database. Please try again shortly."
)

type healthStatus struct {
	Healthy bool   `json:"-"`
	Error   string `json:"-"`

	Status      string `json:"status"`
	Database    string `json:"database"`
	Users       int    `json:"users"`
	Cache       string `json:"cache"`
	Storage     string `json:"storage"`
	Environment string `json:"environment"`
}

// checkHealth counts profile rows, then pings cache and object storage.
// Only the database decides Healthy.
func (h HandlerSet) checkHealth(ctx context.Context) healthStatus {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	status := healthStatus{
		Healthy:     true,
		Status:      "ok",
		Database:    "ok",
		Cache:       "disabled",
		Storage:     "disabled",
		Environment: h.cfg.Environment,
	}

	count, err := h.profiles.Count(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("database health check failed")
		status.Healthy = false
		status.Status = "degraded"
		status.Database = "error"
		status.Error = msgDatabaseUnavailable
	}
	status.Users = count

	if h.cache != nil {
		status.Cache = "ok"
		if err := h.cache(ctx); err != nil {
			h.log.Error().Err(err).Msg("redis ping failed")
			status.Status = "degraded"
			status.Cache = "error"
		}
	}

	if h.storage != nil {
		status.Storage = "ok"
		if err := h.storage(ctx); err != nil {
			h.log.Warn().Err(err).Msg("object storage ping failed")
			status.Storage = "error"
		}
	}

	return status
}

func (h HandlerSet) Health(c *gin.Context) {
	status := h.checkHealth(c.Request.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
