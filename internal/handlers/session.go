package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"phaze17/dashboard/internal/apierror"
	"phaze17/dashboard/internal/middleware"
	"phaze17/dashboard/internal/models"
)

type sessionSnapshot struct {
	Loading  bool             `json:"loading"`
	Identity *models.Identity `json:"identity"`
	Profile  *userResponse    `json:"profile"`
	Roles    []string         `json:"roles"`
}

// SessionSnapshot reports the calling browser's Session Store without
// waiting for an in-flight resolution.
func (h HandlerSet) SessionSnapshot(c *gin.Context) {
	entry, ok := middleware.BrowserEntry(c)
	if !ok {
		apierror.Abort(c, apierror.ErrInternal)
		return
	}

	state := entry.Store.State()
	resp := sessionSnapshot{
		Loading:  state.Loading,
		Identity: state.Identity,
		Roles:    []string{},
	}
	if state.Profile != nil {
		profile := toUserResponse(*state.Profile)
		resp.Profile = &profile
		for _, role := range models.Roles() {
			if state.HasRole(role) {
				resp.Roles = append(resp.Roles, string(role))
			}
		}
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, resp)
}

type auditResponse struct {
	ID         string    `json:"id"`
	EventType  string    `json:"event_type"`
	UserID     string    `json:"user_id"`
	SessionID  string    `json:"session_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (h HandlerSet) ListAudit(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 200 {
			apierror.Abort(c, apierror.ErrValidation.WithDetails(map[string]any{"limit": "limit must be between 1 and 200"}))
			return
		}
		limit = v
	}

	entries, err := h.audit.ListRecent(c.Request.Context(), c.Query("user_id"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}

	items := make([]auditResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, auditResponse{
			ID:         e.ID,
			EventType:  e.EventType,
			UserID:     e.UserID,
			SessionID:  e.SessionID,
			OccurredAt: e.OccurredAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (h HandlerSet) OpenAPI(c *gin.Context) {
	if len(h.openapi) == 0 {
		apierror.Abort(c, apierror.NotFound("OpenAPI document", nil))
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", h.openapi)
}
