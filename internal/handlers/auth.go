package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"phaze17/dashboard/internal/apierror"
	"phaze17/dashboard/internal/auth"
	"phaze17/dashboard/internal/middleware"
	"phaze17/dashboard/internal/models"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	TokenType    string          `json:"token_type"`
	ExpiresAt    time.Time       `json:"expires_at"`
	SessionID    string          `json:"session_id"`
	User         models.Identity `json:"user"`
}

func sendAuthResponse(c *gin.Context, session models.AuthSession) {
	c.JSON(http.StatusOK, authResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    "bearer",
		ExpiresAt:    session.ExpiresAt,
		SessionID:    session.SessionID,
		User:         session.User,
	})
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Abort(c, apierror.FromBinding(err))
		return
	}

	session, err := h.auth.SignInWithPassword(c.Request.Context(), req.Email, req.Password, auth.ClientMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	})
	if err != nil {
		h.authFail(c, err)
		return
	}

	sendAuthResponse(c, session)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h HandlerSet) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Abort(c, apierror.FromBinding(err))
		return
	}

	session, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.authFail(c, err)
		return
	}

	sendAuthResponse(c, session)
}

func (h HandlerSet) Logout(c *gin.Context) {
	principal, ok := middleware.CurrentPrincipal(c)
	if !ok {
		apierror.Abort(c, apierror.ErrUnauthorized)
		return
	}

	if err := h.auth.SignOut(c.Request.Context(), principal.SessionID); err != nil {
		h.authFail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h HandlerSet) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		apierror.Abort(c, apierror.ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toUserResponse(user)})
}

type sessionResponse struct {
	ID         string    `json:"id"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Current    bool      `json:"current"`
}

func (h HandlerSet) ListSessions(c *gin.Context) {
	principal, ok := middleware.CurrentPrincipal(c)
	if !ok {
		apierror.Abort(c, apierror.ErrUnauthorized)
		return
	}

	sessions, err := h.auth.Sessions(c.Request.Context(), principal.Identity.ID)
	if err != nil {
		h.authFail(c, err)
		return
	}

	resp := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		resp = append(resp, sessionResponse{
			ID:         session.ID,
			IPAddress:  session.IPAddress,
			UserAgent:  session.UserAgent,
			CreatedAt:  session.CreatedAt,
			LastSeenAt: session.LastSeenAt,
			ExpiresAt:  session.ExpiresAt,
			Current:    session.ID == principal.SessionID,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (h HandlerSet) RevokeSession(c *gin.Context) {
	principal, ok := middleware.CurrentPrincipal(c)
	if !ok {
		apierror.Abort(c, apierror.ErrUnauthorized)
		return
	}

	sessionID := c.Param("sessionId")
	if sessionID == principal.SessionID {
		apierror.Abort(c, apierror.ErrInvalidRequest.WithMessage("Use logout to end the current session"))
		return
	}

	if err := h.auth.RevokeSession(c.Request.Context(), principal.Identity.ID, sessionID); err != nil {
		h.authFail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// authFail maps provider errors onto the API error document, keeping the
// provider's message.
func (h HandlerSet) authFail(c *gin.Context, err error) {
	code := auth.CodeOf(err)
	switch code {
	case auth.CodeInvalidCredentials, auth.CodeRefreshTokenInvalid, auth.CodeSessionExpired, auth.CodeInvalidToken:
		apierror.Abort(c, apierror.ErrUnauthorized.WithMessage(auth.MessageOf(err)).
			WithDetails(map[string]any{"code": code}))
	case auth.CodeEmailNotConfirmed:
		apierror.Abort(c, apierror.ErrForbidden.WithMessage(auth.MessageOf(err)).
			WithDetails(map[string]any{"code": code}))
	case auth.CodeSessionNotFound:
		apierror.Abort(c, apierror.NotFound("Session", map[string]any{"session_id": c.Param("sessionId")}))
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("auth provider failure")
		apierror.Abort(c, apierror.ErrInternal)
	}
}
