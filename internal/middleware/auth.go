package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"phaze17/dashboard/internal/apierror"
	"phaze17/dashboard/internal/auth"
	"phaze17/dashboard/internal/models"
	"phaze17/dashboard/internal/repository"
)

const (
	ContextAccessToken = "access_token"
	ContextPrincipal   = "principal"
	ContextCurrentUser = "current_user"
)

type TokenVerifier interface {
	Verify(ctx context.Context, accessToken string) (auth.Principal, error)
	Touch(ctx context.Context, sessionID string, meta auth.ClientMeta)
}

type ProfileLookup interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

// Auth admits requests carrying a live bearer access token and loads the
// caller's profile.
func Auth(verifier TokenVerifier, users ProfileLookup, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			apierror.Abort(c, apierror.ErrUnauthorized.WithMessage("Missing bearer token"))
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		principal, err := verifier.Verify(c.Request.Context(), tokenStr)
		if err != nil {
			if auth.IsSessionInvalid(err) {
				apierror.Abort(c, apierror.ErrUnauthorized.WithMessage(auth.MessageOf(err)))
				return
			}
			log.Error().Err(err).Msg("verify access token")
			apierror.Abort(c, apierror.ErrInternal)
			return
		}

		user, err := users.GetByID(c.Request.Context(), principal.Identity.ID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				apierror.Abort(c, apierror.ErrForbidden.WithMessage("No profile for this account"))
				return
			}
			log.Error().Err(err).Str("user_id", principal.Identity.ID).Msg("load profile")
			apierror.Abort(c, apierror.ErrInternal)
			return
		}

		verifier.Touch(c.Request.Context(), principal.SessionID, auth.ClientMeta{
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		})

		c.Set(ContextAccessToken, tokenStr)
		c.Set(ContextPrincipal, principal)
		c.Set(ContextCurrentUser, user)

		c.Next()
	}
}

func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(ContextCurrentUser)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}

func CurrentPrincipal(c *gin.Context) (auth.Principal, bool) {
	v, ok := c.Get(ContextPrincipal)
	if !ok {
		return auth.Principal{}, false
	}
	principal, ok := v.(auth.Principal)
	return principal, ok
}
