package middleware

import (
	"github.com/gin-gonic/gin"

	"phaze17/dashboard/internal/apierror"
	"phaze17/dashboard/internal/models"
)

func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	roleSet := models.NewRoleSet(roles...)

	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			apierror.Abort(c, apierror.ErrUnauthorized)
			return
		}

		if !roleSet.Contains(user.Role) {
			apierror.Abort(c, apierror.ErrForbidden.WithDetails(map[string]any{
				"required": roles,
				"role":     user.Role,
			}))
			return
		}

		c.Next()
	}
}

// RequireSelfOrRoles admits the user named by the :id path parameter or any
// holder of roles.
func RequireSelfOrRoles(param string, roles ...models.UserRole) gin.HandlerFunc {
	roleSet := models.NewRoleSet(roles...)

	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			apierror.Abort(c, apierror.ErrUnauthorized)
			return
		}
		if user.ID != c.Param(param) && !roleSet.Contains(user.Role) {
			apierror.Abort(c, apierror.ErrForbidden)
			return
		}
		c.Next()
	}
}
