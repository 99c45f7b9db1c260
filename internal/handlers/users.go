package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"phaze17/dashboard/internal/apierror"
	"phaze17/dashboard/internal/ids"
	"phaze17/dashboard/internal/media"
	"phaze17/dashboard/internal/models"
	"phaze17/dashboard/internal/repository"
	"phaze17/dashboard/internal/service"
)

type userResponse struct {
	ID          string             `json:"id"`
	Email       string             `json:"email"`
	Name        string             `json:"name"`
	Role        models.UserRole    `json:"role"`
	MFAEnabled  bool               `json:"mfa_enabled"`
	Preferences models.Preferences `json:"preferences"`
	Bio         *string            `json:"bio"`
	AvatarURL   *string            `json:"avatar_url"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func toUserResponse(u models.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.FullName,
		Role:        u.Role,
		MFAEnabled:  u.MFAEnabled,
		Preferences: u.Preferences,
		Bio:         u.Bio,
		AvatarURL:   u.AvatarURL,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

type listUsersQuery struct {
	Page   int    `form:"page" json:"page" binding:"omitempty,min=1"`
	Limit  int    `form:"limit" json:"limit" binding:"omitempty,min=1,max=100"`
	SortBy string `form:"sort_by" json:"sort_by" binding:"omitempty,oneof=created_at updated_at name email"`
	Order  string `form:"order" json:"order" binding:"omitempty,oneof=asc desc"`
	Search string `form:"search" json:"search"`
}

func (h HandlerSet) ListUsers(c *gin.Context) {
	var q listUsersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		apierror.Abort(c, apierror.FromBinding(err))
		return
	}

	users, page, err := h.users.List(c.Request.Context(), repository.ListParams{
		Page:   q.Page,
		Limit:  q.Limit,
		SortBy: q.SortBy,
		Order:  q.Order,
		Search: q.Search,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	data := make([]userResponse, 0, len(users))
	for _, u := range users {
		data = append(data, toUserResponse(u))
	}
	c.JSON(http.StatusOK, gin.H{"data": data, "pagination": page})
}

type createUserRequest struct {
	Email    string          `json:"email" binding:"required,email"`
	Name     string          `json:"name" binding:"required,min=2,max=100"`
	Password string          `json:"password" binding:"required,min=8"`
	Bio      *string         `json:"bio" binding:"omitempty,max=500"`
	Role     models.UserRole `json:"role" binding:"omitempty,oneof=admin campaign_manager analyst operator"`
}

func (h HandlerSet) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Abort(c, apierror.FromBinding(err))
		return
	}

	user, err := h.users.Create(c.Request.Context(), service.CreateUserInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.Name,
		Role:     req.Role,
		Bio:      req.Bio,
	})
	if err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			apierror.Abort(c, apierror.ErrConflict.
				WithMessage("User with this email already exists").
				WithDetails(map[string]any{"email": req.Email}))
			return
		}
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": toUserResponse(user)})
}

func (h HandlerSet) GetUser(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toUserResponse(user)})
}

type updateUserRequest struct {
	Name      *string `json:"name" binding:"omitempty,min=2,max=100"`
	Bio       *string `json:"bio" binding:"omitempty,max=500"`
	AvatarURL *string `json:"avatar_url" binding:"omitempty,url"`
}

func (h HandlerSet) UpdateUser(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Abort(c, apierror.FromBinding(err))
		return
	}

	user, err := h.users.Update(c.Request.Context(), id, repository.UserUpdate{
		FullName:  req.Name,
		Bio:       req.Bio,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toUserResponse(user)})
}

func (h HandlerSet) DeleteUser(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type updateRoleRequest struct {
	Role models.UserRole `json:"role" binding:"required,oneof=admin campaign_manager analyst operator"`
}

func (h HandlerSet) UpdateUserRole(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Abort(c, apierror.FromBinding(err))
		return
	}

	user, err := h.users.UpdateRole(c.Request.Context(), id, req.Role)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toUserResponse(user)})
}

func (h HandlerSet) UploadAvatar(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, service.MaxAvatarBytes+64<<10)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		apierror.Abort(c, apierror.ErrValidation.WithDetails(map[string]any{"file": "file is required"}))
		return
	}
	defer file.Close()

	user, err := h.avatars.Upload(c.Request.Context(), id, file, header)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyAvatar),
			errors.Is(err, service.ErrAvatarTooLarge),
			errors.Is(err, service.ErrTypeMismatch),
			errors.Is(err, media.ErrUnsupportedFormat),
			errors.Is(err, media.ErrNotSVG):
			apierror.Abort(c, apierror.ErrValidation.WithDetails(map[string]any{"file": err.Error()}))
		default:
			h.fail(c, err)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toUserResponse(user)})
}

func userIDParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !ids.IsUUID(id) {
		apierror.Abort(c, apierror.ErrValidation.WithDetails(map[string]any{"id": "id must be a valid UUID"}))
		return "", false
	}
	return id, true
}

// fail maps service errors onto the API error document.
func (h HandlerSet) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		apierror.Abort(c, apierror.NotFound("User", map[string]any{"user_id": c.Param("id")}))
	case errors.Is(err, service.ErrInvalidRole):
		apierror.Abort(c, apierror.ErrValidation.WithDetails(map[string]any{"role": "role is invalid"}))
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		apierror.Abort(c, apierror.ErrInternal)
	}
}
