package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"phaze17/dashboard/internal/models"
	"phaze17/dashboard/internal/repository"
)

var ErrInvalidRole = errors.New("invalid role")

type userStore interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	Update(ctx context.Context, id string, upd repository.UserUpdate) (models.User, error)
	UpdateRole(ctx context.Context, id string, role models.UserRole) error
	List(ctx context.Context, params repository.ListParams) ([]models.User, int, error)
}

type updateNotifier interface {
	NotifyUserUpdated(ctx context.Context, userID string)
}

// Provider is the part of the auth provider user management needs.
type Provider interface {
	updateNotifier
	SignUp(ctx context.Context, email, password string, confirmed bool) (models.Identity, error)
	DeleteIdentity(ctx context.Context, userID string) error
	RevokeUser(ctx context.Context, userID string) error
}

type CreateUserInput struct {
	Email    string
	Password string
	FullName string
	Role     models.UserRole
	Bio      *string
}

type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalItems int  `json:"total_items"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

func newPagination(params repository.ListParams, total int) Pagination {
	pages := 0
	if total > 0 {
		pages = (total + params.Limit - 1) / params.Limit
	}
	return Pagination{
		Page:       params.Page,
		Limit:      params.Limit,
		TotalItems: total,
		TotalPages: pages,
		HasNext:    params.Page < pages,
		HasPrev:    params.Page > 1,
	}
}

type UserService struct {
	users    userStore
	provider Provider
	log      zerolog.Logger
}

func NewUserService(users userStore, provider Provider, log zerolog.Logger) *UserService {
	return &UserService{
		users:    users,
		provider: provider,
		log:      log.With().Str("component", "user_service").Logger(),
	}
}

func (s *UserService) List(ctx context.Context, params repository.ListParams) ([]models.User, Pagination, error) {
	params = params.Normalize()
	users, total, err := s.users.List(ctx, params)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("list users: %w", err)
	}
	return users, newPagination(params, total), nil
}

func (s *UserService) Get(ctx context.Context, id string) (models.User, error) {
	return s.users.GetByID(ctx, id)
}

// Create registers a confirmed identity and its profile row. The identity is
// removed again when the profile cannot be written.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (models.User, error) {
	role := in.Role
	if role == "" {
		role = models.UserRoleOperator
	}
	if !role.Valid() {
		return models.User{}, ErrInvalidRole
	}

	identity, err := s.provider.SignUp(ctx, in.Email, in.Password, true)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.users.Create(ctx, models.User{
		ID:          identity.ID,
		Email:       identity.Email,
		FullName:    strings.TrimSpace(in.FullName),
		Role:        role,
		Preferences: models.DefaultPreferences(),
		Bio:         in.Bio,
	})
	if err != nil {
		if delErr := s.provider.DeleteIdentity(context.WithoutCancel(ctx), identity.ID); delErr != nil {
			s.log.Error().Err(delErr).Str("user_id", identity.ID).Msg("orphaned identity after failed profile insert")
		}
		return models.User{}, err
	}

	s.log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("user created")
	return user, nil
}

func (s *UserService) Update(ctx context.Context, id string, upd repository.UserUpdate) (models.User, error) {
	user, err := s.users.Update(ctx, id, upd)
	if err != nil {
		return models.User{}, err
	}
	s.provider.NotifyUserUpdated(ctx, id)
	return user, nil
}

// UpdateRole writes a new role and tells live sessions of that user to
// re-resolve their profile.
func (s *UserService) UpdateRole(ctx context.Context, id string, role models.UserRole) (models.User, error) {
	if !role.Valid() {
		return models.User{}, ErrInvalidRole
	}
	if err := s.users.UpdateRole(ctx, id, role); err != nil {
		return models.User{}, err
	}
	s.provider.NotifyUserUpdated(ctx, id)
	s.log.Info().Str("user_id", id).Str("role", string(role)).Msg("role updated")
	return s.users.GetByID(ctx, id)
}

// Delete ends the user's sessions, then removes identity and profile.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if _, err := s.users.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.provider.RevokeUser(ctx, id); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	if err := s.provider.DeleteIdentity(ctx, id); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	s.log.Info().Str("user_id", id).Msg("user deleted")
	return nil
}
