package handlers

import (
	"context"
	"mime/multipart"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"phaze17/dashboard/internal/auth"
	"phaze17/dashboard/internal/authstate"
	"phaze17/dashboard/internal/config"
	"phaze17/dashboard/internal/guard"
	"phaze17/dashboard/internal/middleware"
	"phaze17/dashboard/internal/models"
	"phaze17/dashboard/internal/repository"
	"phaze17/dashboard/internal/service"
)

// AuthProvider is the bearer-token side of the auth provider.
type AuthProvider interface {
	middleware.TokenVerifier
	SignInWithPassword(ctx context.Context, email, password string, meta auth.ClientMeta) (models.AuthSession, error)
	Refresh(ctx context.Context, refreshToken string) (models.AuthSession, error)
	SignOut(ctx context.Context, sessionID string) error
	Sessions(ctx context.Context, userID string) ([]models.Session, error)
	RevokeSession(ctx context.Context, userID, sessionID string) error
}

type UserService interface {
	List(ctx context.Context, params repository.ListParams) ([]models.User, service.Pagination, error)
	Get(ctx context.Context, id string) (models.User, error)
	Create(ctx context.Context, in service.CreateUserInput) (models.User, error)
	Update(ctx context.Context, id string, upd repository.UserUpdate) (models.User, error)
	UpdateRole(ctx context.Context, id string, role models.UserRole) (models.User, error)
	Delete(ctx context.Context, id string) error
}

type AvatarService interface {
	Upload(ctx context.Context, userID string, file multipart.File, header *multipart.FileHeader) (models.User, error)
}

// ProfileStore is what health checks and bearer auth read profiles from.
type ProfileStore interface {
	middleware.ProfileLookup
	Count(ctx context.Context) (int, error)
}

type AuditReader interface {
	ListRecent(ctx context.Context, userID string, limit int) ([]models.AuditEntry, error)
}

// Pinger reports whether a backing service answers.
type Pinger func(ctx context.Context) error

type Deps struct {
	Log      zerolog.Logger
	Config   *config.AppConfig
	Auth     AuthProvider
	Users    UserService
	Avatars  AvatarService
	Profiles ProfileStore
	Audit    AuditReader
	Registry *authstate.Registry
	Cookies  sessions.Store
	Cache    Pinger
	Storage  Pinger
	OpenAPI  []byte
}

type HandlerSet struct {
	log           zerolog.Logger
	cfg           *config.AppConfig
	auth          AuthProvider
	users         UserService
	avatars       AvatarService
	profiles      ProfileStore
	audit         AuditReader
	registry      *authstate.Registry
	cookies       sessions.Store
	cache         Pinger
	storage       Pinger
	openapi       []byte
	signInTimeout time.Duration
}

func NewHandlerSet(deps Deps) HandlerSet {
	return HandlerSet{
		log:           deps.Log.With().Str("component", "http").Logger(),
		cfg:           deps.Config,
		auth:          deps.Auth,
		users:         deps.Users,
		avatars:       deps.Avatars,
		profiles:      deps.Profiles,
		audit:         deps.Audit,
		registry:      deps.Registry,
		cookies:       deps.Cookies,
		cache:         deps.Cache,
		storage:       deps.Storage,
		openapi:       deps.OpenAPI,
		signInTimeout: deps.Config.Auth.SignInTimeout,
	}
}

// Register mounts the JSON API under router.
func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)
	router.GET("/openapi.json", h.OpenAPI)

	requireAuth := middleware.Auth(h.auth, h.profiles, h.log)
	admin := middleware.RequireRoles(models.UserRoleAdmin)

	v1 := router.Group("/v1")
	{
		v1.GET("/session", middleware.BrowserSession(h.cookies, h.registry, h.log), h.SessionSnapshot)

		authGroup := v1.Group("/auth")
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)

		protected := v1.Group("/auth", requireAuth)
		protected.POST("/logout", h.Logout)
		protected.GET("/me", h.Me)
		protected.GET("/sessions", h.ListSessions)
		protected.DELETE("/sessions/:sessionId", h.RevokeSession)

		users := v1.Group("/users", requireAuth)
		users.GET("", h.ListUsers)
		users.POST("", admin, h.CreateUser)
		users.GET("/:id", h.GetUser)
		users.PUT("/:id", middleware.RequireSelfOrRoles("id", models.UserRoleAdmin), h.UpdateUser)
		users.DELETE("/:id", admin, h.DeleteUser)
		users.PATCH("/:id/role", admin, h.UpdateUserRole)
		users.PUT("/:id/avatar", middleware.RequireSelfOrRoles("id", models.UserRoleAdmin), h.UploadAvatar)

		v1.GET("/audit", requireAuth, admin, h.ListAudit)
	}
}

// RegisterPages mounts the server-rendered dashboard.
func (h HandlerSet) RegisterPages(engine *gin.Engine) {
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	pages := engine.Group("/", middleware.BrowserSession(h.cookies, h.registry, h.log))
	pages.GET("/", h.Landing)

	for _, surface := range []loginSurface{adminSurface(h.signInTimeout), marketingSurface()} {
		pages.GET(surface.Path, h.LoginPage(surface))
		pages.POST(surface.Path, h.LoginSubmit(surface))
	}

	pages.GET("/admin/dashboard", guard.Require(middleware.BrowserStateSource, guard.Options{
		Roles:      models.NewRoleSet(models.UserRoleAdmin),
		RedirectTo: "/admin/login",
		SettleWait: settleWait,
	}), h.AdminDashboard)

	pages.GET("/marketing/dashboard", guard.Require(middleware.BrowserStateSource, guard.Options{
		Roles:      models.NewRoleSet(models.UserRoleAdmin, models.UserRoleCampaignManager, models.UserRoleAnalyst),
		RedirectTo: "/marketing/login",
		SettleWait: settleWait,
	}), h.MarketingDashboard)

	pages.POST("/logout", h.LogoutPage)

	engine.NoRoute(h.NotFound)
}
