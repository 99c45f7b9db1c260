package main

import (
	"context"
	"crypto/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"phaze17/dashboard/internal/auth"
	"phaze17/dashboard/internal/authstate"
	"phaze17/dashboard/internal/cache"
	"phaze17/dashboard/internal/config"
	"phaze17/dashboard/internal/database"
	"phaze17/dashboard/internal/events"
	"phaze17/dashboard/internal/handlers"
	"phaze17/dashboard/internal/jobs"
	"phaze17/dashboard/internal/log"
	"phaze17/dashboard/internal/middleware"
	"phaze17/dashboard/internal/openapi"
	"phaze17/dashboard/internal/profile"
	"phaze17/dashboard/internal/repository"
	"phaze17/dashboard/internal/server"
	"phaze17/dashboard/internal/service"
	"phaze17/dashboard/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	if err := database.Migrate(cfg.Postgres.DSN); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure avatar bucket failed")
	}

	bus := events.NewBus(redisClient, cfg.Auth.EventsChannel, cfg.Auth.EventsStream, logger)
	go func() {
		if err := bus.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("event relay stopped")
		}
	}()

	identities := repository.NewIdentityRepository(dbPool)
	sessionsRepo := repository.NewSessionRepository(dbPool)
	users := repository.NewUserRepository(dbPool)
	audit := repository.NewAuditRepository(dbPool)

	authService := auth.NewService(identities, sessionsRepo, bus, auth.Options{
		AccessSecret: cfg.Security.JWTAccessSecret,
		AccessTTL:    cfg.Security.JWTAccessTTL,
		RefreshTTL:   cfg.Security.JWTRefreshTTL,
		MaxSessions:  cfg.Security.MaxSessions,
	}, logger)
	browserStorage := auth.NewRedisStorage(redisClient, cfg.Security.JWTRefreshTTL)

	resolver := profile.NewResolver(users, cfg.Auth.ProfileTimeout, logger)
	registry := authstate.NewRegistry(
		cfg.Auth.RegistrySize,
		cfg.Auth.RegistryTTL,
		func(key string, meta auth.ClientMeta) authstate.ProviderClient {
			return auth.NewClient(key, authService, browserStorage, bus, meta, logger)
		},
		resolver,
		cfg.Auth.ProfileTimeout+time.Second,
		logger,
	)

	openAPIDoc, err := openapi.JSON()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load openapi document")
	}

	handlerSet := handlers.NewHandlerSet(handlers.Deps{
		Log:      logger,
		Config:   cfg,
		Auth:     authService,
		Users:    service.NewUserService(users, authService, logger),
		Avatars:  service.NewAvatarService(users, objectStore, authService, logger),
		Profiles: users,
		Audit:    audit,
		Registry: registry,
		Cookies:  middleware.NewCookieStore(cookieSecret(cfg, logger), cfg.Security.CookieSecure, cfg.Security.JWTRefreshTTL),
		Cache:    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		Storage:  objectStore.Ping,
		OpenAPI:  openAPIDoc,
	})

	httpServer, err := server.NewHTTPServer(cfg, logger, handlerSet)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build http server")
	}

	scheduler := jobs.NewScheduler(redisClient, cfg.Worker.Stream, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	shutdown(logger, httpServer, scheduler, registry, dbPool, redisClient)
}

// cookieSecret falls back to a per-process key outside production; browsers
// then get a new key after every restart.
func cookieSecret(cfg *config.AppConfig, logger zerolog.Logger) []byte {
	if cfg.Security.CookieSecret != "" {
		return []byte(cfg.Security.CookieSecret)
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		logger.Fatal().Err(err).Msg("generate cookie secret")
	}
	logger.Warn().Msg("security.cookiesecret not set, using a random key")
	return secret
}

func shutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, registry *authstate.Registry, db *pgxpool.Pool, redisClient *redis.Client) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop()
	registry.Close()

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
