package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"phaze17/dashboard/internal/cache"
	"phaze17/dashboard/internal/config"
	"phaze17/dashboard/internal/database"
	"phaze17/dashboard/internal/log"
	"phaze17/dashboard/internal/queue"
	"phaze17/dashboard/internal/repository"
	"phaze17/dashboard/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level).With().Str("service", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	client, err := cache.NewRedisClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	processor := tasks.NewProcessor(
		repository.NewAuditRepository(dbPool),
		repository.NewSessionRepository(dbPool),
		cfg.Worker.AuditRetention,
		logger,
	)
	consumer := queue.NewConsumer(client, cfg.Worker, logger, processor)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn().Msg("consumer did not stop in time")
	}
}
