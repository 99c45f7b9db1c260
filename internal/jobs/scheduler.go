package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	TaskCleanup    = "cleanup"
	TaskAuditPrune = "audit_prune"
)

// Enqueuer appends a task to the worker stream.
type Enqueuer interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

type Scheduler struct {
	cron   *cron.Cron
	queue  Enqueuer
	stream string
	log    zerolog.Logger
}

func NewScheduler(queue Enqueuer, stream string, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:   c,
		queue:  queue,
		stream: stream,
		log:    log.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil {
		return nil
	}

	if _, err := s.cron.AddFunc("0 0 */1 * * *", func() { s.enqueue(TaskCleanup) }); err != nil { // expired refresh sessions
		return err
	}
	if _, err := s.cron.AddFunc("0 30 3 * * *", func() { s.enqueue(TaskAuditPrune) }); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits up to five seconds for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler jobs still running at shutdown")
	}
}

func (s *Scheduler) enqueue(taskType string) {
	if err := s.Enqueue(context.Background(), taskType); err != nil {
		s.log.Error().Err(err).Str("type", taskType).Msg("enqueue task failed")
	}
}

// Enqueue adds a task with no payload to the stream.
func (s *Scheduler) Enqueue(ctx context.Context, taskType string) error {
	if s.queue == nil {
		return nil
	}
	return s.queue.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{"type": taskType},
	}).Err()
}
