package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"phaze17/dashboard/internal/events"
	"phaze17/dashboard/internal/jobs"
	"phaze17/dashboard/internal/metrics"
	"phaze17/dashboard/internal/models"
)

type auditStore interface {
	Insert(ctx context.Context, entry models.AuditEntry) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type sessionCleaner interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Processor handles entries of the worker stream.
type Processor struct {
	audit     auditStore
	sessions  sessionCleaner
	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

func NewProcessor(audit auditStore, sessions sessionCleaner, retention time.Duration, logger zerolog.Logger) *Processor {
	return &Processor{
		audit:     audit,
		sessions:  sessions,
		retention: retention,
		logger:    logger.With().Str("component", "processor").Logger(),
		now:       time.Now,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	taskType := stringValue(msg.Values, "type")

	var err error
	switch taskType {
	case events.TaskType:
		err = p.handleAuthEvent(ctx, msg)
	case jobs.TaskCleanup:
		err = p.handleCleanup(ctx)
	case jobs.TaskAuditPrune:
		err = p.handleAuditPrune(ctx)
	default:
		p.logger.Warn().Str("type", taskType).Str("message_id", msg.ID).Msg("unknown task type")
		metrics.TasksProcessed.WithLabelValues("unknown", "skipped").Inc()
		return nil
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.TasksProcessed.WithLabelValues(taskType, result).Inc()
	return err
}

func (p *Processor) handleAuthEvent(ctx context.Context, msg redis.XMessage) error {
	ev, err := events.Decode(stringValue(msg.Values, "event"))
	if err != nil {
		// A malformed entry will never decode; ack it instead of retrying.
		p.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("drop malformed auth event")
		return nil
	}

	entry := models.AuditEntry{
		ID:         ev.ID,
		EventType:  string(ev.Type),
		UserID:     ev.UserID,
		SessionID:  ev.SessionID,
		OccurredAt: ev.OccurredAt,
	}
	if entry.ID == "" {
		entry.ID = msg.ID
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = p.now().UTC()
	}

	if err := p.audit.Insert(ctx, entry); err != nil {
		return fmt.Errorf("record auth event: %w", err)
	}
	p.logger.Debug().Str("event", entry.EventType).Str("user_id", entry.UserID).Msg("auth event recorded")
	return nil
}

func (p *Processor) handleCleanup(ctx context.Context) error {
	n, err := p.sessions.DeleteExpired(ctx, p.now())
	if err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}
	p.logger.Info().Int64("removed", n).Msg("expired sessions removed")
	return nil
}

func (p *Processor) handleAuditPrune(ctx context.Context) error {
	cutoff := p.now().Add(-p.retention)
	n, err := p.audit.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune audit log: %w", err)
	}
	p.logger.Info().Int64("removed", n).Time("cutoff", cutoff).Msg("audit log pruned")
	return nil
}

func stringValue(values map[string]interface{}, key string) string {
	switch v := values[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
