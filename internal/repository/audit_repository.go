package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"phaze17/dashboard/internal/models"
)

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Insert is idempotent on entry id so redelivered stream entries are harmless.
func (r *AuditRepository) Insert(ctx context.Context, entry models.AuditEntry) error {
	const query = `
		INSERT INTO audit_log (id, event_type, user_id, session_id, occurred_at, recorded_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, entry.ID, entry.EventType, entry.UserID, entry.SessionID, entry.OccurredAt)
	return err
}

// ListRecent returns the newest entries for userID, or for everyone when
// userID is empty.
func (r *AuditRepository) ListRecent(ctx context.Context, userID string, limit int) ([]models.AuditEntry, error) {
	const query = `
		SELECT id, event_type, user_id, session_id, occurred_at, recorded_at
		FROM audit_log
		WHERE $1 = '' OR user_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.EventType, &e.UserID, &e.SessionID, &e.OccurredAt, &e.RecordedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM audit_log WHERE occurred_at < $1`
	cmd, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
