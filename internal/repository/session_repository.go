package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"phaze17/dashboard/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

const selectSession = `
	SELECT id, user_id, refresh_token_hash, ip_address, user_agent, created_at, last_seen_at, expires_at
	FROM auth_sessions`

// SessionRepository stores refresh sessions. A row's id is the sid claim of
// every access token minted from it.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create inserts a session and, when keep is positive, prunes the user's
// least recently seen sessions beyond keep in the same transaction.
func (r *SessionRepository) Create(ctx context.Context, s models.Session, keep int) (pruned int64, err error) {
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO auth_sessions (id, user_id, refresh_token_hash, ip_address, user_agent, created_at, last_seen_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), $6)`,
			s.ID, s.UserID, s.RefreshTokenHash, s.IPAddress, s.UserAgent, s.ExpiresAt,
		); err != nil {
			return err
		}
		if keep <= 0 {
			return nil
		}
		tag, err := tx.Exec(ctx, `
			DELETE FROM auth_sessions WHERE id IN (
				SELECT id FROM auth_sessions WHERE user_id = $1
				ORDER BY last_seen_at DESC, created_at DESC OFFSET $2
			)`, s.UserID, keep)
		pruned = tag.RowsAffected()
		return err
	})
	return pruned, err
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (models.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, selectSession+` WHERE id = $1`, id))
}

func (r *SessionRepository) FindByRefreshHash(ctx context.Context, digest []byte) (models.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, selectSession+` WHERE refresh_token_hash = $1`, digest))
}

// ListByUser returns the user's sessions, most recently seen first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx, selectSession+` WHERE user_id = $1 ORDER BY last_seen_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Session, error) {
		return scanSession(row)
	})
}

// Rotate replaces the refresh digest and pushes out the expiry. Once rotated
// the previous refresh token no longer resolves.
func (r *SessionRepository) Rotate(ctx context.Context, id string, digest []byte, expiresAt time.Time) error {
	return r.execOne(ctx, `
		UPDATE auth_sessions
		SET refresh_token_hash = $2, expires_at = $3, last_seen_at = NOW()
		WHERE id = $1`, id, digest, expiresAt)
}

func (r *SessionRepository) Touch(ctx context.Context, id, ip, userAgent string) error {
	return r.execOne(ctx, `
		UPDATE auth_sessions
		SET last_seen_at = NOW(),
		    ip_address = COALESCE(NULLIF($2, ''), ip_address),
		    user_agent = COALESCE(NULLIF($3, ''), user_agent)
		WHERE id = $1`, id, ip, userAgent)
}

func (r *SessionRepository) DeleteByID(ctx context.Context, id string) error {
	return r.execOne(ctx, `DELETE FROM auth_sessions WHERE id = $1`, id)
}

func (r *SessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE user_id = $1`, userID)
	return tag.RowsAffected(), err
}

// DeleteExpired is run by the worker's cleanup task.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE expires_at < $1`, now)
	return tag.RowsAffected(), err
}

func (r *SessionRepository) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	switch {
	case err != nil:
		return err
	case tag.RowsAffected() == 0:
		return ErrSessionNotFound
	}
	return nil
}

func scanSession(row pgx.Row) (models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.IPAddress, &s.UserAgent,
		&s.CreatedAt, &s.LastSeenAt, &s.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, ErrSessionNotFound
	}
	return s, err
}
