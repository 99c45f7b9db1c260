package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"phaze17/dashboard/internal/models"
)

var ErrIdentityNotFound = errors.New("identity not found")

type IdentityRepository struct {
	pool *pgxpool.Pool
}

func NewIdentityRepository(pool *pgxpool.Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

func (r *IdentityRepository) Create(ctx context.Context, cred models.Credential) error {
	const query = `
		INSERT INTO identities (id, email, password_hash, email_confirmed_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	_, err := r.pool.Exec(ctx, query, cred.ID, cred.Email, cred.PasswordHash, cred.EmailConfirmedAt)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (r *IdentityRepository) GetByID(ctx context.Context, id string) (models.Credential, error) {
	const query = `
		SELECT id, email, password_hash, email_confirmed_at, created_at
		FROM identities WHERE id = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *IdentityRepository) FindByEmail(ctx context.Context, email string) (models.Credential, error) {
	const query = `
		SELECT id, email, password_hash, email_confirmed_at, created_at
		FROM identities WHERE lower(email) = lower($1)
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, email))
}

func (r *IdentityRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM identities WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

func (r *IdentityRepository) UpdatePasswordHash(ctx context.Context, id string, hash []byte) error {
	const query = `UPDATE identities SET password_hash = $2 WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, hash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

func (r *IdentityRepository) scanOne(row pgx.Row) (models.Credential, error) {
	var cred models.Credential
	if err := row.Scan(
		&cred.ID,
		&cred.Email,
		&cred.PasswordHash,
		&cred.EmailConfirmedAt,
		&cred.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Credential{}, ErrIdentityNotFound
		}
		return models.Credential{}, err
	}
	return cred, nil
}
