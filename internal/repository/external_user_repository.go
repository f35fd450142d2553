package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// ExternalUserRepository encapsulates external requester persistence. Email
// is the natural key for matching inbound mail to requesters.
type ExternalUserRepository interface {
	Create(ctx context.Context, user *domain.ExternalUser) error
	GetByID(ctx context.Context, id int64) (*domain.ExternalUser, error)
	GetByEmail(ctx context.Context, email string) (*domain.ExternalUser, error)
}

type externalUserRepository struct {
	db DBTX
}

// NewExternalUserRepository instantiates the repository.
func NewExternalUserRepository(db DBTX) ExternalUserRepository {
	return &externalUserRepository{db: db}
}

func (r *externalUserRepository) Create(ctx context.Context, user *domain.ExternalUser) error {
	const query = `
        INSERT INTO external_users (name, email, phone)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	return r.db.QueryRow(ctx, query, user.Name, user.Email, user.Phone).
		Scan(&user.ID, &user.CreatedAt)
}

func (r *externalUserRepository) GetByID(ctx context.Context, id int64) (*domain.ExternalUser, error) {
	const query = `
        SELECT id, name, email, phone, created_at, deleted_at
        FROM external_users WHERE id=$1 AND deleted_at IS NULL`
	return scanExternalUserRow(r.db.QueryRow(ctx, query, id))
}

// GetByEmail returns nil without error when no requester matches.
func (r *externalUserRepository) GetByEmail(ctx context.Context, email string) (*domain.ExternalUser, error) {
	const query = `
        SELECT id, name, email, phone, created_at, deleted_at
        FROM external_users WHERE email=$1 AND deleted_at IS NULL`
	user, err := scanExternalUserRow(r.db.QueryRow(ctx, query, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

func scanExternalUserRow(row pgx.Row) (*domain.ExternalUser, error) {
	var user domain.ExternalUser
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Phone,
		&user.CreatedAt,
		&user.DeletedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
