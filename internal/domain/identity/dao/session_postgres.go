package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/blinka/internal/domain/identity/entity"
)

// SessionPostgres implements session repository for PostgreSQL
type SessionPostgres struct {
	pool *pgxpool.Pool
}

// NewSessionPostgres creates a new PostgreSQL session repository
func NewSessionPostgres(pool *pgxpool.Pool) *SessionPostgres {
	return &SessionPostgres{pool: pool}
}

// Create stores a new session
func (r *SessionPostgres) Create(ctx context.Context, rec *entity.SessionRecord) error {
	err := r.pool.QueryRow(ctx,
		"INSERT INTO sessions (id, identity_id, expires_at) VALUES ($1, $2, $3) RETURNING created_at",
		rec.ID, rec.IdentityID, rec.ExpiresAt,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// Get retrieves a session by id
func (r *SessionPostgres) Get(ctx context.Context, id string) (*entity.SessionRecord, error) {
	var rec entity.SessionRecord
	err := r.pool.QueryRow(ctx,
		"SELECT id, identity_id, created_at, expires_at, revoked_at FROM sessions WHERE id = $1", id,
	).Scan(&rec.ID, &rec.IdentityID, &rec.CreatedAt, &rec.ExpiresAt, &rec.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return &rec, nil
}

// Revoke marks a session revoked. Revoking twice keeps the first timestamp.
func (r *SessionPostgres) Revoke(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, "UPDATE sessions SET revoked_at = COALESCE(revoked_at, now()) WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

// DeleteInactive removes sessions that expired or were revoked before cutoff
func (r *SessionPostgres) DeleteInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		"DELETE FROM sessions WHERE expires_at < $1 OR revoked_at < $1",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting inactive sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
