package dao

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/blinka/internal/domain/identity/entity"
)

const identityColumns = `
	id, user_id, email, password_hash, username, bio, profile_pic, is_private,
	followers_count, following_count, posts_count, created_at, updated_at`

// IdentityPostgres implements identity repository for PostgreSQL
type IdentityPostgres struct {
	pool *pgxpool.Pool
}

// NewIdentityPostgres creates a new PostgreSQL identity repository
func NewIdentityPostgres(pool *pgxpool.Pool) *IdentityPostgres {
	return &IdentityPostgres{pool: pool}
}

// Create inserts a new identity
func (r *IdentityPostgres) Create(ctx context.Context, id *entity.Identity) error {
	query := `
		INSERT INTO profiles (id, user_id, email, password_hash, username, bio, is_private)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		id.ID,
		id.UserID,
		id.Email,
		id.PasswordHash,
		id.Username,
		id.Bio,
		id.IsPrivate,
	).Scan(&id.CreatedAt, &id.UpdatedAt)
	if err != nil {
		if uniqueErr := uniqueViolation(err); uniqueErr != nil {
			return uniqueErr
		}
		return fmt.Errorf("inserting identity: %w", err)
	}

	return nil
}

// GetByID retrieves an identity by its primary id
func (r *IdentityPostgres) GetByID(ctx context.Context, id string) (*entity.Identity, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+identityColumns+" FROM profiles WHERE id = $1", id)
	return scanIdentity(row)
}

// GetByEmail retrieves an identity by email
func (r *IdentityPostgres) GetByEmail(ctx context.Context, email string) (*entity.Identity, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+identityColumns+" FROM profiles WHERE email = $1", email)
	return scanIdentity(row)
}

// GetByUserID retrieves an identity by its user-facing numeric id
func (r *IdentityPostgres) GetByUserID(ctx context.Context, userID string) (*entity.Identity, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+identityColumns+" FROM profiles WHERE user_id = $1", userID)
	return scanIdentity(row)
}

// Update applies the non-nil fields of upd and returns the updated identity
func (r *IdentityPostgres) Update(ctx context.Context, id string, upd entity.ProfileUpdate) (*entity.Identity, error) {
	query := `
		UPDATE profiles SET
			username = COALESCE($2, username),
			bio = COALESCE($3, bio),
			is_private = COALESCE($4, is_private),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + identityColumns

	row := r.pool.QueryRow(ctx, query, id, upd.Username, upd.Bio, upd.IsPrivate)
	ident, err := scanIdentity(row)
	if err != nil {
		if uniqueErr := uniqueViolation(err); uniqueErr != nil {
			return nil, uniqueErr
		}
		return nil, err
	}
	return ident, nil
}

// SetAvatar stores the profile picture URL
func (r *IdentityPostgres) SetAvatar(ctx context.Context, id, url string) error {
	tag, err := r.pool.Exec(ctx, "UPDATE profiles SET profile_pic = $2, updated_at = now() WHERE id = $1", id, url)
	if err != nil {
		return fmt.Errorf("updating avatar: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrIdentityNotFound
	}
	return nil
}

// Suggested returns identities the viewer does not follow yet
func (r *IdentityPostgres) Suggested(ctx context.Context, viewerID string, limit int) ([]entity.Identity, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM profiles p
		WHERE p.id <> $1
		  AND NOT EXISTS (
		      SELECT 1 FROM follows f WHERE f.follower_id = $1 AND f.following_id = p.id
		  )
		ORDER BY p.created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, viewerID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying suggested identities: %w", err)
	}
	defer rows.Close()

	var out []entity.Identity
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating suggested identities: %w", err)
	}
	return out, nil
}

func scanIdentity(row pgx.Row) (*entity.Identity, error) {
	var ident entity.Identity
	err := row.Scan(
		&ident.ID,
		&ident.UserID,
		&ident.Email,
		&ident.PasswordHash,
		&ident.Username,
		&ident.Bio,
		&ident.AvatarURL,
		&ident.IsPrivate,
		&ident.FollowersCount,
		&ident.FollowingCount,
		&ident.PostsCount,
		&ident.CreatedAt,
		&ident.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning identity: %w", err)
	}
	return &ident, nil
}

// uniqueViolation maps a unique constraint failure to the matching domain error
func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}
	switch pgErr.ConstraintName {
	case "profiles_email_key":
		return entity.ErrEmailTaken
	case "profiles_username_key":
		return entity.ErrUsernameTaken
	case "profiles_user_id_key":
		return entity.ErrUserIDTaken
	}
	return fmt.Errorf("unique violation on %s: %w", pgErr.ConstraintName, err)
}
