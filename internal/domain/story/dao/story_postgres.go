package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/blinka/internal/domain/story/entity"
)

// StoryPostgres implements story repository for PostgreSQL
type StoryPostgres struct {
	pool *pgxpool.Pool
}

// NewStoryPostgres creates a new PostgreSQL story repository
func NewStoryPostgres(pool *pgxpool.Pool) *StoryPostgres {
	return &StoryPostgres{pool: pool}
}

// Create inserts a story and fills in its id and timestamps
func (r *StoryPostgres) Create(ctx context.Context, s *entity.Story) error {
	query := `
		INSERT INTO stories (user_id, media_url, media_type, music_url, caption, expires_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		s.AuthorID,
		s.MediaURL,
		s.MediaType,
		s.MusicURL,
		s.Caption,
		s.ExpiresAt,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting story: %w", err)
	}
	return nil
}

// ListActive returns stories that have not expired at now, newest first, with author summaries
func (r *StoryPostgres) ListActive(ctx context.Context, now time.Time) ([]entity.Story, error) {
	query := `
		SELECT s.id, s.user_id, s.media_url, s.media_type, COALESCE(s.music_url, ''), COALESCE(s.caption, ''),
		       s.created_at, s.expires_at, p.username, p.profile_pic
		FROM stories s
		JOIN profiles p ON p.id = s.user_id
		WHERE s.expires_at > $1
		ORDER BY s.created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("querying stories: %w", err)
	}
	defer rows.Close()

	stories := []entity.Story{}
	for rows.Next() {
		var s entity.Story
		var author entity.Author
		err := rows.Scan(
			&s.ID,
			&s.AuthorID,
			&s.MediaURL,
			&s.MediaType,
			&s.MusicURL,
			&s.Caption,
			&s.CreatedAt,
			&s.ExpiresAt,
			&author.Username,
			&author.AvatarURL,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning story: %w", err)
		}
		s.Author = &author
		stories = append(stories, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stories: %w", err)
	}

	return stories, nil
}

// GetByID retrieves a story by id
func (r *StoryPostgres) GetByID(ctx context.Context, id string) (*entity.Story, error) {
	query := `
		SELECT id, user_id, media_url, media_type, COALESCE(music_url, ''), COALESCE(caption, ''),
		       created_at, expires_at
		FROM stories
		WHERE id = $1
	`

	var s entity.Story
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.AuthorID,
		&s.MediaURL,
		&s.MediaType,
		&s.MusicURL,
		&s.Caption,
		&s.CreatedAt,
		&s.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning story: %w", err)
	}
	return &s, nil
}

// UpdateCaption replaces a story's caption; an empty caption clears it
func (r *StoryPostgres) UpdateCaption(ctx context.Context, id, caption string) error {
	_, err := r.pool.Exec(ctx, "UPDATE stories SET caption = NULLIF($2, '') WHERE id = $1", id, caption)
	if err != nil {
		return fmt.Errorf("updating story caption: %w", err)
	}
	return nil
}

// Delete removes a story
func (r *StoryPostgres) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM stories WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting story: %w", err)
	}
	return nil
}
