package dao

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/blinka/internal/domain/post/entity"
)

// PostPostgres implements post and like storage for PostgreSQL
type PostPostgres struct {
	pool *pgxpool.Pool
}

// NewPostPostgres creates a new PostgreSQL post repository
func NewPostPostgres(pool *pgxpool.Pool) *PostPostgres {
	return &PostPostgres{pool: pool}
}

const selectPost = `
	SELECT p.id, p.user_id, COALESCE(p.image_url, ''), COALESCE(p.video_url, ''), COALESCE(p.music_url, ''),
	       COALESCE(p.caption, ''), p.likes_count, p.comments_count, p.created_at,
	       a.username, a.profile_pic,
	       EXISTS (SELECT 1 FROM likes l WHERE l.post_id = p.id AND l.user_id = $1)
	FROM posts p
	JOIN profiles a ON a.id = p.user_id
`

// Create inserts a post and increments the author's posts count
func (r *PostPostgres) Create(ctx context.Context, p *entity.Post) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO posts (user_id, image_url, video_url, music_url, caption)
			VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''))
			RETURNING id, created_at
		`
		err := tx.QueryRow(ctx, query,
			p.AuthorID,
			p.ImageURL,
			p.VideoURL,
			p.MusicURL,
			p.Caption,
		).Scan(&p.ID, &p.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting post: %w", err)
		}

		if _, err := tx.Exec(ctx, "UPDATE profiles SET posts_count = posts_count + 1 WHERE id = $1", p.AuthorID); err != nil {
			return fmt.Errorf("updating posts count: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a post as seen by viewer
func (r *PostPostgres) GetByID(ctx context.Context, viewerID, id string) (*entity.Post, error) {
	rows, err := r.pool.Query(ctx, selectPost+" WHERE p.id = $2", viewerID, id)
	if err != nil {
		return nil, fmt.Errorf("querying post: %w", err)
	}
	posts, err := scanPosts(rows)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, nil
	}
	return &posts[0], nil
}

// ListByAuthor returns an author's posts newest first
func (r *PostPostgres) ListByAuthor(ctx context.Context, viewerID, authorID string) ([]entity.Post, error) {
	rows, err := r.pool.Query(ctx, selectPost+" WHERE p.user_id = $2 ORDER BY p.created_at DESC", viewerID, authorID)
	if err != nil {
		return nil, fmt.Errorf("querying author posts: %w", err)
	}
	return scanPosts(rows)
}

// Feed returns the newest posts by identities viewer follows and by viewer
func (r *PostPostgres) Feed(ctx context.Context, viewerID string, limit int) ([]entity.Post, error) {
	query := selectPost + `
		WHERE p.user_id = $1
		   OR p.user_id IN (SELECT following_id FROM follows WHERE follower_id = $1)
		ORDER BY p.created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, viewerID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying feed: %w", err)
	}
	return scanPosts(rows)
}

// Delete removes a post and decrements the author's posts count
func (r *PostPostgres) Delete(ctx context.Context, authorID, id string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM posts WHERE id = $1 AND user_id = $2", id, authorID)
		if err != nil {
			return fmt.Errorf("deleting post: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return entity.ErrPostNotFound
		}

		if _, err := tx.Exec(ctx,
			"UPDATE profiles SET posts_count = GREATEST(posts_count - 1, 0) WHERE id = $1",
			authorID,
		); err != nil {
			return fmt.Errorf("updating posts count: %w", err)
		}
		return nil
	})
}

// Like records actor's like and bumps the counter
func (r *PostPostgres) Like(ctx context.Context, actorID, postID string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			"INSERT INTO likes (user_id, post_id) VALUES ($1, $2) ON CONFLICT (user_id, post_id) DO NOTHING",
			actorID, postID,
		)
		if err != nil {
			return fmt.Errorf("inserting like: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return entity.ErrAlreadyLiked
		}

		if _, err := tx.Exec(ctx,
			"UPDATE posts SET likes_count = likes_count + 1 WHERE id = $1",
			postID,
		); err != nil {
			return fmt.Errorf("updating likes count: %w", err)
		}
		return nil
	})
}

// Unlike removes actor's like and decrements the counter
func (r *PostPostgres) Unlike(ctx context.Context, actorID, postID string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM likes WHERE user_id = $1 AND post_id = $2", actorID, postID)
		if err != nil {
			return fmt.Errorf("deleting like: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return entity.ErrNotLiked
		}

		if _, err := tx.Exec(ctx,
			"UPDATE posts SET likes_count = GREATEST(likes_count - 1, 0) WHERE id = $1",
			postID,
		); err != nil {
			return fmt.Errorf("updating likes count: %w", err)
		}
		return nil
	})
}

func scanPosts(rows pgx.Rows) ([]entity.Post, error) {
	defer rows.Close()

	posts := []entity.Post{}
	for rows.Next() {
		var p entity.Post
		var author entity.Author
		err := rows.Scan(
			&p.ID,
			&p.AuthorID,
			&p.ImageURL,
			&p.VideoURL,
			&p.MusicURL,
			&p.Caption,
			&p.LikesCount,
			&p.CommentsCount,
			&p.CreatedAt,
			&author.Username,
			&author.AvatarURL,
			&p.LikedByViewer,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		p.Author = &author
		posts = append(posts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating posts: %w", err)
	}

	return posts, nil
}
