package dao

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/blinka/internal/domain/follow/entity"
)

// FollowPostgres implements follow graph and follow request storage for PostgreSQL.
// Every write that touches more than one row runs in a single transaction.
type FollowPostgres struct {
	pool *pgxpool.Pool
}

// NewFollowPostgres creates a new PostgreSQL follow repository
func NewFollowPostgres(pool *pgxpool.Pool) *FollowPostgres {
	return &FollowPostgres{pool: pool}
}

// Target retrieves the follow-relevant fields of an identity
func (r *FollowPostgres) Target(ctx context.Context, id string) (*entity.Target, error) {
	var t entity.Target
	err := r.pool.QueryRow(ctx, "SELECT id, is_private FROM profiles WHERE id = $1", id).Scan(&t.ID, &t.IsPrivate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting follow target: %w", err)
	}
	return &t, nil
}

// IsFollowing reports whether follower follows following
func (r *FollowPostgres) IsFollowing(ctx context.Context, followerID, followingID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM follows WHERE follower_id = $1 AND following_id = $2)",
		followerID, followingID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking follow edge: %w", err)
	}
	return exists, nil
}

// HasPending reports whether requester has a pending request to target
func (r *FollowPostgres) HasPending(ctx context.Context, requesterID, targetID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM follow_requests WHERE requester_id = $1 AND target_id = $2 AND status = 'pending')",
		requesterID, targetID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking pending request: %w", err)
	}
	return exists, nil
}

// CreateEdge inserts a follow edge, updates both counters and notifies the followed identity
func (r *FollowPostgres) CreateEdge(ctx context.Context, followerID, followingID string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		inserted, err := insertEdge(ctx, tx, followerID, followingID)
		if err != nil {
			return err
		}
		if !inserted {
			return entity.ErrAlreadyFollowing
		}
		return notify(ctx, tx, followingID, entity.NotificationFollow, followerID)
	})
}

// DeleteEdge removes a follow edge and decrements both counters
func (r *FollowPostgres) DeleteEdge(ctx context.Context, followerID, followingID string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM follows WHERE follower_id = $1 AND following_id = $2", followerID, followingID)
		if err != nil {
			return fmt.Errorf("deleting follow edge: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return entity.ErrNotFollowing
		}
		return adjustCounters(ctx, tx, followerID, followingID, -1)
	})
}

// CreateRequest inserts a pending follow request and notifies the target
func (r *FollowPostgres) CreateRequest(ctx context.Context, requesterID, targetID string) (*entity.FollowRequest, error) {
	var req *entity.FollowRequest
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO follow_requests (requester_id, target_id, status)
			VALUES ($1, $2, 'pending')
			RETURNING id, requester_id, target_id, status, created_at, updated_at
		`, requesterID, targetID)

		var err error
		req, err = scanRequest(row)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return entity.ErrRequestPending
			}
			return err
		}
		return notify(ctx, tx, targetID, entity.NotificationFollowRequest, requesterID)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// AcceptRequest resolves a pending request addressed to targetID as accepted,
// creates the follow edge, updates counters and notifies the requester, atomically.
func (r *FollowPostgres) AcceptRequest(ctx context.Context, id, targetID string) (*entity.FollowRequest, error) {
	var req *entity.FollowRequest
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		req, err = resolve(ctx, tx, id, targetID, true)
		if err != nil {
			return err
		}

		// an edge may already exist if the target made its profile public in between
		if _, err := insertEdge(ctx, tx, req.RequesterID, req.TargetID); err != nil {
			return err
		}
		return notify(ctx, tx, req.RequesterID, entity.NotificationFollowAccepted, req.TargetID)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// DeclineRequest resolves a pending request addressed to targetID as declined
func (r *FollowPostgres) DeclineRequest(ctx context.Context, id, targetID string) (*entity.FollowRequest, error) {
	var req *entity.FollowRequest
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		req, err = resolve(ctx, tx, id, targetID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// PendingForTarget returns pending requests addressed to targetID with requester summaries, newest first
func (r *FollowPostgres) PendingForTarget(ctx context.Context, targetID string) ([]entity.FollowRequest, error) {
	query := `
		SELECT fr.id, fr.requester_id, fr.target_id, fr.status, fr.created_at, fr.updated_at,
		       p.username, p.profile_pic
		FROM follow_requests fr
		JOIN profiles p ON p.id = fr.requester_id
		WHERE fr.target_id = $1 AND fr.status = 'pending'
		ORDER BY fr.created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, targetID)
	if err != nil {
		return nil, fmt.Errorf("querying pending requests: %w", err)
	}
	defer rows.Close()

	requests := []entity.FollowRequest{}
	for rows.Next() {
		var req entity.FollowRequest
		var requester entity.Requester
		err := rows.Scan(
			&req.ID,
			&req.RequesterID,
			&req.TargetID,
			&req.Status,
			&req.CreatedAt,
			&req.UpdatedAt,
			&requester.Username,
			&requester.AvatarURL,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning follow request: %w", err)
		}
		requester.ID = req.RequesterID
		req.Requester = &requester
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating follow requests: %w", err)
	}

	return requests, nil
}

func resolve(ctx context.Context, tx pgx.Tx, id, targetID string, accept bool) (*entity.FollowRequest, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, requester_id, target_id, status, created_at, updated_at
		FROM follow_requests WHERE id = $1
		FOR UPDATE
	`, id)
	req, err := scanRequest(row)
	if err != nil {
		return nil, err
	}
	if req == nil || req.TargetID != targetID {
		return nil, entity.ErrRequestNotFound
	}
	if err := req.Resolve(accept); err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx,
		"UPDATE follow_requests SET status = $2, updated_at = now() WHERE id = $1 RETURNING updated_at",
		id, req.Status,
	).Scan(&req.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("updating follow request: %w", err)
	}
	return req, nil
}

func insertEdge(ctx context.Context, tx pgx.Tx, followerID, followingID string) (bool, error) {
	tag, err := tx.Exec(ctx,
		"INSERT INTO follows (follower_id, following_id) VALUES ($1, $2) ON CONFLICT (follower_id, following_id) DO NOTHING",
		followerID, followingID,
	)
	if err != nil {
		return false, fmt.Errorf("inserting follow edge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	return true, adjustCounters(ctx, tx, followerID, followingID, 1)
}

func adjustCounters(ctx context.Context, tx pgx.Tx, followerID, followingID string, delta int) error {
	if _, err := tx.Exec(ctx,
		"UPDATE profiles SET following_count = GREATEST(following_count + $2, 0) WHERE id = $1",
		followerID, delta,
	); err != nil {
		return fmt.Errorf("updating following count: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"UPDATE profiles SET followers_count = GREATEST(followers_count + $2, 0) WHERE id = $1",
		followingID, delta,
	); err != nil {
		return fmt.Errorf("updating followers count: %w", err)
	}
	return nil
}

func notify(ctx context.Context, tx pgx.Tx, recipientID, kind, actorID string) error {
	if _, err := tx.Exec(ctx, "SELECT create_notification($1::uuid, $2::text, $3::uuid)", recipientID, kind, actorID); err != nil {
		return fmt.Errorf("creating %s notification: %w", kind, err)
	}
	return nil
}

func scanRequest(row pgx.Row) (*entity.FollowRequest, error) {
	var req entity.FollowRequest
	err := row.Scan(&req.ID, &req.RequesterID, &req.TargetID, &req.Status, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning follow request: %w", err)
	}
	return &req, nil
}
