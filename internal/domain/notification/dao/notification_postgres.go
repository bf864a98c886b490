package dao

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/blinka/internal/domain/notification/entity"
)

// NotificationPostgres implements notification repository for PostgreSQL
type NotificationPostgres struct {
	pool *pgxpool.Pool
}

// NewNotificationPostgres creates a new PostgreSQL notification repository
func NewNotificationPostgres(pool *pgxpool.Pool) *NotificationPostgres {
	return &NotificationPostgres{pool: pool}
}

// List returns the newest notifications of a recipient with actor summaries joined
func (r *NotificationPostgres) List(ctx context.Context, recipientID string, limit int) ([]entity.Notification, error) {
	query := `
		SELECT n.id, n.user_id, n.type, COALESCE(n.actor_id::text, ''), COALESCE(n.post_id::text, ''),
		       n.read, n.created_at, a.username, a.profile_pic
		FROM notifications n
		LEFT JOIN profiles a ON a.id = n.actor_id
		WHERE n.user_id = $1
		ORDER BY n.created_at DESC, n.id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	notifications := []entity.Notification{}
	for rows.Next() {
		var n entity.Notification
		var username, avatar *string
		err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&n.Type,
			&n.ActorID,
			&n.PostID,
			&n.Read,
			&n.CreatedAt,
			&username,
			&avatar,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		if username != nil {
			n.Actor = &entity.Actor{Username: *username}
			if avatar != nil {
				n.Actor.AvatarURL = *avatar
			}
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notifications: %w", err)
	}

	return notifications, nil
}

// UnreadIDs returns the ids of every unread notification of a recipient
func (r *NotificationPostgres) UnreadIDs(ctx context.Context, recipientID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, "SELECT id FROM notifications WHERE user_id = $1 AND NOT read", recipientID)
	if err != nil {
		return nil, fmt.Errorf("querying unread notifications: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collecting unread notifications: %w", err)
	}
	return ids, nil
}

// MarkRead flags the given notifications of a recipient as read and returns how many changed
func (r *NotificationPostgres) MarkRead(ctx context.Context, recipientID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx,
		"UPDATE notifications SET read = true WHERE user_id = $1 AND id = ANY($2::uuid[]) AND NOT read",
		recipientID, ids,
	)
	if err != nil {
		return 0, fmt.Errorf("marking notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Exists reports whether a notification belongs to the recipient
func (r *NotificationPostgres) Exists(ctx context.Context, recipientID, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1 AND user_id = $2)", id, recipientID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking notification: %w", err)
	}
	return exists, nil
}

// Create records a notification through the create_notification procedure.
// It returns "" when the procedure drops the notification.
func (r *NotificationPostgres) Create(ctx context.Context, recipientID string, kind entity.Type, actorID, postID string) (string, error) {
	var id *string
	err := r.pool.QueryRow(ctx,
		"SELECT create_notification($1::uuid, $2::text, NULLIF($3, '')::uuid, NULLIF($4, '')::uuid)",
		recipientID, string(kind), actorID, postID,
	).Scan(&id)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("creating notification: %w", err)
	}
	if id == nil {
		return "", nil
	}
	return *id, nil
}

// UnreadCount returns the number of unread notifications of a recipient
func (r *NotificationPostgres) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read", recipientID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return n, nil
}
