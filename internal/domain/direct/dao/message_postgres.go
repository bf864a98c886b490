package dao

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/blinka/internal/domain/direct/entity"
)

// MessagePostgres implements message repository for PostgreSQL
type MessagePostgres struct {
	pool *pgxpool.Pool
}

// NewMessagePostgres creates a new PostgreSQL message repository
func NewMessagePostgres(pool *pgxpool.Pool) *MessagePostgres {
	return &MessagePostgres{pool: pool}
}

// Insert stores a new unread message and returns its id
func (r *MessagePostgres) Insert(ctx context.Context, msg *entity.Message) (string, error) {
	query := `
		INSERT INTO messages (sender_id, receiver_id, text, client_id, read)
		VALUES ($1, $2, $3, NULLIF($4, ''), false)
		RETURNING id
	`

	var id string
	if err := r.pool.QueryRow(ctx, query, msg.SenderID, msg.ReceiverID, msg.Text, msg.ClientID).Scan(&id); err != nil {
		return "", fmt.Errorf("inserting message: %w", err)
	}
	return id, nil
}

// GetThread returns every message exchanged between a and b in either direction,
// ascending by creation time
func (r *MessagePostgres) GetThread(ctx context.Context, a, b string) ([]entity.Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, text, COALESCE(client_id, ''), read, created_at
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, a, b)
	if err != nil {
		return nil, fmt.Errorf("querying thread: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// MarkRead flags every unread message from sender to receiver as read
func (r *MessagePostgres) MarkRead(ctx context.Context, receiverID, senderID string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		"UPDATE messages SET read = true WHERE receiver_id = $1 AND sender_id = $2 AND read = false",
		receiverID, senderID,
	)
	if err != nil {
		return 0, fmt.Errorf("marking thread read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanMessages(rows pgx.Rows) ([]entity.Message, error) {
	messages := []entity.Message{}

	for rows.Next() {
		var msg entity.Message
		err := rows.Scan(
			&msg.ID,
			&msg.SenderID,
			&msg.ReceiverID,
			&msg.Text,
			&msg.ClientID,
			&msg.Read,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return messages, nil
}
