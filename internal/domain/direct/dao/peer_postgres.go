package dao

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/blinka/internal/domain/direct/entity"
)

// PeerPostgres resolves conversation peers from the follow graph
type PeerPostgres struct {
	pool *pgxpool.Pool
}

// NewPeerPostgres creates a new PostgreSQL peer repository
func NewPeerPostgres(pool *pgxpool.Pool) *PeerPostgres {
	return &PeerPostgres{pool: pool}
}

// Following returns the identities selfID follows, with per-thread unread counts
func (r *PeerPostgres) Following(ctx context.Context, selfID string) ([]entity.Peer, error) {
	query := `
		SELECT p.id, p.username, p.profile_pic,
		       (SELECT COUNT(*) FROM messages m
		         WHERE m.receiver_id = $1 AND m.sender_id = p.id AND NOT m.read) AS unread,
		       (SELECT MAX(m.created_at) FROM messages m
		         WHERE (m.sender_id = $1 AND m.receiver_id = p.id)
		            OR (m.sender_id = p.id AND m.receiver_id = $1)) AS last_message_at
		FROM follows f
		JOIN profiles p ON p.id = f.following_id
		WHERE f.follower_id = $1
		ORDER BY p.username ASC
	`

	rows, err := r.pool.Query(ctx, query, selfID)
	if err != nil {
		return nil, fmt.Errorf("querying peers: %w", err)
	}
	defer rows.Close()

	peers := []entity.Peer{}
	for rows.Next() {
		var p entity.Peer
		if err := rows.Scan(&p.ID, &p.Username, &p.AvatarURL, &p.UnreadCount, &p.LastMessageAt); err != nil {
			return nil, fmt.Errorf("scanning peer: %w", err)
		}
		peers = append(peers, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating peers: %w", err)
	}

	return peers, nil
}

// Exists reports whether an identity exists
func (r *PeerPostgres) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM profiles WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking identity: %w", err)
	}
	return exists, nil
}
