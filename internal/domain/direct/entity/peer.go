package entity

import "time"

// Peer is an identity the current identity can open a thread with
type Peer struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	AvatarURL     string     `json:"avatar_url,omitempty"`
	UnreadCount   int        `json:"unread_count"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}
