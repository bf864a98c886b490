package entity

import "time"

// Type is the kind of event a notification reports
type Type string

const (
	TypeLike           Type = "like"
	TypeComment        Type = "comment"
	TypeFollow         Type = "follow"
	TypeFollowRequest  Type = "follow_request"
	TypeFollowAccepted Type = "follow_accepted"
	TypePost           Type = "post"
)

// Notification is an event addressed to one recipient
type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	Type        Type      `json:"type"`
	ActorID     string    `json:"actor_id,omitempty"`
	PostID      string    `json:"post_id,omitempty"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`

	// Actor is nil when the acting identity no longer exists
	Actor *Actor `json:"actor"`
}

// Actor is the summary of the identity that caused a notification
type Actor struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Display is the icon and text shown for a notification
type Display struct {
	Icon string `json:"icon"`
	Text string `json:"text"`
}

// Describe renders a notification. It never fails: unknown types fall back to a generic bell.
func Describe(n Notification) Display {
	name := "Someone"
	if n.Actor != nil && n.Actor.Username != "" {
		name = n.Actor.Username
	}

	switch n.Type {
	case TypeLike:
		return Display{Icon: "heart", Text: name + " liked your post"}
	case TypeComment:
		return Display{Icon: "message-circle", Text: name + " commented on your post"}
	case TypeFollow:
		return Display{Icon: "user-check", Text: name + " started following you"}
	case TypeFollowRequest:
		return Display{Icon: "user-plus", Text: name + " requested to follow you"}
	case TypeFollowAccepted:
		return Display{Icon: "user-check", Text: name + " accepted your follow request"}
	case TypePost:
		return Display{Icon: "image", Text: name + " shared a new post"}
	default:
		return Display{Icon: "bell", Text: "New notification"}
	}
}

// Route returns the client route a notification links to, or "" when it has none
func Route(n Notification) string {
	switch {
	case n.PostID != "":
		return "/"
	case n.Type == TypeFollow || n.Type == TypeFollowRequest:
		return "/profile"
	default:
		return ""
	}
}

// Item is a notification with its rendering attached
type Item struct {
	Notification
	Display
	Route string `json:"route,omitempty"`
}

// NewItem renders n
func NewItem(n Notification) Item {
	return Item{Notification: n, Display: Describe(n), Route: Route(n)}
}
