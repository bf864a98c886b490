package entity

import "time"

// Status is the lifecycle state of a follow request
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
)

// FollowRequest is a pending or resolved request to follow a private identity
type FollowRequest struct {
	ID          string    `json:"id"`
	RequesterID string    `json:"requester_id"`
	TargetID    string    `json:"target_id"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Requester *Requester `json:"requester,omitempty"`
}

// Requester is the summary of the identity asking to follow
type Requester struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Resolve moves a pending request to accepted or declined.
// Resolved requests are terminal.
func (r *FollowRequest) Resolve(accept bool) error {
	if r.Status != StatusPending {
		return ErrRequestResolved
	}
	if accept {
		r.Status = StatusAccepted
	} else {
		r.Status = StatusDeclined
	}
	return nil
}

// Target is the follow-relevant view of the identity being followed
type Target struct {
	ID        string
	IsPrivate bool
}

// Relation is the viewer's follow state towards a target
type Relation string

const (
	RelationFollowing Relation = "following"
	RelationRequested Relation = "requested"
	RelationNone      Relation = "none"
)

// Notification types created by follow actions
const (
	NotificationFollow         = "follow"
	NotificationFollowRequest  = "follow_request"
	NotificationFollowAccepted = "follow_accepted"
)
