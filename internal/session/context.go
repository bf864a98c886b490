package session

import (
	"context"
	"time"
)

// Session is an authenticated identity's sign-in
type Session struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identity_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer valid at now
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type ctxKey struct{}

// WithSession returns a copy of ctx carrying sess
func WithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, sess)
}

// FromContext returns the session carried by ctx, if any
func FromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(ctxKey{}).(Session)
	return sess, ok
}

// IdentityID returns the identity of the session carried by ctx, or ""
func IdentityID(ctx context.Context) string {
	sess, _ := FromContext(ctx)
	return sess.IdentityID
}
