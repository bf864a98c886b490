package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType is the kind of row change carried by an Event
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"

	// EventAny is a subscription filter matching every change type
	EventAny EventType = "*"
)

// Tables that emit change events
const (
	TableMessages       = "messages"
	TableNotifications  = "notifications"
	TableFollowRequests = "follow_requests"
	TableFollows        = "follows"
	TableStories        = "stories"
	TablePosts          = "posts"
)

// ChangeTables lists every table whose row triggers emit change events
var ChangeTables = []string{
	TableMessages,
	TableNotifications,
	TableFollowRequests,
	TableFollows,
	TableStories,
	TablePosts,
}

var (
	ErrInvalidPayload = errors.New("invalid change payload")
	ErrHubClosed      = errors.New("realtime hub is closed")
)

// Event is a change notification for a single row of a relation
type Event struct {
	Table    string    `json:"table"`
	Type     EventType `json:"type"`
	RecordID string    `json:"record_id,omitempty"`
	At       time.Time `json:"at"`

	// Overflow marks a synthetic invalidation: changes to the table may have
	// been missed, after a subscriber's buffer overflowed or while a source
	// was reconnecting. It carries no record id and matches every filter.
	Overflow bool `json:"overflow,omitempty"`
}

// Invalidation returns the synthetic overflow event for table
func Invalidation(table string) Event {
	return Event{Table: table, Type: EventAny, At: time.Now(), Overflow: true}
}

// Invalidate publishes an invalidation for every change table
func Invalidate(ctx context.Context, p Publisher) error {
	var errs []error
	for _, table := range ChangeTables {
		if err := p.Publish(ctx, Invalidation(table)); err != nil {
			errs = append(errs, fmt.Errorf("invalidating %s: %w", table, err))
		}
	}
	return errors.Join(errs...)
}

// Matches reports whether a subscription filter accepts the given change type
func (f EventType) Matches(t EventType) bool {
	return f == EventAny || f == t
}

func (t EventType) valid() bool {
	switch t {
	case EventInsert, EventUpdate, EventDelete:
		return true
	}
	return false
}

// Publisher accepts change events for fan-out
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// DecodePayload parses a change payload produced by the notify_table_change trigger
// or relayed through the broker.
func DecodePayload(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if ev.Table == "" || !(ev.Type.valid() || (ev.Overflow && ev.Type == EventAny)) {
		return Event{}, fmt.Errorf("%w: table=%q type=%q", ErrInvalidPayload, ev.Table, ev.Type)
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	return ev, nil
}
