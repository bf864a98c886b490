package view

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vadim/blinka/internal/domain/notification/entity"
	"github.com/vadim/blinka/internal/realtime"
)

// NotificationStore is the notification aggregator a notification view reads through
type NotificationStore interface {
	List(ctx context.Context, recipientID string, limit int) ([]entity.Notification, error)
	MarkRead(ctx context.Context, recipientID, id string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
}

// NotificationsSnapshot is the displayed notification list
type NotificationsSnapshot struct {
	Items  []entity.Item `json:"items"`
	Unread int           `json:"unread"`
	Notice string        `json:"notice,omitempty"`
	Loaded bool          `json:"loaded"`
}

// Notifications is a live view of one recipient's latest notifications
type Notifications struct {
	*live[NotificationsSnapshot]
	recipient string
	limit     int
	store     NotificationStore
	logger    *slog.Logger
}

// OpenNotifications subscribes to notification changes and loads the list
func OpenNotifications(ctx context.Context, hub Subscriber, store NotificationStore, logger *slog.Logger, recipientID string, limit int) (*Notifications, error) {
	n := &Notifications{
		live:      newLive(NotificationsSnapshot{Items: []entity.Item{}}),
		recipient: recipientID,
		limit:     limit,
		store:     store,
		logger:    logger.With("component", "notifications_view"),
	}

	if err := n.subscribe(hub, "notifications:"+recipientID, realtime.TableNotifications, func(ctx context.Context) {
		_ = n.Refresh(ctx)
	}); err != nil {
		return nil, fmt.Errorf("subscribing to notifications: %w", err)
	}

	_ = n.Refresh(ctx)
	return n, nil
}

// Refresh re-fetches the list
func (n *Notifications) Refresh(ctx context.Context) error {
	seq := n.begin()
	list, err := n.store.List(ctx, n.recipient, n.limit)
	if err != nil {
		if ctx.Err() == nil {
			n.logger.Error("failed to fetch notifications", "error", err)
			n.commit(seq, func(s *NotificationsSnapshot) { s.Notice = "Failed to load notifications" })
		}
		return err
	}

	items := make([]entity.Item, 0, len(list))
	for _, item := range list {
		items = append(items, entity.NewItem(item))
	}
	n.commit(seq, func(s *NotificationsSnapshot) {
		s.Items = items
		s.Unread = countUnread(items)
		s.Notice = ""
		s.Loaded = true
	})
	return nil
}

// MarkRead shows the notification as read at once, then stores it. Fetches
// already in flight are discarded; the next fetch converges the list either way.
func (n *Notifications) MarkRead(ctx context.Context, id string) error {
	n.markLocal(func(it entity.Item) bool { return it.ID == id })

	if err := n.store.MarkRead(ctx, n.recipient, id); err != nil {
		n.logger.Error("failed to mark notification read", "notification_id", id, "error", err)
		n.patch(func(s *NotificationsSnapshot) { s.Notice = "Failed to update notification" })
		return err
	}
	return nil
}

// MarkAllRead shows every notification as read at once, then stores it
func (n *Notifications) MarkAllRead(ctx context.Context) (int64, error) {
	n.markLocal(func(entity.Item) bool { return true })

	count, err := n.store.MarkAllRead(ctx, n.recipient)
	if err != nil {
		n.logger.Error("failed to mark all notifications read", "error", err)
		n.patch(func(s *NotificationsSnapshot) { s.Notice = "Failed to update notifications" })
		return 0, err
	}
	return count, nil
}

// Snapshot returns the current state
func (n *Notifications) Snapshot() NotificationsSnapshot { return n.snapshot() }

// Updates delivers the latest snapshot after every change
func (n *Notifications) Updates() <-chan NotificationsSnapshot { return n.updates }

// Close releases the subscription
func (n *Notifications) Close() { n.close() }

func (n *Notifications) markLocal(match func(entity.Item) bool) {
	n.override(func(s *NotificationsSnapshot) {
		items := append([]entity.Item(nil), s.Items...)
		for i := range items {
			if match(items[i]) {
				items[i].Read = true
			}
		}
		s.Items = items
		s.Unread = countUnread(items)
	})
}

func countUnread(items []entity.Item) int {
	unread := 0
	for _, it := range items {
		if !it.Read {
			unread++
		}
	}
	return unread
}
