package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vadim/blinka/internal/domain/notification/entity"
)

// DefaultLimit is the number of notifications returned by List
const DefaultLimit = 20

// Repository defines the interface for notification storage
type Repository interface {
	List(ctx context.Context, recipientID string, limit int) ([]entity.Notification, error)
	UnreadIDs(ctx context.Context, recipientID string) ([]string, error)
	MarkRead(ctx context.Context, recipientID string, ids []string) (int64, error)
	Exists(ctx context.Context, recipientID, id string) (bool, error)
	Create(ctx context.Context, recipientID string, kind entity.Type, actorID, postID string) (string, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
}

// Service handles notification business logic
type Service struct {
	repo Repository
}

// New creates a new notification service
func New(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns up to limit notifications of a recipient, newest first.
// A non-positive limit means DefaultLimit.
func (s *Service) List(ctx context.Context, recipientID string, limit int) ([]entity.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = DefaultLimit
	}

	notifications, err := s.repo.List(ctx, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	if notifications == nil {
		notifications = []entity.Notification{}
	}
	return notifications, nil
}

// MarkRead marks one notification of the recipient as read. Marking it again is a no-op.
func (s *Service) MarkRead(ctx context.Context, recipientID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return entity.ErrNotificationNotFound
	}

	exists, err := s.repo.Exists(ctx, recipientID, id)
	if err != nil {
		return fmt.Errorf("getting notification: %w", err)
	}
	if !exists {
		return entity.ErrNotificationNotFound
	}

	if _, err := s.repo.MarkRead(ctx, recipientID, []string{id}); err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	return nil
}

// MarkAllRead collects the recipient's unread notifications and marks them read in one update
func (s *Service) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	ids, err := s.repo.UnreadIDs(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("getting unread notifications: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	n, err := s.repo.MarkRead(ctx, recipientID, ids)
	if err != nil {
		return 0, fmt.Errorf("marking notifications read: %w", err)
	}
	return n, nil
}

// CreateInput represents a notification to record
type CreateInput struct {
	RecipientID string
	Type        entity.Type
	ActorID     string
	PostID      string
}

// Create records a notification. Self-notifications are dropped and return "".
func (s *Service) Create(ctx context.Context, in CreateInput) (string, error) {
	if in.Type == "" {
		return "", entity.ErrInvalidType
	}
	if in.ActorID != "" && in.ActorID == in.RecipientID {
		return "", nil
	}

	id, err := s.repo.Create(ctx, in.RecipientID, in.Type, in.ActorID, in.PostID)
	if err != nil {
		return "", fmt.Errorf("creating notification: %w", err)
	}
	return id, nil
}

// UnreadCount returns the number of unread notifications
func (s *Service) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	n, err := s.repo.UnreadCount(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return n, nil
}
