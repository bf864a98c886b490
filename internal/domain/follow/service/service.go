package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vadim/blinka/internal/domain/follow/entity"
)

// Repository defines the interface for follow graph and request storage
type Repository interface {
	Target(ctx context.Context, id string) (*entity.Target, error)
	IsFollowing(ctx context.Context, followerID, followingID string) (bool, error)
	HasPending(ctx context.Context, requesterID, targetID string) (bool, error)
	CreateEdge(ctx context.Context, followerID, followingID string) error
	DeleteEdge(ctx context.Context, followerID, followingID string) error
	CreateRequest(ctx context.Context, requesterID, targetID string) (*entity.FollowRequest, error)
	AcceptRequest(ctx context.Context, id, targetID string) (*entity.FollowRequest, error)
	DeclineRequest(ctx context.Context, id, targetID string) (*entity.FollowRequest, error)
	PendingForTarget(ctx context.Context, targetID string) ([]entity.FollowRequest, error)
}

// Service handles follow and follow request business logic
type Service struct {
	repo Repository
}

// New creates a new follow service
func New(repo Repository) *Service {
	return &Service{repo: repo}
}

// FollowOutput represents the outcome of a follow action
type FollowOutput struct {
	Relation entity.Relation       `json:"relation"`
	Request  *entity.FollowRequest `json:"request,omitempty"`
}

// Follow follows a public target directly or files a pending request for a private one
func (s *Service) Follow(ctx context.Context, actorID, targetID string) (*FollowOutput, error) {
	target, err := s.target(ctx, actorID, targetID)
	if err != nil {
		return nil, err
	}

	following, err := s.repo.IsFollowing(ctx, actorID, targetID)
	if err != nil {
		return nil, fmt.Errorf("checking follow: %w", err)
	}
	if following {
		return nil, entity.ErrAlreadyFollowing
	}

	if !target.IsPrivate {
		if err := s.repo.CreateEdge(ctx, actorID, targetID); err != nil {
			return nil, fmt.Errorf("following: %w", err)
		}
		return &FollowOutput{Relation: entity.RelationFollowing}, nil
	}

	req, err := s.repo.CreateRequest(ctx, actorID, targetID)
	if err != nil {
		return nil, fmt.Errorf("requesting follow: %w", err)
	}
	return &FollowOutput{Relation: entity.RelationRequested, Request: req}, nil
}

// Unfollow removes the follow edge from actor to target
func (s *Service) Unfollow(ctx context.Context, actorID, targetID string) error {
	if actorID == targetID {
		return entity.ErrSelfFollow
	}
	if _, err := uuid.Parse(targetID); err != nil {
		return entity.ErrTargetNotFound
	}
	if err := s.repo.DeleteEdge(ctx, actorID, targetID); err != nil {
		return fmt.Errorf("unfollowing: %w", err)
	}
	return nil
}

// Status returns the viewer's relation to target
func (s *Service) Status(ctx context.Context, viewerID, targetID string) (entity.Relation, error) {
	if viewerID == targetID {
		return entity.RelationNone, nil
	}
	if _, err := uuid.Parse(targetID); err != nil {
		return "", entity.ErrTargetNotFound
	}

	following, err := s.repo.IsFollowing(ctx, viewerID, targetID)
	if err != nil {
		return "", fmt.Errorf("checking follow: %w", err)
	}
	if following {
		return entity.RelationFollowing, nil
	}

	pending, err := s.repo.HasPending(ctx, viewerID, targetID)
	if err != nil {
		return "", fmt.Errorf("checking request: %w", err)
	}
	if pending {
		return entity.RelationRequested, nil
	}
	return entity.RelationNone, nil
}

// Pending returns pending requests addressed to target
func (s *Service) Pending(ctx context.Context, targetID string) ([]entity.FollowRequest, error) {
	requests, err := s.repo.PendingForTarget(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("getting pending requests: %w", err)
	}
	if requests == nil {
		requests = []entity.FollowRequest{}
	}
	return requests, nil
}

// Accept accepts a pending request addressed to targetID, creating the follow edge
func (s *Service) Accept(ctx context.Context, targetID, requestID string) (*entity.FollowRequest, error) {
	if _, err := uuid.Parse(requestID); err != nil {
		return nil, entity.ErrRequestNotFound
	}
	req, err := s.repo.AcceptRequest(ctx, requestID, targetID)
	if err != nil {
		return nil, fmt.Errorf("accepting request: %w", err)
	}
	return req, nil
}

// Decline declines a pending request addressed to targetID. No edge is created.
func (s *Service) Decline(ctx context.Context, targetID, requestID string) (*entity.FollowRequest, error) {
	if _, err := uuid.Parse(requestID); err != nil {
		return nil, entity.ErrRequestNotFound
	}
	req, err := s.repo.DeclineRequest(ctx, requestID, targetID)
	if err != nil {
		return nil, fmt.Errorf("declining request: %w", err)
	}
	return req, nil
}

func (s *Service) target(ctx context.Context, actorID, targetID string) (*entity.Target, error) {
	if actorID == targetID {
		return nil, entity.ErrSelfFollow
	}
	if _, err := uuid.Parse(targetID); err != nil {
		return nil, entity.ErrTargetNotFound
	}

	target, err := s.repo.Target(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("getting target: %w", err)
	}
	if target == nil {
		return nil, entity.ErrTargetNotFound
	}
	return target, nil
}
