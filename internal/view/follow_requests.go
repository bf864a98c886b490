package view

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vadim/blinka/internal/domain/follow/entity"
	"github.com/vadim/blinka/internal/realtime"
)

// FollowRequestStore resolves the pending follow requests addressed to one identity
type FollowRequestStore interface {
	Pending(ctx context.Context, targetID string) ([]entity.FollowRequest, error)
	Accept(ctx context.Context, targetID, requestID string) (*entity.FollowRequest, error)
	Decline(ctx context.Context, targetID, requestID string) (*entity.FollowRequest, error)
}

// FollowRequestsSnapshot is the displayed list of pending requests
type FollowRequestsSnapshot struct {
	Requests []entity.FollowRequest `json:"requests"`
	Notice   string                 `json:"notice,omitempty"`
	Loaded   bool                   `json:"loaded"`
}

// FollowRequests is a live view of the requests waiting on one target
type FollowRequests struct {
	*live[FollowRequestsSnapshot]
	target string
	store  FollowRequestStore
	logger *slog.Logger
}

// OpenFollowRequests subscribes to follow request changes and loads the list
func OpenFollowRequests(ctx context.Context, hub Subscriber, store FollowRequestStore, logger *slog.Logger, targetID string) (*FollowRequests, error) {
	f := &FollowRequests{
		live:   newLive(FollowRequestsSnapshot{Requests: []entity.FollowRequest{}}),
		target: targetID,
		store:  store,
		logger: logger.With("component", "follow_requests_view"),
	}

	if err := f.subscribe(hub, "follow_requests:"+targetID, realtime.TableFollowRequests, func(ctx context.Context) {
		_ = f.Refresh(ctx)
	}); err != nil {
		return nil, fmt.Errorf("subscribing to follow requests: %w", err)
	}

	_ = f.Refresh(ctx)
	return f, nil
}

// Refresh re-fetches the pending requests
func (f *FollowRequests) Refresh(ctx context.Context) error {
	seq := f.begin()
	pending, err := f.store.Pending(ctx, f.target)
	if err != nil {
		if ctx.Err() == nil {
			f.logger.Error("failed to fetch follow requests", "error", err)
			f.commit(seq, func(s *FollowRequestsSnapshot) { s.Notice = "Failed to load follow requests" })
		}
		return err
	}

	f.commit(seq, func(s *FollowRequestsSnapshot) {
		s.Requests = pending
		s.Notice = ""
		s.Loaded = true
	})
	return nil
}

// Accept resolves a request in favour of the requester and reloads the list
func (f *FollowRequests) Accept(ctx context.Context, requestID string) (*entity.FollowRequest, error) {
	return f.resolve(ctx, requestID, f.store.Accept)
}

// Decline rejects a request and reloads the list
func (f *FollowRequests) Decline(ctx context.Context, requestID string) (*entity.FollowRequest, error) {
	return f.resolve(ctx, requestID, f.store.Decline)
}

// Snapshot returns the current state
func (f *FollowRequests) Snapshot() FollowRequestsSnapshot { return f.snapshot() }

// Updates delivers the latest snapshot after every change
func (f *FollowRequests) Updates() <-chan FollowRequestsSnapshot { return f.updates }

// Close releases the subscription
func (f *FollowRequests) Close() { f.close() }

func (f *FollowRequests) resolve(
	ctx context.Context,
	requestID string,
	apply func(ctx context.Context, targetID, requestID string) (*entity.FollowRequest, error),
) (*entity.FollowRequest, error) {
	req, err := apply(ctx, f.target, requestID)
	if err != nil {
		f.logger.Error("failed to resolve follow request", "request_id", requestID, "error", err)
		f.patch(func(s *FollowRequestsSnapshot) { s.Notice = "Failed to update follow request" })
		return nil, err
	}

	_ = f.Refresh(ctx)
	return req, nil
}
