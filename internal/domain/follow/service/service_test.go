package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/vadim/blinka/internal/domain/follow/entity"
)

type notice struct {
	recipient, kind, actor string
}

type edge struct{ follower, following string }

type memoryGraph struct {
	mu            sync.Mutex
	private       map[string]bool
	edges         map[edge]bool
	requests      map[string]*entity.FollowRequest
	notifications []notice
}

func newMemoryGraph() *memoryGraph {
	return &memoryGraph{
		private:  map[string]bool{},
		edges:    map[edge]bool{},
		requests: map[string]*entity.FollowRequest{},
	}
}

func (g *memoryGraph) addIdentity(private bool) string {
	id := uuid.NewString()
	g.private[id] = private
	return id
}

func (g *memoryGraph) Target(_ context.Context, id string) (*entity.Target, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	private, ok := g.private[id]
	if !ok {
		return nil, nil
	}
	return &entity.Target{ID: id, IsPrivate: private}, nil
}

func (g *memoryGraph) IsFollowing(_ context.Context, a, b string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.edges[edge{a, b}], nil
}

func (g *memoryGraph) HasPending(_ context.Context, requester, target string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pendingLocked(requester, target), nil
}

func (g *memoryGraph) pendingLocked(requester, target string) bool {
	for _, r := range g.requests {
		if r.RequesterID == requester && r.TargetID == target && r.Status == entity.StatusPending {
			return true
		}
	}
	return false
}

func (g *memoryGraph) CreateEdge(_ context.Context, a, b string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.edges[edge{a, b}] {
		return entity.ErrAlreadyFollowing
	}
	g.edges[edge{a, b}] = true
	g.notifications = append(g.notifications, notice{b, entity.NotificationFollow, a})
	return nil
}

func (g *memoryGraph) DeleteEdge(_ context.Context, a, b string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.edges[edge{a, b}] {
		return entity.ErrNotFollowing
	}
	delete(g.edges, edge{a, b})
	return nil
}

func (g *memoryGraph) CreateRequest(_ context.Context, requester, target string) (*entity.FollowRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pendingLocked(requester, target) {
		return nil, entity.ErrRequestPending
	}
	req := &entity.FollowRequest{ID: uuid.NewString(), RequesterID: requester, TargetID: target, Status: entity.StatusPending}
	g.requests[req.ID] = req
	g.notifications = append(g.notifications, notice{target, entity.NotificationFollowRequest, requester})
	cp := *req
	return &cp, nil
}

func (g *memoryGraph) resolveLocked(id, target string, accept bool) (*entity.FollowRequest, error) {
	req, ok := g.requests[id]
	if !ok || req.TargetID != target {
		return nil, entity.ErrRequestNotFound
	}
	if err := req.Resolve(accept); err != nil {
		return nil, err
	}
	cp := *req
	return &cp, nil
}

func (g *memoryGraph) AcceptRequest(_ context.Context, id, target string) (*entity.FollowRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, err := g.resolveLocked(id, target, true)
	if err != nil {
		return nil, err
	}
	g.edges[edge{req.RequesterID, req.TargetID}] = true
	g.notifications = append(g.notifications, notice{req.RequesterID, entity.NotificationFollowAccepted, req.TargetID})
	return req, nil
}

func (g *memoryGraph) DeclineRequest(_ context.Context, id, target string) (*entity.FollowRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resolveLocked(id, target, false)
}

func (g *memoryGraph) PendingForTarget(_ context.Context, target string) ([]entity.FollowRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []entity.FollowRequest
	for _, r := range g.requests {
		if r.TargetID == target && r.Status == entity.StatusPending {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (g *memoryGraph) edgeCount(a, b string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.edges[edge{a, b}] {
		return 1
	}
	return 0
}

func TestFollowPublicCreatesEdge(t *testing.T) {
	g := newMemoryGraph()
	svc := New(g)
	a, b := g.addIdentity(false), g.addIdentity(false)

	out, err := svc.Follow(context.Background(), a, b)
	if err != nil {
		t.Fatalf("Follow() error = %v", err)
	}
	if out.Relation != entity.RelationFollowing || out.Request != nil {
		t.Fatalf("Follow() = %+v, want following", out)
	}
	if g.edgeCount(a, b) != 1 {
		t.Fatal("expected follow edge")
	}
	if len(g.notifications) != 1 || g.notifications[0] != (notice{b, entity.NotificationFollow, a}) {
		t.Fatalf("notifications = %+v", g.notifications)
	}

	if _, err := svc.Follow(context.Background(), a, b); !errors.Is(err, entity.ErrAlreadyFollowing) {
		t.Fatalf("second Follow() error = %v, want ErrAlreadyFollowing", err)
	}
}

func TestFollowPrivateAcceptFlow(t *testing.T) {
	g := newMemoryGraph()
	svc := New(g)
	ctx := context.Background()
	a, b := g.addIdentity(false), g.addIdentity(true)

	out, err := svc.Follow(ctx, a, b)
	if err != nil {
		t.Fatalf("Follow() error = %v", err)
	}
	if out.Relation != entity.RelationRequested || out.Request == nil {
		t.Fatalf("Follow() = %+v, want requested", out)
	}
	if g.edgeCount(a, b) != 0 {
		t.Fatal("private follow must not create an edge before acceptance")
	}
	if rel, _ := svc.Status(ctx, a, b); rel != entity.RelationRequested {
		t.Fatalf("Status() = %s, want requested", rel)
	}

	pending, err := svc.Pending(ctx, b)
	if err != nil || len(pending) != 1 {
		t.Fatalf("Pending() = %+v, %v", pending, err)
	}

	if _, err := svc.Accept(ctx, a, pending[0].ID); !errors.Is(err, entity.ErrRequestNotFound) {
		t.Fatalf("Accept() by requester error = %v, want ErrRequestNotFound", err)
	}

	req, err := svc.Accept(ctx, b, pending[0].ID)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if req.Status != entity.StatusAccepted {
		t.Fatalf("status = %s, want accepted", req.Status)
	}
	if g.edgeCount(a, b) != 1 {
		t.Fatal("accept must create exactly one edge")
	}
	if rel, _ := svc.Status(ctx, a, b); rel != entity.RelationFollowing {
		t.Fatalf("Status() = %s, want following", rel)
	}
	last := g.notifications[len(g.notifications)-1]
	if last != (notice{a, entity.NotificationFollowAccepted, b}) {
		t.Fatalf("last notification = %+v", last)
	}

	if _, err := svc.Accept(ctx, b, pending[0].ID); !errors.Is(err, entity.ErrRequestResolved) {
		t.Fatalf("second Accept() error = %v, want ErrRequestResolved", err)
	}
	if _, err := svc.Decline(ctx, b, pending[0].ID); !errors.Is(err, entity.ErrRequestResolved) {
		t.Fatalf("Decline() after accept error = %v, want ErrRequestResolved", err)
	}
	if g.edgeCount(a, b) != 1 {
		t.Fatal("edge count changed after terminal resolution")
	}
}

func TestDeclineCreatesNoEdge(t *testing.T) {
	g := newMemoryGraph()
	svc := New(g)
	ctx := context.Background()
	a, b := g.addIdentity(false), g.addIdentity(true)

	out, _ := svc.Follow(ctx, a, b)
	req, err := svc.Decline(ctx, b, out.Request.ID)
	if err != nil {
		t.Fatalf("Decline() error = %v", err)
	}
	if req.Status != entity.StatusDeclined {
		t.Fatalf("status = %s, want declined", req.Status)
	}
	if g.edgeCount(a, b) != 0 {
		t.Fatal("decline must not create an edge")
	}
	if rel, _ := svc.Status(ctx, a, b); rel != entity.RelationNone {
		t.Fatalf("Status() = %s, want none", rel)
	}

	// a declined request does not block a new one
	if _, err := svc.Follow(ctx, a, b); err != nil {
		t.Fatalf("Follow() after decline error = %v", err)
	}
}

func TestDuplicatePendingRejected(t *testing.T) {
	g := newMemoryGraph()
	svc := New(g)
	a, b := g.addIdentity(false), g.addIdentity(true)

	if _, err := svc.Follow(context.Background(), a, b); err != nil {
		t.Fatalf("Follow() error = %v", err)
	}
	if _, err := svc.Follow(context.Background(), a, b); !errors.Is(err, entity.ErrRequestPending) {
		t.Fatalf("second Follow() error = %v, want ErrRequestPending", err)
	}
}

func TestFollowValidation(t *testing.T) {
	g := newMemoryGraph()
	svc := New(g)
	a := g.addIdentity(false)

	if _, err := svc.Follow(context.Background(), a, a); !errors.Is(err, entity.ErrSelfFollow) {
		t.Fatalf("self Follow() error = %v, want ErrSelfFollow", err)
	}
	if _, err := svc.Follow(context.Background(), a, uuid.NewString()); !errors.Is(err, entity.ErrTargetNotFound) {
		t.Fatalf("unknown Follow() error = %v, want ErrTargetNotFound", err)
	}
	if _, err := svc.Accept(context.Background(), a, "nope"); !errors.Is(err, entity.ErrRequestNotFound) {
		t.Fatalf("Accept(bad id) error = %v, want ErrRequestNotFound", err)
	}
}

func TestUnfollow(t *testing.T) {
	g := newMemoryGraph()
	svc := New(g)
	ctx := context.Background()
	a, b := g.addIdentity(false), g.addIdentity(false)

	svc.Follow(ctx, a, b)
	if err := svc.Unfollow(ctx, a, b); err != nil {
		t.Fatalf("Unfollow() error = %v", err)
	}
	if g.edgeCount(a, b) != 0 {
		t.Fatal("edge still present after Unfollow")
	}
	if err := svc.Unfollow(ctx, a, b); !errors.Is(err, entity.ErrNotFollowing) {
		t.Fatalf("second Unfollow() error = %v, want ErrNotFollowing", err)
	}
}
