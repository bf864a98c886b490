package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/blinka/internal/domain/follow/entity"
	"github.com/vadim/blinka/internal/domain/follow/service"
	"github.com/vadim/blinka/internal/httpx/response"
)

// FollowService defines the interface for follow operations
type FollowService interface {
	Follow(ctx context.Context, actorID, targetID string) (*service.FollowOutput, error)
	Unfollow(ctx context.Context, actorID, targetID string) error
	Status(ctx context.Context, viewerID, targetID string) (entity.Relation, error)
	Pending(ctx context.Context, targetID string) ([]entity.FollowRequest, error)
	Accept(ctx context.Context, targetID, requestID string) (*entity.FollowRequest, error)
	Decline(ctx context.Context, targetID, requestID string) (*entity.FollowRequest, error)
}

// FollowHandler handles HTTP requests for follows and follow requests
type FollowHandler struct {
	follows FollowService
	logger  *slog.Logger
}

// NewFollowHandler creates a new follow handler
func NewFollowHandler(follows FollowService, logger *slog.Logger) *FollowHandler {
	return &FollowHandler{follows: follows, logger: logger.With("component", "follow_handler")}
}

// RegisterRoutes registers follow routes
func (h *FollowHandler) RegisterRoutes(r chi.Router) {
	r.Post("/profiles/{id}/follow", h.Follow())
	r.Delete("/profiles/{id}/follow", h.Unfollow())
	r.Get("/profiles/{id}/follow-status", h.Status())

	r.Route("/follow-requests", func(r chi.Router) {
		r.Get("/", h.Pending())
		r.Post("/{id}/accept", h.Accept())
		r.Post("/{id}/decline", h.Decline())
	})
}

// Follow handles POST /profiles/{id}/follow
func (h *FollowHandler) Follow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := h.follows.Follow(r.Context(), currentSession(r).IdentityID, chi.URLParam(r, "id"))
		if err != nil {
			h.handleError(w, err)
			return
		}
		response.OK(w, out)
	}
}

// Unfollow handles DELETE /profiles/{id}/follow
func (h *FollowHandler) Unfollow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.follows.Unfollow(r.Context(), currentSession(r).IdentityID, chi.URLParam(r, "id")); err != nil {
			h.handleError(w, err)
			return
		}
		response.NoContent(w)
	}
}

// Status handles GET /profiles/{id}/follow-status
func (h *FollowHandler) Status() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rel, err := h.follows.Status(r.Context(), currentSession(r).IdentityID, chi.URLParam(r, "id"))
		if err != nil {
			h.handleError(w, err)
			return
		}
		response.OK(w, map[string]entity.Relation{"relation": rel})
	}
}

// Pending handles GET /follow-requests
func (h *FollowHandler) Pending() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqs, err := h.follows.Pending(r.Context(), currentSession(r).IdentityID)
		if err != nil {
			h.handleError(w, err)
			return
		}
		response.OK(w, map[string]any{"requests": reqs})
	}
}

// Accept handles POST /follow-requests/{id}/accept
func (h *FollowHandler) Accept() http.HandlerFunc {
	return h.resolve(func(ctx context.Context, targetID, requestID string) (*entity.FollowRequest, error) {
		return h.follows.Accept(ctx, targetID, requestID)
	})
}

// Decline handles POST /follow-requests/{id}/decline
func (h *FollowHandler) Decline() http.HandlerFunc {
	return h.resolve(func(ctx context.Context, targetID, requestID string) (*entity.FollowRequest, error) {
		return h.follows.Decline(ctx, targetID, requestID)
	})
}

func (h *FollowHandler) resolve(apply func(ctx context.Context, targetID, requestID string) (*entity.FollowRequest, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := apply(r.Context(), currentSession(r).IdentityID, chi.URLParam(r, "id"))
		if err != nil {
			h.handleError(w, err)
			return
		}
		response.OK(w, req)
	}
}

func (h *FollowHandler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrTargetNotFound), errors.Is(err, entity.ErrRequestNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, entity.ErrSelfFollow):
		response.BadRequest(w, err.Error())
	case errors.Is(err, entity.ErrAlreadyFollowing),
		errors.Is(err, entity.ErrNotFollowing),
		errors.Is(err, entity.ErrRequestPending),
		errors.Is(err, entity.ErrRequestResolved):
		response.Conflict(w, err.Error())
	default:
		h.logger.Error("follow request failed", "error", err)
		response.InternalError(w, "internal server error")
	}
}
