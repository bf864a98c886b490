package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/blinka/internal/domain/direct/entity"
	"github.com/vadim/blinka/internal/domain/direct/service"
	"github.com/vadim/blinka/internal/httpx/request"
	"github.com/vadim/blinka/internal/httpx/response"
)

// DirectService defines the interface for direct message operations
type DirectService interface {
	Peers(ctx context.Context, selfID string) ([]entity.Peer, error)
	FetchThread(ctx context.Context, selfID, peerID string) ([]entity.Message, error)
	Send(ctx context.Context, in service.SendInput) (*service.SendOutput, error)
	MarkThreadRead(ctx context.Context, selfID, peerID string) (int64, error)
}

// DirectHandler handles HTTP requests for direct messages
type DirectHandler struct {
	direct DirectService
	logger *slog.Logger
}

// NewDirectHandler creates a new direct message handler
func NewDirectHandler(direct DirectService, logger *slog.Logger) *DirectHandler {
	return &DirectHandler{direct: direct, logger: logger.With("component", "direct_handler")}
}

// RegisterRoutes registers direct message routes
func (h *DirectHandler) RegisterRoutes(r chi.Router) {
	r.Route("/direct", func(r chi.Router) {
		// Peers the caller follows
		r.Get("/peers", h.Peers())

		// Thread with one peer
		r.Get("/threads/{peerId}", h.Thread())
		r.Post("/threads/{peerId}/messages", h.Send())
		r.Post("/threads/{peerId}/read", h.MarkRead())
	})
}

// SendMessageRequest represents the request body for sending a message
type SendMessageRequest struct {
	Text     string `json:"text"`
	ClientID string `json:"client_id" validate:"omitempty,max=64"`
}

// Peers handles GET /direct/peers
func (h *DirectHandler) Peers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		peers, err := h.direct.Peers(r.Context(), currentSession(r).IdentityID)
		if err != nil {
			h.handleError(w, err)
			return
		}
		response.OK(w, map[string]any{"peers": peers})
	}
}

// Thread handles GET /direct/threads/{peerId}
func (h *DirectHandler) Thread() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		messages, err := h.direct.FetchThread(r.Context(), currentSession(r).IdentityID, chi.URLParam(r, "peerId"))
		if err != nil {
			h.handleError(w, err)
			return
		}
		response.OK(w, map[string]any{"messages": messages})
	}
}

// Send handles POST /direct/threads/{peerId}/messages
func (h *DirectHandler) Send() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SendMessageRequest
		if err := request.Decode(w, r, &req); err != nil {
			response.BadRequest(w, err.Error())
			return
		}

		out, err := h.direct.Send(r.Context(), service.SendInput{
			SenderID:   currentSession(r).IdentityID,
			ReceiverID: chi.URLParam(r, "peerId"),
			Text:       req.Text,
			ClientID:   req.ClientID,
		})
		if err != nil {
			h.handleError(w, err)
			return
		}
		response.Created(w, map[string]string{"id": out.MessageID})
	}
}

// MarkRead handles POST /direct/threads/{peerId}/read
func (h *DirectHandler) MarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := h.direct.MarkThreadRead(r.Context(), currentSession(r).IdentityID, chi.URLParam(r, "peerId"))
		if err != nil {
			h.handleError(w, err)
			return
		}
		response.OK(w, map[string]int64{"updated": n})
	}
}

func (h *DirectHandler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrUserNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, entity.ErrEmptyMessage),
		errors.Is(err, entity.ErrMessageTooLong),
		errors.Is(err, entity.ErrInvalidRecipient):
		response.BadRequest(w, err.Error())
	default:
		h.logger.Error("direct request failed", "error", err)
		response.InternalError(w, "internal server error")
	}
}
