package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/blinka/internal/domain/notification/entity"
	"github.com/vadim/blinka/internal/httpx/response"
)

// NotificationService defines the interface for notification operations
type NotificationService interface {
	List(ctx context.Context, recipientID string, limit int) ([]entity.Notification, error)
	MarkRead(ctx context.Context, recipientID, id string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
}

// NotificationHandler handles HTTP requests for notifications
type NotificationHandler struct {
	notifications NotificationService
	logger        *slog.Logger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifications NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger.With("component", "notification_handler")}
}

// RegisterRoutes registers notification routes
func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.List())
		r.Get("/unread-count", h.UnreadCount())
		r.Post("/read-all", h.MarkAllRead())
		r.Post("/{id}/read", h.MarkRead())
	})
}

// ListNotificationsResponse represents rendered notifications
type ListNotificationsResponse struct {
	Notifications []entity.Item `json:"notifications"`
}

// List handles GET /notifications
func (h *NotificationHandler) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if l := r.URL.Query().Get("limit"); l != "" {
			if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		list, err := h.notifications.List(r.Context(), currentSession(r).IdentityID, limit)
		if err != nil {
			h.handleError(w, err)
			return
		}

		items := make([]entity.Item, 0, len(list))
		for _, n := range list {
			items = append(items, entity.NewItem(n))
		}
		response.OK(w, ListNotificationsResponse{Notifications: items})
	}
}

// UnreadCount handles GET /notifications/unread-count
func (h *NotificationHandler) UnreadCount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := h.notifications.UnreadCount(r.Context(), currentSession(r).IdentityID)
		if err != nil {
			h.handleError(w, err)
			return
		}
		response.OK(w, map[string]int{"unread": n})
	}
}

// MarkRead handles POST /notifications/{id}/read
func (h *NotificationHandler) MarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.notifications.MarkRead(r.Context(), currentSession(r).IdentityID, chi.URLParam(r, "id")); err != nil {
			h.handleError(w, err)
			return
		}
		response.NoContent(w)
	}
}

// MarkAllRead handles POST /notifications/read-all
func (h *NotificationHandler) MarkAllRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := h.notifications.MarkAllRead(r.Context(), currentSession(r).IdentityID)
		if err != nil {
			h.handleError(w, err)
			return
		}
		response.OK(w, map[string]int64{"updated": n})
	}
}

func (h *NotificationHandler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrNotificationNotFound):
		response.NotFound(w, err.Error())
	default:
		h.logger.Error("notification request failed", "error", err)
		response.InternalError(w, "internal server error")
	}
}
