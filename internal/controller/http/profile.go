package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/blinka/internal/domain/identity/entity"
	"github.com/vadim/blinka/internal/httpx/request"
	"github.com/vadim/blinka/internal/httpx/response"
	"github.com/vadim/blinka/internal/storage"
)

// ProfileService defines the interface for profile operations
type ProfileService interface {
	GetProfile(ctx context.Context, id string) (*entity.Identity, error)
	UpdateProfile(ctx context.Context, id string, upd entity.ProfileUpdate) (*entity.Identity, error)
	SetAvatar(ctx context.Context, id string, in storage.File) (string, error)
	Suggested(ctx context.Context, viewerID string) ([]entity.Identity, error)
}

// ProfileHandler handles HTTP requests for profiles
type ProfileHandler struct {
	profiles ProfileService
	logger   *slog.Logger
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(profiles ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger.With("component", "profile_handler")}
}

// RegisterRoutes registers profile routes
func (h *ProfileHandler) RegisterRoutes(r chi.Router) {
	r.Get("/profiles/me", h.Me())
	r.Patch("/profiles/me", h.Update())
	r.Post("/profiles/me/avatar", h.SetAvatar())
	r.Get("/profiles/suggested", h.Suggested())
	r.Get("/profiles/{id}", h.Get())
}

// UpdateProfileRequest represents the request body for editing a profile.
// Absent fields are left unchanged.
type UpdateProfileRequest struct {
	Username  *string `json:"username" validate:"omitempty,max=30"`
	Bio       *string `json:"bio" validate:"omitempty,max=150"`
	IsPrivate *bool   `json:"is_private"`
}

// Me handles GET /profiles/me
func (h *ProfileHandler) Me() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, err := h.profiles.GetProfile(r.Context(), currentSession(r).IdentityID)
		if err != nil {
			h.handleError(w, err)
			return
		}
		response.OK(w, ident)
	}
}

// Get handles GET /profiles/{id}. The id is a profile id or a numeric user id.
func (h *ProfileHandler) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, err := h.profiles.GetProfile(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			h.handleError(w, err)
			return
		}

		if ident.ID != currentSession(r).IdentityID {
			public := ident.Public()
			ident = &public
		}
		response.OK(w, ident)
	}
}

// Update handles PATCH /profiles/me
func (h *ProfileHandler) Update() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateProfileRequest
		if err := request.Decode(w, r, &req); err != nil {
			response.BadRequest(w, err.Error())
			return
		}

		ident, err := h.profiles.UpdateProfile(r.Context(), currentSession(r).IdentityID, entity.ProfileUpdate{
			Username:  req.Username,
			Bio:       req.Bio,
			IsPrivate: req.IsPrivate,
		})
		if err != nil {
			h.handleError(w, err)
			return
		}
		response.OK(w, ident)
	}
}

// SetAvatar handles POST /profiles/me/avatar (multipart field "file")
func (h *ProfileHandler) SetAvatar() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, err := parseUploadForm(w, r)
		if err != nil {
			response.BadRequest(w, err.Error())
			return
		}
		defer form.Close()

		file, err := form.file("file")
		if err != nil {
			response.BadRequest(w, err.Error())
			return
		}
		if file == nil {
			response.BadRequest(w, "missing file in request")
			return
		}

		url, err := h.profiles.SetAvatar(r.Context(), currentSession(r).IdentityID, *file)
		if err != nil {
			h.handleError(w, err)
			return
		}
		response.OK(w, map[string]string{"avatar_url": url})
	}
}

// Suggested handles GET /profiles/suggested
func (h *ProfileHandler) Suggested() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idents, err := h.profiles.Suggested(r.Context(), currentSession(r).IdentityID)
		if err != nil {
			h.handleError(w, err)
			return
		}

		profiles := make([]entity.Identity, 0, len(idents))
		for _, ident := range idents {
			profiles = append(profiles, ident.Public())
		}
		response.OK(w, map[string]any{"profiles": profiles})
	}
}

func (h *ProfileHandler) handleError(w http.ResponseWriter, err error) {
	if handleStorageError(w, err) {
		return
	}
	switch {
	case errors.Is(err, entity.ErrIdentityNotFound), errors.Is(err, entity.ErrUserIDNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, entity.ErrUsernameTaken):
		response.Conflict(w, err.Error())
	case errors.Is(err, entity.ErrInvalidUsername), errors.Is(err, entity.ErrBioTooLong):
		response.BadRequest(w, err.Error())
	default:
		h.logger.Error("profile request failed", "error", err)
		response.InternalError(w, "internal server error")
	}
}
