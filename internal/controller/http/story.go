package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/blinka/internal/domain/story/entity"
	"github.com/vadim/blinka/internal/domain/story/service"
	"github.com/vadim/blinka/internal/httpx/request"
	"github.com/vadim/blinka/internal/httpx/response"
)

// StoryService defines the interface for story operations
type StoryService interface {
	Create(ctx context.Context, in service.CreateInput) (*entity.Story, error)
	ListActive(ctx context.Context) ([]entity.Story, error)
	UpdateCaption(ctx context.Context, authorID, id, caption string) (*entity.Story, error)
	Delete(ctx context.Context, authorID, id string) error
}

// StoryHandler handles HTTP requests for stories
type StoryHandler struct {
	stories StoryService
	logger  *slog.Logger
}

// NewStoryHandler creates a new story handler
func NewStoryHandler(stories StoryService, logger *slog.Logger) *StoryHandler {
	return &StoryHandler{stories: stories, logger: logger.With("component", "story_handler")}
}

// RegisterRoutes registers story routes
func (h *StoryHandler) RegisterRoutes(r chi.Router) {
	r.Route("/stories", func(r chi.Router) {
		r.Get("/", h.List())
		r.Post("/", h.Create())
		r.Patch("/{id}", h.UpdateCaption())
		r.Delete("/{id}", h.Delete())
	})
}

// UpdateStoryRequest represents the request body for editing a caption
type UpdateStoryRequest struct {
	Caption string `json:"caption"`
}

// List handles GET /stories
func (h *StoryHandler) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stories, err := h.stories.ListActive(r.Context())
		if err != nil {
			h.handleError(w, err)
			return
		}
		response.OK(w, map[string]any{"stories": stories})
	}
}

// Create handles POST /stories (multipart fields "media", "music", "caption")
func (h *StoryHandler) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, err := parseUploadForm(w, r)
		if err != nil {
			response.BadRequest(w, err.Error())
			return
		}
		defer form.Close()

		media, err := form.file("media")
		if err != nil {
			response.BadRequest(w, err.Error())
			return
		}
		if media == nil {
			h.handleError(w, entity.ErrMediaRequired)
			return
		}
		music, err := form.file("music")
		if err != nil {
			response.BadRequest(w, err.Error())
			return
		}

		story, err := h.stories.Create(r.Context(), service.CreateInput{
			AuthorID: currentSession(r).IdentityID,
			Media:    *media,
			Music:    music,
			Caption:  form.value("caption"),
		})
		if err != nil {
			h.handleError(w, err)
			return
		}
		response.Created(w, story)
	}
}

// UpdateCaption handles PATCH /stories/{id}
func (h *StoryHandler) UpdateCaption() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateStoryRequest
		if err := request.Decode(w, r, &req); err != nil {
			response.BadRequest(w, err.Error())
			return
		}

		story, err := h.stories.UpdateCaption(r.Context(), currentSession(r).IdentityID, chi.URLParam(r, "id"), req.Caption)
		if err != nil {
			h.handleError(w, err)
			return
		}
		response.OK(w, story)
	}
}

// Delete handles DELETE /stories/{id}
func (h *StoryHandler) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.stories.Delete(r.Context(), currentSession(r).IdentityID, chi.URLParam(r, "id")); err != nil {
			h.handleError(w, err)
			return
		}
		response.NoContent(w)
	}
}

func (h *StoryHandler) handleError(w http.ResponseWriter, err error) {
	if handleStorageError(w, err) {
		return
	}
	switch {
	case errors.Is(err, entity.ErrStoryNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, entity.ErrNotOwner):
		response.Forbidden(w, err.Error())
	case errors.Is(err, entity.ErrMediaRequired), errors.Is(err, entity.ErrCaptionTooLong):
		response.BadRequest(w, err.Error())
	case errors.Is(err, entity.ErrInvalidMedia), errors.Is(err, entity.ErrInvalidMusic):
		response.UnsupportedMedia(w, err.Error())
	default:
		h.logger.Error("story request failed", "error", err)
		response.InternalError(w, "internal server error")
	}
}
