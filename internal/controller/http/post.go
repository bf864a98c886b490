package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/blinka/internal/domain/post/entity"
	"github.com/vadim/blinka/internal/domain/post/service"
	"github.com/vadim/blinka/internal/httpx/response"
	"github.com/vadim/blinka/internal/storage"
)

// PostService defines the interface for post operations
type PostService interface {
	Create(ctx context.Context, in service.CreateInput) (*entity.Post, error)
	Get(ctx context.Context, viewerID, id string) (*entity.Post, error)
	ListByAuthor(ctx context.Context, viewerID, authorID string) ([]entity.Post, error)
	Feed(ctx context.Context, viewerID string) ([]entity.Post, error)
	Like(ctx context.Context, actorID, postID string) error
	Unlike(ctx context.Context, actorID, postID string) error
	Delete(ctx context.Context, authorID, id string) error
}

// PostHandler handles HTTP requests for posts
type PostHandler struct {
	posts  PostService
	logger *slog.Logger
}

// NewPostHandler creates a new post handler
func NewPostHandler(posts PostService, logger *slog.Logger) *PostHandler {
	return &PostHandler{posts: posts, logger: logger.With("component", "post_handler")}
}

// RegisterRoutes registers post routes
func (h *PostHandler) RegisterRoutes(r chi.Router) {
	r.Get("/feed", h.Feed())
	r.Get("/profiles/{id}/posts", h.ListByAuthor())

	r.Route("/posts", func(r chi.Router) {
		r.Post("/", h.Create())
		r.Get("/{id}", h.Get())
		r.Delete("/{id}", h.Delete())
		r.Post("/{id}/like", h.Like())
		r.Delete("/{id}/like", h.Unlike())
	})
}

// ListPostsResponse represents a list of posts
type ListPostsResponse struct {
	Posts []entity.Post `json:"posts"`
}

// Create handles POST /posts (multipart fields "image", "video", "music", "caption")
func (h *PostHandler) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, err := parseUploadForm(w, r)
		if err != nil {
			response.BadRequest(w, err.Error())
			return
		}
		defer form.Close()

		in := service.CreateInput{
			AuthorID: currentSession(r).IdentityID,
			Caption:  form.value("caption"),
		}
		for field, dst := range map[string]**storage.File{
			"image": &in.Image,
			"video": &in.Video,
			"music": &in.Music,
		} {
			file, err := form.file(field)
			if err != nil {
				response.BadRequest(w, err.Error())
				return
			}
			*dst = file
		}

		post, err := h.posts.Create(r.Context(), in)
		if err != nil {
			h.handleError(w, err)
			return
		}
		response.Created(w, post)
	}
}

// Get handles GET /posts/{id}
func (h *PostHandler) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		post, err := h.posts.Get(r.Context(), currentSession(r).IdentityID, chi.URLParam(r, "id"))
		if err != nil {
			h.handleError(w, err)
			return
		}
		response.OK(w, post)
	}
}

// ListByAuthor handles GET /profiles/{id}/posts
func (h *PostHandler) ListByAuthor() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		posts, err := h.posts.ListByAuthor(r.Context(), currentSession(r).IdentityID, chi.URLParam(r, "id"))
		if err != nil {
			h.handleError(w, err)
			return
		}
		response.OK(w, ListPostsResponse{Posts: posts})
	}
}

// Feed handles GET /feed
func (h *PostHandler) Feed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		posts, err := h.posts.Feed(r.Context(), currentSession(r).IdentityID)
		if err != nil {
			h.handleError(w, err)
			return
		}
		response.OK(w, ListPostsResponse{Posts: posts})
	}
}

// Like handles POST /posts/{id}/like
func (h *PostHandler) Like() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.posts.Like(r.Context(), currentSession(r).IdentityID, chi.URLParam(r, "id")); err != nil {
			h.handleError(w, err)
			return
		}
		response.NoContent(w)
	}
}

// Unlike handles DELETE /posts/{id}/like
func (h *PostHandler) Unlike() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.posts.Unlike(r.Context(), currentSession(r).IdentityID, chi.URLParam(r, "id")); err != nil {
			h.handleError(w, err)
			return
		}
		response.NoContent(w)
	}
}

// Delete handles DELETE /posts/{id}
func (h *PostHandler) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.posts.Delete(r.Context(), currentSession(r).IdentityID, chi.URLParam(r, "id")); err != nil {
			h.handleError(w, err)
			return
		}
		response.NoContent(w)
	}
}

func (h *PostHandler) handleError(w http.ResponseWriter, err error) {
	if handleStorageError(w, err) {
		return
	}
	switch {
	case errors.Is(err, entity.ErrPostNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, entity.ErrNotOwner):
		response.Forbidden(w, err.Error())
	case errors.Is(err, entity.ErrAlreadyLiked), errors.Is(err, entity.ErrNotLiked):
		response.Conflict(w, err.Error())
	case errors.Is(err, entity.ErrEmptyPost), errors.Is(err, entity.ErrCaptionTooLong):
		response.BadRequest(w, err.Error())
	case errors.Is(err, entity.ErrInvalidImage),
		errors.Is(err, entity.ErrInvalidVideo),
		errors.Is(err, entity.ErrInvalidMusic):
		response.UnsupportedMedia(w, err.Error())
	default:
		h.logger.Error("post request failed", "error", err)
		response.InternalError(w, "internal server error")
	}
}
