package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/blinka/internal/domain/identity/entity"
	"github.com/vadim/blinka/internal/domain/identity/service"
	"github.com/vadim/blinka/internal/httpx/request"
	"github.com/vadim/blinka/internal/httpx/response"
)

// AuthService defines the interface for sign-up, sign-in and sign-out
type AuthService interface {
	SignUp(ctx context.Context, in service.SignUpInput) (*service.AuthOutput, error)
	SignIn(ctx context.Context, login, password string) (*service.AuthOutput, error)
	SignOut(ctx context.Context, sessionID string) error
}

// AuthHandler handles HTTP requests for sessions
type AuthHandler struct {
	auth   AuthService
	logger *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(auth AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger.With("component", "auth_handler")}
}

// RegisterRoutes registers auth routes. Sign-out needs a session.
func (h *AuthHandler) RegisterRoutes(r chi.Router, requireSession func(http.Handler) http.Handler) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.SignUp())
		r.Post("/signin", h.SignIn())
		r.With(requireSession).Post("/signout", h.SignOut())
	})
}

// SignUpRequest represents the request body for registering
type SignUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Username string `json:"username" validate:"required,max=30"`
}

// SignInRequest represents the request body for signing in.
// Login is an email or a numeric user id.
type SignInRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse represents a signed-in identity and its token
type AuthResponse struct {
	Identity  *entity.Identity `json:"identity"`
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// SignUp handles POST /auth/signup
func (h *AuthHandler) SignUp() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignUpRequest
		if err := request.Decode(w, r, &req); err != nil {
			response.BadRequest(w, err.Error())
			return
		}

		out, err := h.auth.SignUp(r.Context(), service.SignUpInput{
			Email:    req.Email,
			Password: req.Password,
			Username: req.Username,
		})
		if err != nil {
			h.handleError(w, err)
			return
		}

		response.Created(w, newAuthResponse(out))
	}
}

// SignIn handles POST /auth/signin
func (h *AuthHandler) SignIn() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignInRequest
		if err := request.Decode(w, r, &req); err != nil {
			response.BadRequest(w, err.Error())
			return
		}

		out, err := h.auth.SignIn(r.Context(), req.Login, req.Password)
		if err != nil {
			h.handleError(w, err)
			return
		}

		response.OK(w, newAuthResponse(out))
	}
}

// SignOut handles POST /auth/signout
func (h *AuthHandler) SignOut() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.auth.SignOut(r.Context(), currentSession(r).ID); err != nil {
			h.handleError(w, err)
			return
		}
		response.NoContent(w)
	}
}

func newAuthResponse(out *service.AuthOutput) AuthResponse {
	return AuthResponse{
		Identity:  out.Identity,
		Token:     out.Token,
		ExpiresAt: out.Session.ExpiresAt,
	}
}

func (h *AuthHandler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrInvalidCredentials), errors.Is(err, entity.ErrUserIDNotFound):
		response.Unauthorized(w, err.Error())
	case errors.Is(err, entity.ErrEmailTaken), errors.Is(err, entity.ErrUsernameTaken):
		response.Conflict(w, err.Error())
	case errors.Is(err, entity.ErrInvalidEmail),
		errors.Is(err, entity.ErrWeakPassword),
		errors.Is(err, entity.ErrInvalidUsername):
		response.BadRequest(w, err.Error())
	case errors.Is(err, entity.ErrSessionNotFound):
		response.Unauthorized(w, err.Error())
	default:
		h.logger.Error("auth request failed", "error", err)
		response.InternalError(w, "internal server error")
	}
}
