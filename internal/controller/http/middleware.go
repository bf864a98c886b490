package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vadim/blinka/internal/domain/identity/entity"
	"github.com/vadim/blinka/internal/httpx/response"
	"github.com/vadim/blinka/internal/session"
)

// Authenticator resolves a bearer token into a live session
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (session.Session, error)
}

// RequireSession rejects requests without a valid session and stores the
// session in the request context. WebSocket clients that cannot set headers
// may pass the token as the access_token query parameter.
func RequireSession(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				response.Unauthorized(w, "missing access token")
				return
			}

			sess, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				if isAuthError(err) {
					response.Unauthorized(w, err.Error())
					return
				}
				logger.Error("failed to authenticate request", "error", err)
				response.InternalError(w, "internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), sess)))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

func isAuthError(err error) bool {
	return errors.Is(err, session.ErrInvalidToken) ||
		errors.Is(err, session.ErrExpiredToken) ||
		errors.Is(err, entity.ErrSessionNotFound) ||
		errors.Is(err, entity.ErrSessionRevoked) ||
		errors.Is(err, entity.ErrSessionExpired)
}

// currentSession returns the caller's session; routes behind RequireSession always have one
func currentSession(r *http.Request) session.Session {
	sess, _ := session.FromContext(r.Context())
	return sess
}
