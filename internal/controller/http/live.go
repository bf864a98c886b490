package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	directentity "github.com/vadim/blinka/internal/domain/direct/entity"
	notificationsvc "github.com/vadim/blinka/internal/domain/notification/service"
	"github.com/vadim/blinka/internal/httpx/response"
	"github.com/vadim/blinka/internal/realtime"
	"github.com/vadim/blinka/internal/session"
	"github.com/vadim/blinka/internal/view"
)

const (
	liveWriteTimeout   = 10 * time.Second
	livePingInterval   = 30 * time.Second
	liveSessionRecheck = 15 * time.Second
)

var errSessionEnded = errors.New("session ended")

// SessionVerifier re-checks the session behind an open live connection
type SessionVerifier interface {
	Verify(ctx context.Context, sess session.Session) error
}

// LiveHandler serves live views over WebSocket. A connection is one mounted
// view: it gets a snapshot on connect and after every change, and its
// subscription is released when the socket closes.
type LiveHandler struct {
	hub           view.Subscriber
	threads       view.ThreadStore
	notifications view.NotificationStore
	requests      view.FollowRequestStore
	sessions      SessionVerifier
	recheck       time.Duration
	origins       []string
	logger        *slog.Logger
}

// LiveStores groups the stores live views read through
type LiveStores struct {
	Threads        view.ThreadStore
	Notifications  view.NotificationStore
	FollowRequests view.FollowRequestStore
}

// NewLiveHandler creates a new live view handler. Open connections are closed
// once sessions reports their session revoked or expired.
func NewLiveHandler(hub view.Subscriber, stores LiveStores, sessions SessionVerifier, origins []string, logger *slog.Logger) *LiveHandler {
	return &LiveHandler{
		hub:           hub,
		threads:       stores.Threads,
		notifications: stores.Notifications,
		requests:      stores.FollowRequests,
		sessions:      sessions,
		recheck:       liveSessionRecheck,
		origins:       origins,
		logger:        logger.With("component", "live_handler"),
	}
}

// RegisterRoutes registers live view routes
func (h *LiveHandler) RegisterRoutes(r chi.Router) {
	r.Route("/live", func(r chi.Router) {
		r.Get("/threads/{peerId}", h.Thread())
		r.Get("/notifications", h.Notifications())
		r.Get("/follow-requests", h.FollowRequests())
	})
}

// LiveCommand is a client message on a live view socket
type LiveCommand struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Text string `json:"text,omitempty"`
}

// LiveFrame is a server message on a live view socket
type LiveFrame struct {
	Type     string `json:"type"` // snapshot, ack or error
	Snapshot any    `json:"snapshot,omitempty"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Thread handles GET /live/threads/{peerId}. Commands: send {text}, refresh.
// The peer is checked before the upgrade, so a bad peer gets a plain 400 or 404.
func (h *LiveHandler) Thread() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		sess := currentSession(r)

		t, err := view.OpenThread(ctx, h.hub, h.threads, h.logger, sess.IdentityID, chi.URLParam(r, "peerId"))
		if err != nil {
			h.handleOpenError(w, err)
			return
		}
		defer t.Close()

		conn := h.accept(w, r)
		if conn == nil {
			return
		}
		defer conn.CloseNow()

		serveLive(ctx, conn, h.logger, h.watchSession(ctx, sess), t.Snapshot(), t.Updates(), func(ctx context.Context, cmd LiveCommand) (any, error) {
			switch cmd.Type {
			case "send":
				return t.Send(ctx, cmd.Text)
			case "refresh":
				return nil, t.Refresh(ctx)
			}
			return nil, fmt.Errorf("unknown command %q", cmd.Type)
		})
	}
}

// Notifications handles GET /live/notifications. Commands: mark_read {id}, mark_all_read.
func (h *LiveHandler) Notifications() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		sess := currentSession(r)

		n, err := view.OpenNotifications(ctx, h.hub, h.notifications, h.logger, sess.IdentityID, notificationsvc.DefaultLimit)
		if err != nil {
			h.handleOpenError(w, err)
			return
		}
		defer n.Close()

		conn := h.accept(w, r)
		if conn == nil {
			return
		}
		defer conn.CloseNow()

		serveLive(ctx, conn, h.logger, h.watchSession(ctx, sess), n.Snapshot(), n.Updates(), func(ctx context.Context, cmd LiveCommand) (any, error) {
			switch cmd.Type {
			case "mark_read":
				return nil, n.MarkRead(ctx, cmd.ID)
			case "mark_all_read":
				count, err := n.MarkAllRead(ctx)
				return map[string]int64{"updated": count}, err
			}
			return nil, fmt.Errorf("unknown command %q", cmd.Type)
		})
	}
}

// FollowRequests handles GET /live/follow-requests. Commands: accept {id}, decline {id}.
func (h *LiveHandler) FollowRequests() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		sess := currentSession(r)

		f, err := view.OpenFollowRequests(ctx, h.hub, h.requests, h.logger, sess.IdentityID)
		if err != nil {
			h.handleOpenError(w, err)
			return
		}
		defer f.Close()

		conn := h.accept(w, r)
		if conn == nil {
			return
		}
		defer conn.CloseNow()

		serveLive(ctx, conn, h.logger, h.watchSession(ctx, sess), f.Snapshot(), f.Updates(), func(ctx context.Context, cmd LiveCommand) (any, error) {
			switch cmd.Type {
			case "accept":
				return f.Accept(ctx, cmd.ID)
			case "decline":
				return f.Decline(ctx, cmd.ID)
			}
			return nil, fmt.Errorf("unknown command %q", cmd.Type)
		})
	}
}

func (h *LiveHandler) accept(w http.ResponseWriter, r *http.Request) *websocket.Conn {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return nil
	}
	return conn
}

// watchSession holds sess in a provider for the lifetime of ctx and clears it
// once the session has expired or verification reports it gone. The returned
// channel carries the resulting signed_out event.
func (h *LiveHandler) watchSession(ctx context.Context, sess session.Session) <-chan session.Event {
	provider := session.NewProvider()
	provider.Set(sess)
	events := provider.Watch(ctx)

	go func() {
		ticker := time.NewTicker(h.recheck)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			if sess.Expired(time.Now()) {
				provider.Clear()
				return
			}
			err := h.sessions.Verify(ctx, sess)
			switch {
			case err == nil:
			case isAuthError(err):
				provider.Clear()
				return
			case ctx.Err() == nil:
				// the store being unreachable does not end the session
				h.logger.Warn("failed to verify live session", "session_id", sess.ID, "error", err)
			}
		}
	}()

	return events
}

func (h *LiveHandler) handleOpenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, directentity.ErrUserNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, directentity.ErrInvalidRecipient):
		response.BadRequest(w, err.Error())
	case errors.Is(err, realtime.ErrHubClosed):
		response.Unavailable(w, "server is shutting down")
	default:
		h.logger.Error("failed to open live view", "error", err)
		response.InternalError(w, "internal server error")
	}
}

// serveLive pushes snapshots until the client goes away and runs its commands.
// Writes may overlap; the connection serializes them.
func serveLive[S any](
	ctx context.Context,
	conn *websocket.Conn,
	logger *slog.Logger,
	sessionEvents <-chan session.Event,
	initial S,
	updates <-chan S,
	handle func(ctx context.Context, cmd LiveCommand) (any, error),
) {
	g, ctx := errgroup.WithContext(ctx)

	write := func(frame LiveFrame) error {
		wctx, cancel := context.WithTimeout(ctx, liveWriteTimeout)
		defer cancel()
		return wsjson.Write(wctx, conn, frame)
	}

	g.Go(func() error {
		if err := write(LiveFrame{Type: "snapshot", Snapshot: initial}); err != nil {
			return err
		}

		ping := time.NewTicker(livePingInterval)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case snap, ok := <-updates:
				if !ok {
					return nil
				}
				if err := write(LiveFrame{Type: "snapshot", Snapshot: snap}); err != nil {
					return err
				}
			case ev, ok := <-sessionEvents:
				if !ok {
					return nil
				}
				if ev.Kind == session.EventSignedOut {
					conn.Close(websocket.StatusPolicyViolation, "session ended")
					return errSessionEnded
				}
			case <-ping.C:
				pctx, cancel := context.WithTimeout(ctx, liveWriteTimeout)
				err := conn.Ping(pctx)
				cancel()
				if err != nil {
					return err
				}
			}
		}
	})

	g.Go(func() error {
		for {
			var cmd LiveCommand
			if err := wsjson.Read(ctx, conn, &cmd); err != nil {
				return err
			}

			result, err := handle(ctx, cmd)
			frame := LiveFrame{Type: "ack", Result: result}
			if err != nil {
				frame = LiveFrame{Type: "error", Error: err.Error()}
			}
			if err := write(frame); err != nil {
				return err
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, errSessionEnded) {
		logger.Info("live view closed, session ended")
		return
	}
	if err == nil || errors.Is(err, context.Canceled) {
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}

	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
	default:
		logger.Debug("live view connection closed", "error", err)
	}
}
