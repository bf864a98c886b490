package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// PostgresListener relays LISTEN/NOTIFY change payloads into a Publisher.
// It holds one dedicated connection outside the pool, so closing it releases
// both the LISTEN registration and the leader lock.
type PostgresListener struct {
	dsn       string
	channel   string
	sink      Publisher
	logger    *slog.Logger
	retry     time.Duration
	leaderKey int64
	leader    bool

	// listened is set after the first successful LISTEN; only Run touches it
	listened bool
}

// ListenerOption configures a PostgresListener
type ListenerOption func(*PostgresListener)

// WithReconnectInterval sets the delay between reconnect attempts
func WithReconnectInterval(d time.Duration) ListenerOption {
	return func(l *PostgresListener) {
		if d > 0 {
			l.retry = d
		}
	}
}

// WithLeaderLock makes the listener relay only while it holds the given
// advisory lock, so a single instance feeds a shared broker.
func WithLeaderLock(key int64) ListenerOption {
	return func(l *PostgresListener) {
		l.leader = true
		l.leaderKey = key
	}
}

// NewPostgresListener creates a listener for the given notification channel
func NewPostgresListener(dsn, channel string, sink Publisher, logger *slog.Logger, opts ...ListenerOption) *PostgresListener {
	l := &PostgresListener{
		dsn:     dsn,
		channel: channel,
		sink:    sink,
		logger:  logger.With("component", "pg_listener"),
		retry:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run listens until ctx is cancelled, reconnecting after failures
func (l *PostgresListener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			l.logger.Error("listener stopped, reconnecting", "error", err, "retry_in", l.retry)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.retry):
		}
	}
}

func (l *PostgresListener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if l.leader {
		if err := l.awaitLeadership(ctx, conn); err != nil {
			return err
		}
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listening on %s: %w", l.channel, err)
	}
	l.logger.Info("listening for table changes", "channel", l.channel)
	l.resumed(ctx)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("waiting for notification: %w", err)
		}

		ev, err := DecodePayload([]byte(n.Payload))
		if err != nil {
			l.logger.Warn("dropping malformed change payload", "error", err)
			continue
		}

		if err := l.sink.Publish(ctx, ev); err != nil {
			l.logger.Error("failed to publish change event", "table", ev.Table, "error", err)
		}
	}
}

// resumed runs after every successful LISTEN. Notifications sent while the
// listener was disconnected are gone, so after a reconnect every table is
// invalidated once and subscribers refetch.
func (l *PostgresListener) resumed(ctx context.Context) {
	if !l.listened {
		l.listened = true
		return
	}
	if err := Invalidate(ctx, l.sink); err != nil {
		l.logger.Error("failed to invalidate after reconnect", "error", err)
		return
	}
	l.logger.Info("invalidated change tables after reconnect")
}

func (l *PostgresListener) awaitLeadership(ctx context.Context, conn *pgx.Conn) error {
	for {
		var acquired bool
		if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.leaderKey).Scan(&acquired); err != nil {
			return fmt.Errorf("acquiring leader lock: %w", err)
		}
		if acquired {
			l.logger.Info("acquired realtime leader lock", "key", l.leaderKey)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retry):
		}
	}
}
