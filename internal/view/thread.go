package view

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vadim/blinka/internal/domain/direct/entity"
	"github.com/vadim/blinka/internal/domain/direct/service"
	"github.com/vadim/blinka/internal/realtime"
)

// ThreadStore is the message store a thread view reads and writes through
type ThreadStore interface {
	CheckPeer(ctx context.Context, selfID, peerID string) error
	FetchThread(ctx context.Context, selfID, peerID string) ([]entity.Message, error)
	Send(ctx context.Context, in service.SendInput) (*service.SendOutput, error)
	MarkThreadRead(ctx context.Context, selfID, peerID string) (int64, error)
}

// Entry is a message as displayed in a thread. Pending entries are local
// until a fetched row with the same client id replaces them.
type Entry struct {
	entity.Message
	Pending bool `json:"pending,omitempty"`
	Failed  bool `json:"failed,omitempty"`
}

// ThreadSnapshot is the displayed state of one conversation
type ThreadSnapshot struct {
	PeerID   string  `json:"peer_id"`
	Messages []Entry `json:"messages"`
	Notice   string  `json:"notice,omitempty"`
	Loaded   bool    `json:"loaded"`
}

// Thread is a live view of the conversation between self and one peer.
// Switching peers means closing the view and opening a new one.
type Thread struct {
	*live[ThreadSnapshot]
	self   string
	peer   string
	store  ThreadStore
	logger *slog.Logger
}

// OpenThread checks the peer, subscribes to message changes and loads the
// thread. An invalid or unknown peer is rejected before anything subscribes.
func OpenThread(ctx context.Context, hub Subscriber, store ThreadStore, logger *slog.Logger, selfID, peerID string) (*Thread, error) {
	if err := store.CheckPeer(ctx, selfID, peerID); err != nil {
		return nil, err
	}

	t := &Thread{
		live:   newLive(ThreadSnapshot{PeerID: peerID, Messages: []Entry{}}),
		self:   selfID,
		peer:   peerID,
		store:  store,
		logger: logger.With("component", "thread_view", "peer_id", peerID),
	}

	channel := fmt.Sprintf("messages:%s:%s", selfID, peerID)
	if err := t.subscribe(hub, channel, realtime.TableMessages, func(ctx context.Context) {
		_ = t.Refresh(ctx)
	}); err != nil {
		return nil, fmt.Errorf("subscribing to messages: %w", err)
	}

	_ = t.Refresh(ctx)
	return t, nil
}

// Refresh re-fetches the whole thread. When it shows unread messages from the
// peer they are marked read, which in turn produces another change event.
func (t *Thread) Refresh(ctx context.Context) error {
	seq := t.begin()
	messages, err := t.store.FetchThread(ctx, t.self, t.peer)
	if err != nil {
		if ctx.Err() == nil {
			t.logger.Error("failed to fetch thread", "error", err)
			t.commit(seq, func(s *ThreadSnapshot) { s.Notice = "Failed to load messages" })
		}
		return err
	}

	applied := t.commit(seq, func(s *ThreadSnapshot) {
		s.Messages = reconcile(messages, s.Messages)
		s.Notice = ""
		s.Loaded = true
	})
	if !applied || !t.hasUnread(messages) {
		return nil
	}

	if _, err := t.store.MarkThreadRead(ctx, t.self, t.peer); err != nil && ctx.Err() == nil {
		t.logger.Error("failed to mark thread read", "error", err)
	}
	return nil
}

// Send shows the message as pending right away and stores it. A failed send
// leaves the entry marked failed; it is not retried.
func (t *Thread) Send(ctx context.Context, text string) (*Entry, error) {
	text, err := entity.ValidateMessageText(text)
	if err != nil {
		return nil, err
	}

	entry := Entry{
		Message: entity.Message{
			SenderID:   t.self,
			ReceiverID: t.peer,
			Text:       text,
			ClientID:   uuid.NewString(),
			CreatedAt:  time.Now(),
		},
		Pending: true,
	}
	t.patch(func(s *ThreadSnapshot) {
		s.Messages = append(clone(s.Messages), entry)
	})

	out, err := t.store.Send(ctx, service.SendInput{
		SenderID:   t.self,
		ReceiverID: t.peer,
		Text:       text,
		ClientID:   entry.ClientID,
	})
	if err != nil {
		t.logger.Error("failed to send message", "error", err)
		t.updateEntry(entry.ClientID, func(e *Entry) {
			e.Pending = false
			e.Failed = true
		}, "Failed to send message")
		entry.Pending, entry.Failed = false, true
		return &entry, err
	}

	entry.ID = out.MessageID
	t.updateEntry(entry.ClientID, func(e *Entry) { e.ID = out.MessageID }, "")
	return &entry, nil
}

// Snapshot returns the current state
func (t *Thread) Snapshot() ThreadSnapshot { return t.snapshot() }

// Updates delivers the latest snapshot after every change. Only the newest
// unread snapshot is kept. The channel is closed by Close.
func (t *Thread) Updates() <-chan ThreadSnapshot { return t.updates }

// Close releases the subscription; later fetch results are discarded
func (t *Thread) Close() { t.close() }

func (t *Thread) hasUnread(messages []entity.Message) bool {
	for _, m := range messages {
		if m.SenderID == t.peer && m.ReceiverID == t.self && !m.Read {
			return true
		}
	}
	return false
}

func (t *Thread) updateEntry(clientID string, apply func(*Entry), notice string) {
	t.patch(func(s *ThreadSnapshot) {
		messages := clone(s.Messages)
		for i := range messages {
			if messages[i].ClientID == clientID && (messages[i].Pending || messages[i].Failed) {
				apply(&messages[i])
			}
		}
		s.Messages = messages
		if notice != "" {
			s.Notice = notice
		}
	})
}

// reconcile builds the displayed list from a fetch: the fetched rows in order,
// then every local entry no fetched row has confirmed yet.
func reconcile(fetched []entity.Message, previous []Entry) []Entry {
	confirmed := make(map[string]bool, len(fetched))
	out := make([]Entry, 0, len(fetched))
	for _, m := range fetched {
		if m.ClientID != "" {
			confirmed[m.ClientID] = true
		}
		confirmed[m.ID] = true
		out = append(out, Entry{Message: m})
	}

	for _, e := range previous {
		if !e.Pending && !e.Failed {
			continue
		}
		if confirmed[e.ClientID] || (e.ID != "" && confirmed[e.ID]) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func clone(entries []Entry) []Entry {
	return append(make([]Entry, 0, len(entries)+1), entries...)
}
