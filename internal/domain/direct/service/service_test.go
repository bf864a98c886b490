package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vadim/blinka/internal/domain/direct/entity"
)

type memoryStore struct {
	mu       sync.Mutex
	messages []entity.Message
	inserts  int
	clock    time.Time
}

func (m *memoryStore) Insert(_ context.Context, msg *entity.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	m.clock = m.clock.Add(time.Millisecond)
	stored := *msg
	stored.ID = uuid.NewString()
	stored.CreatedAt = m.clock
	m.messages = append(m.messages, stored)
	return stored.ID, nil
}

func (m *memoryStore) GetThread(_ context.Context, a, b string) ([]entity.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.Message
	for _, msg := range m.messages {
		if msg.InThread(a, b) {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryStore) MarkRead(_ context.Context, receiverID, senderID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.messages {
		msg := &m.messages[i]
		if msg.ReceiverID == receiverID && msg.SenderID == senderID && !msg.Read {
			msg.Read = true
			n++
		}
	}
	return n, nil
}

type memoryPeers struct {
	known     map[string]bool
	following map[string][]entity.Peer
}

func (p *memoryPeers) Following(_ context.Context, selfID string) ([]entity.Peer, error) {
	return p.following[selfID], nil
}

func (p *memoryPeers) Exists(_ context.Context, id string) (bool, error) {
	return p.known[id], nil
}

type failingStore struct{ memoryStore }

func (*failingStore) Insert(context.Context, *entity.Message) (string, error) {
	return "", errors.New("connection reset")
}

func setup(t *testing.T) (*Service, *memoryStore, string, string) {
	t.Helper()
	alice, bob := uuid.NewString(), uuid.NewString()
	store := &memoryStore{clock: time.Now()}
	peers := &memoryPeers{
		known: map[string]bool{alice: true, bob: true},
		following: map[string][]entity.Peer{
			alice: {{ID: bob, Username: "bob"}},
		},
	}
	return New(store, peers), store, alice, bob
}

func TestSendAndFetchThread(t *testing.T) {
	svc, _, alice, bob := setup(t)
	ctx := context.Background()

	out, err := svc.Send(ctx, SendInput{SenderID: alice, ReceiverID: bob, Text: "  hello "})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if out.MessageID == "" {
		t.Fatal("Send() returned empty id")
	}

	for _, pair := range [][2]string{{alice, bob}, {bob, alice}} {
		thread, err := svc.FetchThread(ctx, pair[0], pair[1])
		if err != nil {
			t.Fatalf("FetchThread() error = %v", err)
		}
		if len(thread) != 1 {
			t.Fatalf("thread len = %d, want 1", len(thread))
		}
		msg := thread[0]
		if msg.Text != "hello" || msg.SenderID != alice || msg.ReceiverID != bob || msg.Read {
			t.Fatalf("thread[0] = %+v", msg)
		}
	}
}

func TestSendRejectsEmptyTextWithoutBackendCall(t *testing.T) {
	svc, store, alice, bob := setup(t)

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := svc.Send(context.Background(), SendInput{SenderID: alice, ReceiverID: bob, Text: text}); !errors.Is(err, entity.ErrEmptyMessage) {
			t.Fatalf("Send(%q) error = %v, want ErrEmptyMessage", text, err)
		}
	}
	if store.inserts != 0 {
		t.Fatalf("inserts = %d, want 0", store.inserts)
	}
}

func TestSendRecipientChecks(t *testing.T) {
	svc, _, alice, _ := setup(t)
	ctx := context.Background()

	if _, err := svc.Send(ctx, SendInput{SenderID: alice, ReceiverID: alice, Text: "me"}); !errors.Is(err, entity.ErrInvalidRecipient) {
		t.Fatalf("self Send() error = %v, want ErrInvalidRecipient", err)
	}
	if _, err := svc.Send(ctx, SendInput{SenderID: alice, ReceiverID: uuid.NewString(), Text: "hi"}); !errors.Is(err, entity.ErrUserNotFound) {
		t.Fatalf("unknown Send() error = %v, want ErrUserNotFound", err)
	}
	if _, err := svc.Send(ctx, SendInput{SenderID: alice, ReceiverID: "not-a-uuid", Text: "hi"}); !errors.Is(err, entity.ErrUserNotFound) {
		t.Fatalf("malformed Send() error = %v, want ErrUserNotFound", err)
	}
}

func TestCheckPeer(t *testing.T) {
	svc, _, alice, bob := setup(t)
	ctx := context.Background()

	tests := []struct {
		name string
		peer string
		want error
	}{
		{"known peer", bob, nil},
		{"self", alice, entity.ErrInvalidRecipient},
		{"unknown", uuid.NewString(), entity.ErrUserNotFound},
		{"malformed", "not-a-uuid", entity.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.CheckPeer(ctx, alice, tt.peer); !errors.Is(err, tt.want) {
				t.Fatalf("CheckPeer() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSendFailurePropagates(t *testing.T) {
	alice, bob := uuid.NewString(), uuid.NewString()
	svc := New(&failingStore{}, &memoryPeers{known: map[string]bool{bob: true}})

	_, err := svc.Send(context.Background(), SendInput{SenderID: alice, ReceiverID: bob, Text: "x"})
	if err == nil {
		t.Fatal("expected error from failing store")
	}
}

func TestThreadContainsOnlyThePair(t *testing.T) {
	svc, store, alice, bob := setup(t)
	carol := uuid.NewString()
	store.messages = append(store.messages,
		entity.Message{ID: "x", SenderID: alice, ReceiverID: carol, Text: "other", CreatedAt: time.Now()},
		entity.Message{ID: "y", SenderID: carol, ReceiverID: bob, Text: "other", CreatedAt: time.Now()},
	)
	ctx := context.Background()
	svc.Send(ctx, SendInput{SenderID: alice, ReceiverID: bob, Text: "one"})
	svc.Send(ctx, SendInput{SenderID: bob, ReceiverID: alice, Text: "two"})

	thread, err := svc.FetchThread(ctx, alice, bob)
	if err != nil {
		t.Fatalf("FetchThread() error = %v", err)
	}
	if len(thread) != 2 {
		t.Fatalf("thread len = %d, want 2", len(thread))
	}
	for i, msg := range thread {
		if !msg.InThread(alice, bob) {
			t.Fatalf("thread[%d] does not belong to the pair: %+v", i, msg)
		}
		if i > 0 && thread[i-1].CreatedAt.After(msg.CreatedAt) {
			t.Fatal("thread is not ascending by created_at")
		}
	}
}

func TestMarkThreadReadIsIdempotent(t *testing.T) {
	svc, store, alice, bob := setup(t)
	ctx := context.Background()

	svc.Send(ctx, SendInput{SenderID: bob, ReceiverID: alice, Text: "1"})
	svc.Send(ctx, SendInput{SenderID: bob, ReceiverID: alice, Text: "2"})
	svc.Send(ctx, SendInput{SenderID: alice, ReceiverID: bob, Text: "3"})

	n, err := svc.MarkThreadRead(ctx, alice, bob)
	if err != nil {
		t.Fatalf("MarkThreadRead() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("first MarkThreadRead() = %d, want 2", n)
	}

	n, _ = svc.MarkThreadRead(ctx, alice, bob)
	if n != 0 {
		t.Fatalf("second MarkThreadRead() = %d, want 0", n)
	}

	// the message alice sent stays unread for bob
	for _, msg := range store.messages {
		if msg.SenderID == alice && msg.Read {
			t.Fatal("alice's own message must not be marked read")
		}
	}
}

func TestPeersEmptyIsNotAnError(t *testing.T) {
	svc, _, alice, bob := setup(t)

	peers, err := svc.Peers(context.Background(), bob)
	if err != nil {
		t.Fatalf("Peers() error = %v", err)
	}
	if peers == nil || len(peers) != 0 {
		t.Fatalf("Peers() = %#v, want empty slice", peers)
	}

	peers, _ = svc.Peers(context.Background(), alice)
	if len(peers) != 1 || peers[0].ID != bob {
		t.Fatalf("Peers(alice) = %+v", peers)
	}
}
