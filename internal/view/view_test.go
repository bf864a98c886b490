package view

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	directentity "github.com/vadim/blinka/internal/domain/direct/entity"
	"github.com/vadim/blinka/internal/domain/direct/service"
	followentity "github.com/vadim/blinka/internal/domain/follow/entity"
	notificationentity "github.com/vadim/blinka/internal/domain/notification/entity"
	"github.com/vadim/blinka/internal/realtime"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// memoryMessages is a message store that emits change events like the row triggers do
type memoryMessages struct {
	mu       sync.Mutex
	hub      *realtime.Hub
	messages []directentity.Message
	clock    time.Time
	fetches  int
	sends    int
	failSend error
	silent   bool // suppress change events on insert
	missing  map[string]bool
}

func newMemoryMessages(hub *realtime.Hub) *memoryMessages {
	return &memoryMessages{hub: hub, clock: time.Now()}
}

func (m *memoryMessages) publish(kind realtime.EventType, id string) {
	_ = m.hub.Publish(context.Background(), realtime.Event{Table: realtime.TableMessages, Type: kind, RecordID: id})
}

func (m *memoryMessages) add(sender, receiver, text, clientID string) string {
	m.mu.Lock()
	m.clock = m.clock.Add(time.Millisecond)
	msg := directentity.Message{
		ID:         uuid.NewString(),
		SenderID:   sender,
		ReceiverID: receiver,
		Text:       text,
		ClientID:   clientID,
		CreatedAt:  m.clock,
	}
	m.messages = append(m.messages, msg)
	silent := m.silent
	m.mu.Unlock()

	if !silent {
		m.publish(realtime.EventInsert, msg.ID)
	}
	return msg.ID
}

func (m *memoryMessages) CheckPeer(_ context.Context, selfID, peerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if selfID == peerID {
		return directentity.ErrInvalidRecipient
	}
	if m.missing[peerID] {
		return directentity.ErrUserNotFound
	}
	return nil
}

func (m *memoryMessages) FetchThread(_ context.Context, selfID, peerID string) ([]directentity.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	out := []directentity.Message{}
	for _, msg := range m.messages {
		if msg.InThread(selfID, peerID) {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryMessages) Send(_ context.Context, in service.SendInput) (*service.SendOutput, error) {
	m.mu.Lock()
	m.sends++
	err := m.failSend
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &service.SendOutput{MessageID: m.add(in.SenderID, in.ReceiverID, in.Text, in.ClientID)}, nil
}

func (m *memoryMessages) MarkThreadRead(_ context.Context, selfID, peerID string) (int64, error) {
	m.mu.Lock()
	var n int64
	for i := range m.messages {
		msg := &m.messages[i]
		if msg.ReceiverID == selfID && msg.SenderID == peerID && !msg.Read {
			msg.Read = true
			n++
		}
	}
	m.mu.Unlock()

	if n > 0 {
		m.publish(realtime.EventUpdate, "")
	}
	return n, nil
}

func (m *memoryMessages) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

func TestThreadLoadsAndMarksRead(t *testing.T) {
	hub := realtime.NewHub(testLogger())
	store := newMemoryMessages(hub)
	store.add("bob", "alice", "hi alice", "")

	thread, err := OpenThread(context.Background(), hub, store, testLogger(), "alice", "bob")
	if err != nil {
		t.Fatalf("OpenThread() error = %v", err)
	}
	defer thread.Close()

	snap := thread.Snapshot()
	if !snap.Loaded || len(snap.Messages) != 1 || snap.Messages[0].Text != "hi alice" {
		t.Fatalf("initial snapshot = %+v", snap)
	}

	// marking read emits an UPDATE, the refetch then shows the row as read
	waitFor(t, func() bool {
		s := thread.Snapshot()
		return len(s.Messages) == 1 && s.Messages[0].Read
	})
}

func TestOpenThreadRejectsInvalidPeer(t *testing.T) {
	hub := realtime.NewHub(testLogger())
	store := newMemoryMessages(hub)
	store.missing = map[string]bool{"ghost": true}

	tests := []struct {
		name string
		peer string
		want error
	}{
		{"self", "alice", directentity.ErrInvalidRecipient},
		{"unknown", "ghost", directentity.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thread, err := OpenThread(context.Background(), hub, store, testLogger(), "alice", tt.peer)
			if !errors.Is(err, tt.want) {
				t.Fatalf("OpenThread() error = %v, want %v", err, tt.want)
			}
			if thread != nil {
				t.Fatal("OpenThread() returned a view for an invalid peer")
			}
		})
	}

	if got := hub.Count(realtime.TableMessages); got != 0 {
		t.Fatalf("subscriptions = %d, want 0", got)
	}
	if got := store.fetchCount(); got != 0 {
		t.Fatalf("fetches = %d, want 0", got)
	}
}

func TestThreadFollowsPeerMessages(t *testing.T) {
	hub := realtime.NewHub(testLogger())
	store := newMemoryMessages(hub)

	thread, err := OpenThread(context.Background(), hub, store, testLogger(), "alice", "bob")
	if err != nil {
		t.Fatalf("OpenThread() error = %v", err)
	}
	defer thread.Close()

	store.add("carol", "alice", "other thread", "")
	store.add("bob", "alice", "first", "")
	store.add("bob", "alice", "second", "")

	waitFor(t, func() bool { return len(thread.Snapshot().Messages) == 2 })
	snap := thread.Snapshot()
	if snap.Messages[0].Text != "first" || snap.Messages[1].Text != "second" {
		t.Fatalf("messages out of order: %+v", snap.Messages)
	}
}

func TestThreadSendReconcilesPendingEntry(t *testing.T) {
	hub := realtime.NewHub(testLogger())
	store := newMemoryMessages(hub)
	store.silent = true

	thread, err := OpenThread(context.Background(), hub, store, testLogger(), "alice", "bob")
	if err != nil {
		t.Fatalf("OpenThread() error = %v", err)
	}
	defer thread.Close()

	entry, err := thread.Send(context.Background(), "  hello bob ")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if entry.ID == "" || entry.Text != "hello bob" {
		t.Fatalf("Send() = %+v", entry)
	}

	snap := thread.Snapshot()
	if len(snap.Messages) != 1 || !snap.Messages[0].Pending || snap.Messages[0].ID != entry.ID {
		t.Fatalf("snapshot before change event = %+v", snap.Messages)
	}

	store.publish(realtime.EventInsert, entry.ID)
	waitFor(t, func() bool {
		s := thread.Snapshot()
		return len(s.Messages) == 1 && !s.Messages[0].Pending
	})
	if got := thread.Snapshot().Messages[0].ClientID; got != entry.ClientID {
		t.Fatalf("reconciled client id = %q, want %q", got, entry.ClientID)
	}
}

func TestThreadSendValidatesBeforeStore(t *testing.T) {
	hub := realtime.NewHub(testLogger())
	store := newMemoryMessages(hub)

	thread, _ := OpenThread(context.Background(), hub, store, testLogger(), "alice", "bob")
	defer thread.Close()

	if _, err := thread.Send(context.Background(), "   "); !errors.Is(err, directentity.ErrEmptyMessage) {
		t.Fatalf("Send() error = %v, want ErrEmptyMessage", err)
	}
	if store.sends != 0 {
		t.Fatalf("store called %d times for empty message", store.sends)
	}
	if got := len(thread.Snapshot().Messages); got != 0 {
		t.Fatalf("entries = %d, want 0", got)
	}
}

func TestThreadFailedSendIsMarked(t *testing.T) {
	hub := realtime.NewHub(testLogger())
	store := newMemoryMessages(hub)
	store.failSend = errors.New("connection reset")

	thread, _ := OpenThread(context.Background(), hub, store, testLogger(), "alice", "bob")
	defer thread.Close()

	entry, err := thread.Send(context.Background(), "lost")
	if err == nil {
		t.Fatal("Send() error = nil, want failure")
	}
	if !entry.Failed {
		t.Fatalf("returned entry = %+v, want failed", entry)
	}

	snap := thread.Snapshot()
	if len(snap.Messages) != 1 || !snap.Messages[0].Failed || snap.Messages[0].Pending {
		t.Fatalf("snapshot = %+v", snap.Messages)
	}
	if snap.Notice == "" {
		t.Fatal("expected a notice for the failed send")
	}
	if store.sends != 1 {
		t.Fatalf("sends = %d, want exactly 1", store.sends)
	}
}

func TestThreadCloseReleasesSubscription(t *testing.T) {
	hub := realtime.NewHub(testLogger())
	store := newMemoryMessages(hub)

	thread, _ := OpenThread(context.Background(), hub, store, testLogger(), "alice", "bob")
	if got := hub.Count(realtime.TableMessages); got != 1 {
		t.Fatalf("subscriptions = %d, want 1", got)
	}

	thread.Close()
	thread.Close()

	if got := hub.Count(realtime.TableMessages); got != 0 {
		t.Fatalf("subscriptions after Close = %d, want 0", got)
	}

	before := store.fetchCount()
	store.add("bob", "alice", "after close", "")
	time.Sleep(20 * time.Millisecond)
	if got := store.fetchCount(); got != before {
		t.Fatalf("fetches after Close = %d, want %d", got, before)
	}

	for range thread.Updates() {
	}
}

func TestStaleResultIsDropped(t *testing.T) {
	l := newLive(0)

	first := l.begin()
	second := l.begin()

	if !l.commit(second, func(s *int) { *s = 2 }) {
		t.Fatal("newest result rejected")
	}
	if l.commit(first, func(s *int) { *s = 1 }) {
		t.Fatal("older result applied after a newer one")
	}
	if got := l.snapshot(); got != 2 {
		t.Fatalf("snapshot = %d, want 2", got)
	}

	third := l.begin()
	l.close()
	if l.commit(third, func(s *int) { *s = 3 }) {
		t.Fatal("result applied after close")
	}
}

func TestOverrideDropsEarlierFetch(t *testing.T) {
	l := newLive(0)

	inflight := l.begin()
	l.override(func(s *int) { *s = 1 })
	if l.commit(inflight, func(s *int) { *s = 2 }) {
		t.Fatal("fetch issued before the local change was applied")
	}
	if got := l.snapshot(); got != 1 {
		t.Fatalf("snapshot = %d, want 1", got)
	}

	if !l.commit(l.begin(), func(s *int) { *s = 3 }) {
		t.Fatal("fetch issued after the local change rejected")
	}
}

func TestUpdatesKeepLatestOnly(t *testing.T) {
	l := newLive(0)
	for i := 1; i <= 5; i++ {
		v := i
		l.patch(func(s *int) { *s = v })
	}

	select {
	case got := <-l.updates:
		if got != 5 {
			t.Fatalf("update = %d, want 5", got)
		}
	default:
		t.Fatal("no update delivered")
	}
	select {
	case got := <-l.updates:
		t.Fatalf("unexpected extra update %d", got)
	default:
	}
}

type memoryNotifications struct {
	mu       sync.Mutex
	hub      *realtime.Hub
	items    []notificationentity.Notification
	failMark error

	// when gate is set, List reads the rows, signals entered and waits for gate
	gate    chan struct{}
	entered chan struct{}
}

func (m *memoryNotifications) List(_ context.Context, recipientID string, limit int) ([]notificationentity.Notification, error) {
	m.mu.Lock()
	out := []notificationentity.Notification{}
	for _, n := range m.items {
		if n.RecipientID == recipientID && len(out) < limit {
			out = append(out, n)
		}
	}
	gate, entered := m.gate, m.entered
	m.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		<-gate
	}
	return out, nil
}

func (m *memoryNotifications) MarkRead(_ context.Context, recipientID, id string) error {
	m.mu.Lock()
	if m.failMark != nil {
		m.mu.Unlock()
		return m.failMark
	}
	for i := range m.items {
		if m.items[i].ID == id && m.items[i].RecipientID == recipientID {
			m.items[i].Read = true
		}
	}
	m.mu.Unlock()
	_ = m.hub.Publish(context.Background(), realtime.Event{Table: realtime.TableNotifications, Type: realtime.EventUpdate})
	return nil
}

func (m *memoryNotifications) MarkAllRead(_ context.Context, recipientID string) (int64, error) {
	m.mu.Lock()
	var n int64
	for i := range m.items {
		if m.items[i].RecipientID == recipientID && !m.items[i].Read {
			m.items[i].Read = true
			n++
		}
	}
	m.mu.Unlock()
	_ = m.hub.Publish(context.Background(), realtime.Event{Table: realtime.TableNotifications, Type: realtime.EventUpdate})
	return n, nil
}

func TestNotificationsMarkReadIsOptimistic(t *testing.T) {
	hub := realtime.NewHub(testLogger())
	store := &memoryNotifications{hub: hub, items: []notificationentity.Notification{
		{ID: "n1", RecipientID: "alice", Type: notificationentity.TypeLike, Actor: &notificationentity.Actor{Username: "bob"}},
		{ID: "n2", RecipientID: "alice", Type: notificationentity.TypeFollow},
	}}

	view, err := OpenNotifications(context.Background(), hub, store, testLogger(), "alice", 20)
	if err != nil {
		t.Fatalf("OpenNotifications() error = %v", err)
	}
	defer view.Close()

	snap := view.Snapshot()
	if snap.Unread != 2 || snap.Items[0].Text != "bob liked your post" || snap.Items[1].Text != "Someone started following you" {
		t.Fatalf("initial snapshot = %+v", snap)
	}

	store.failMark = errors.New("timeout")
	if err := view.MarkRead(context.Background(), "n1"); err == nil {
		t.Fatal("MarkRead() error = nil, want failure")
	}
	snap = view.Snapshot()
	if !snap.Items[0].Read || snap.Unread != 1 || snap.Notice == "" {
		t.Fatalf("optimistic snapshot = %+v", snap)
	}

	// the next fetch converges to the stored state
	if err := view.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if snap := view.Snapshot(); snap.Items[0].Read || snap.Unread != 2 {
		t.Fatalf("converged snapshot = %+v", snap)
	}

	store.failMark = nil
	if _, err := view.MarkAllRead(context.Background()); err != nil {
		t.Fatalf("MarkAllRead() error = %v", err)
	}
	waitFor(t, func() bool { return view.Snapshot().Unread == 0 })
}

func TestNotificationsMarkReadSurvivesInflightFetch(t *testing.T) {
	hub := realtime.NewHub(testLogger())
	store := &memoryNotifications{hub: hub, items: []notificationentity.Notification{
		{ID: "n1", RecipientID: "alice", Type: notificationentity.TypeFollow},
	}}

	view, err := OpenNotifications(context.Background(), hub, store, testLogger(), "alice", 20)
	if err != nil {
		t.Fatalf("OpenNotifications() error = %v", err)
	}
	defer view.Close()

	store.mu.Lock()
	store.gate = make(chan struct{})
	store.entered = make(chan struct{}, 1)
	store.failMark = errors.New("timeout") // no change event, so no later fetch
	store.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = view.Refresh(context.Background())
		close(done)
	}()
	<-store.entered

	_ = view.MarkRead(context.Background(), "n1")
	close(store.gate)
	<-done

	if snap := view.Snapshot(); !snap.Items[0].Read || snap.Unread != 0 {
		t.Fatalf("snapshot after in-flight fetch = %+v, want n1 still read", snap)
	}
}

type memoryRequests struct {
	mu       sync.Mutex
	hub      *realtime.Hub
	requests []followentity.FollowRequest
	edges    int
}

func (m *memoryRequests) Pending(_ context.Context, targetID string) ([]followentity.FollowRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []followentity.FollowRequest{}
	for _, r := range m.requests {
		if r.TargetID == targetID && r.Status == followentity.StatusPending {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryRequests) resolve(targetID, requestID string, accept bool) (*followentity.FollowRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.requests {
		r := &m.requests[i]
		if r.ID != requestID || r.TargetID != targetID {
			continue
		}
		if err := r.Resolve(accept); err != nil {
			return nil, err
		}
		if accept {
			m.edges++
		}
		cp := *r
		return &cp, nil
	}
	return nil, followentity.ErrRequestNotFound
}

func (m *memoryRequests) Accept(_ context.Context, targetID, requestID string) (*followentity.FollowRequest, error) {
	return m.resolve(targetID, requestID, true)
}

func (m *memoryRequests) Decline(_ context.Context, targetID, requestID string) (*followentity.FollowRequest, error) {
	return m.resolve(targetID, requestID, false)
}

func TestFollowRequestsResolve(t *testing.T) {
	hub := realtime.NewHub(testLogger())
	store := &memoryRequests{hub: hub, requests: []followentity.FollowRequest{
		{ID: "r1", RequesterID: "bob", TargetID: "alice", Status: followentity.StatusPending},
		{ID: "r2", RequesterID: "carol", TargetID: "alice", Status: followentity.StatusPending},
	}}

	view, err := OpenFollowRequests(context.Background(), hub, store, testLogger(), "alice")
	if err != nil {
		t.Fatalf("OpenFollowRequests() error = %v", err)
	}
	defer view.Close()

	if got := len(view.Snapshot().Requests); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}

	req, err := view.Accept(context.Background(), "r1")
	if err != nil || req.Status != followentity.StatusAccepted {
		t.Fatalf("Accept() = %+v, %v", req, err)
	}
	if _, err := view.Decline(context.Background(), "r2"); err != nil {
		t.Fatalf("Decline() error = %v", err)
	}

	if got := len(view.Snapshot().Requests); got != 0 {
		t.Fatalf("pending after resolving = %d, want 0", got)
	}
	if store.edges != 1 {
		t.Fatalf("edges = %d, want 1", store.edges)
	}

	if _, err := view.Accept(context.Background(), "r2"); !errors.Is(err, followentity.ErrRequestResolved) {
		t.Fatalf("Accept() on declined request error = %v, want ErrRequestResolved", err)
	}
}
