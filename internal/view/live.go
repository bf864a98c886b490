// Package view keeps server-side views of a thread, a notification list and the
// pending follow requests in sync with the database. Each view owns exactly one
// realtime subscription and re-fetches its whole state on every change event.
package view

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vadim/blinka/internal/realtime"
)

// Subscriber opens realtime subscriptions; *realtime.Hub implements it
type Subscriber interface {
	Subscribe(channel, table string, filter realtime.EventType, onChange realtime.ChangeFunc) (*realtime.Subscription, error)
}

// live holds the state shared by every view: the current snapshot, the fetch
// sequence used to drop stale results and the latest-value update channel.
type live[S any] struct {
	mu      sync.Mutex
	current S
	applied uint64
	closed  bool
	updates chan S

	seq       atomic.Uint64
	sub       *realtime.Subscription
	closeOnce sync.Once
}

func newLive[S any](initial S) *live[S] {
	return &live[S]{current: initial, updates: make(chan S, 1)}
}

// begin tags a fetch about to be issued
func (l *live[S]) begin() uint64 {
	return l.seq.Add(1)
}

// commit applies the result of fetch seq. Results of fetches issued before the
// last applied one are dropped, as is anything arriving after close.
func (l *live[S]) commit(seq uint64, apply func(*S)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || seq <= l.applied {
		return false
	}
	l.applied = seq
	apply(&l.current)
	l.offer()
	return true
}

// patch applies a local change that does not come from a fetch
func (l *live[S]) patch(apply func(*S)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}
	apply(&l.current)
	l.offer()
	return true
}

// override applies a local change like patch and also drops the results of
// every fetch issued before it, so an optimistic change is not reverted by
// data read before the change was stored.
func (l *live[S]) override(apply func(*S)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}
	l.applied = l.seq.Add(1)
	apply(&l.current)
	l.offer()
	return true
}

// offer replaces any unread update with the current snapshot. Callers hold mu,
// so there is a single producer and the send never blocks.
func (l *live[S]) offer() {
	select {
	case <-l.updates:
	default:
	}
	l.updates <- l.current
}

func (l *live[S]) snapshot() S {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// close releases the subscription and closes the update channel, once
func (l *live[S]) close() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()

		if l.sub != nil {
			l.sub.Close()
		}

		l.mu.Lock()
		close(l.updates)
		l.mu.Unlock()
	})
}

// subscribe registers refresh as the change handler for table
func (l *live[S]) subscribe(hub Subscriber, channel, table string, refresh func(context.Context)) error {
	sub, err := hub.Subscribe(channel, table, realtime.EventAny, func(ctx context.Context, _ realtime.Event) {
		refresh(ctx)
	})
	if err != nil {
		return err
	}
	l.sub = sub
	return nil
}
