package session

import (
	"context"
	"sync"
)

// EventKind is the kind of session change
type EventKind string

const (
	EventSignedIn  EventKind = "signed_in"
	EventSignedOut EventKind = "signed_out"
)

// Event is emitted on every session change
type Event struct {
	Kind    EventKind
	Session *Session
}

// Provider holds the current session of one client process and notifies
// watchers when it changes. The zero value is not usable; use NewProvider.
type Provider struct {
	mu       sync.RWMutex
	current  *Session
	watchers map[chan Event]struct{}
}

// NewProvider creates a provider with no session
func NewProvider() *Provider {
	return &Provider{watchers: make(map[chan Event]struct{})}
}

// Current returns the active session, or nil when signed out
func (p *Provider) Current() *Session {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.current == nil {
		return nil
	}
	sess := *p.current
	return &sess
}

// Set replaces the active session and emits a signed_in event
func (p *Provider) Set(sess Session) {
	p.mu.Lock()
	p.current = &sess
	p.broadcast(Event{Kind: EventSignedIn, Session: &sess})
	p.mu.Unlock()
}

// Clear drops the active session and emits a signed_out event.
// Clearing an already empty provider emits nothing.
func (p *Provider) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return
	}
	p.current = nil
	p.broadcast(Event{Kind: EventSignedOut})
}

// Watch returns a channel of session changes that is closed when ctx ends.
// A watcher that falls behind keeps only the most recent change.
func (p *Provider) Watch(ctx context.Context) <-chan Event {
	ch := make(chan Event, 1)

	p.mu.Lock()
	p.watchers[ch] = struct{}{}
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		delete(p.watchers, ch)
		close(ch)
		p.mu.Unlock()
	}()

	return ch
}

// broadcast must be called with p.mu held
func (p *Provider) broadcast(ev Event) {
	for ch := range p.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- ev
	}
}
