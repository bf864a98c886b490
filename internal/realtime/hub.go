package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

const defaultSubscriberBuffer = 64

// Hub fans change events out to the subscriptions registered for each table
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
	buffer int
	logger *slog.Logger
}

// HubOption configures a Hub
type HubOption func(*Hub)

// WithSubscriberBuffer sets the per-subscription event buffer
func WithSubscriberBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// NewHub creates an empty hub
func NewHub(logger *slog.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: defaultSubscriberBuffer,
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe opens a subscription named channel to change events on table.
// onChange runs once per delivered event on the subscription's own goroutine,
// so calls never overlap for one subscription. The caller owns the returned
// subscription and must Close it exactly when the dependent view goes away.
//
// Delivery starts only once the subscription is active, so events published
// while Subscribe is still running are not delivered. Callers load their
// state after Subscribe returns.
func (h *Hub) Subscribe(channel, table string, filter EventType, onChange ChangeFunc) (*Subscription, error) {
	if table == "" {
		return nil, fmt.Errorf("subscribing %q: table is required", channel)
	}
	if onChange == nil {
		return nil, fmt.Errorf("subscribing %q: change handler is required", channel)
	}
	if filter == "" {
		filter = EventAny
	}

	sub := newSubscription(h, channel, table, filter, onChange, h.buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	set, ok := h.subs[table]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[table] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	sub.start()

	h.logger.Debug("realtime subscription active", "channel", channel, "table", table, "filter", filter)
	return sub, nil
}

// Publish delivers ev to every matching subscription without blocking
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrHubClosed
	}

	for sub := range h.subs[ev.Table] {
		if ev.Overflow || sub.filter.Matches(ev.Type) {
			sub.deliver(ev)
		}
	}
	return nil
}

// Count returns the number of live subscriptions on table
func (h *Hub) Count(table string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[table])
}

// Close tears down every remaining subscription and rejects new ones
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var remaining []*Subscription
	for _, set := range h.subs {
		for sub := range set {
			remaining = append(remaining, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range remaining {
		sub.Close()
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[sub.table]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.table)
	}
}
