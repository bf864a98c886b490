package realtime

import (
	"context"
	"sync"
	"sync/atomic"
)

// ChangeFunc handles one change event for a subscription
type ChangeFunc func(ctx context.Context, ev Event)

// State is the lifecycle state of a Subscription
type State int32

const (
	StateUnsubscribed State = iota
	StateSubscribing
	StateActive
)

func (s State) String() string {
	switch s {
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	default:
		return "unsubscribed"
	}
}

// Subscription is a live registration for change events on one table.
// Lifecycle: Unsubscribed -> Subscribing -> Active -> Unsubscribed (on Close).
type Subscription struct {
	hub      *Hub
	channel  string
	table    string
	filter   EventType
	onChange ChangeFunc

	events   chan Event
	wake     chan struct{}
	overflow atomic.Bool
	state    atomic.Int32

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func newSubscription(h *Hub, channel, table string, filter EventType, onChange ChangeFunc, buffer int) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscription{
		hub:      h,
		channel:  channel,
		table:    table,
		filter:   filter,
		onChange: onChange,
		events:   make(chan Event, buffer),
		wake:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.state.Store(int32(StateSubscribing))
	return s
}

// Channel returns the logical channel name
func (s *Subscription) Channel() string { return s.channel }

// Table returns the subscribed relation
func (s *Subscription) Table() string { return s.table }

// State returns the current lifecycle state
func (s *Subscription) State() State { return State(s.state.Load()) }

// Done is closed once the subscription has been released
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) start() {
	s.state.Store(int32(StateActive))
	go s.run()
}

func (s *Subscription) run() {
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			s.dispatch(ev)
		case <-s.wake:
			if s.overflow.Swap(false) {
				s.dispatch(Invalidation(s.table))
			}
		}
	}
}

func (s *Subscription) dispatch(ev Event) {
	// A closed subscription must not call back even if events are still queued
	if s.ctx.Err() != nil {
		return
	}
	s.onChange(s.ctx, ev)
}

// deliver enqueues without blocking the publisher. When the buffer is full the
// event is folded into a single pending overflow invalidation.
func (s *Subscription) deliver(ev Event) {
	if s.State() != StateActive {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.overflow.Store(true)
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// Close releases the subscription. It is safe to call more than once; only the
// first call has an effect. After Close returns no further change handler runs.
// Close must not be called from inside the subscription's own change handler.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.hub.remove(s)
		s.state.Store(int32(StateUnsubscribed))
		s.cancel()
		<-s.done
		s.hub.logger.Debug("realtime subscription released", "channel", s.channel, "table", s.table)
	})
}
