// Package eventbus implements a process-wide, non-blocking fan-out of
// progress/lifecycle events to subscribers. Unlike a broker that closes a
// slow client's connection, a full queue here drops the event for that
// subscriber only (see DESIGN.md).
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType names the payload discriminator for wire frames.
type EventType string

const (
	EventSessionStarted   EventType = "session_started"
	EventProgress         EventType = "progress"
	EventSessionCompleted EventType = "session_completed"
	EventSessionFailed    EventType = "session_failed"
	EventStoreWrite       EventType = "store_write"
	EventMetric           EventType = "metric"
	EventStatusUpdate     EventType = "status_update"
)

// Event is one fan-out message.
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	TS        time.Time      `json:"ts"`
	Payload   map[string]any `json:"payload,omitempty"`
}

const defaultQueueSize = 64

// subscriber is one live client's bounded inbox.
type subscriber struct {
	id       string
	queue    chan Event
	filter   map[EventType]bool
	drops    atomic.Int64
	closed   atomic.Bool
	closeMu  sync.Mutex
}

// send is a non-blocking delivery attempt; it reports whether the event
// was enqueued.
func (sub *subscriber) send(ev Event) bool {
	if sub.closed.Load() {
		return false
	}
	if len(sub.filter) > 0 && !sub.filter[ev.Type] {
		return true // filtered out is not a drop
	}
	select {
	case sub.queue <- ev:
		return true
	default:
		sub.drops.Add(1)
		return false
	}
}

func (sub *subscriber) close() {
	sub.closeMu.Lock()
	defer sub.closeMu.Unlock()
	if sub.closed.CompareAndSwap(false, true) {
		close(sub.queue)
	}
}

// Bus is the single in-process publisher serving N subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string]*subscriber)}
}

// Subscription is the handle returned to a new subscriber: a receive-only
// event channel and a cleanup function the caller must invoke.
type Subscription struct {
	Events  <-chan Event
	Cleanup func()
	id      string
	bus     *Bus
}

// DropCount reports how many events have been dropped for this
// subscriber due to a full queue, used by tests for fan-out isolation.
func (s *Subscription) DropCount() int64 {
	s.bus.mu.RLock()
	sub, ok := s.bus.subscribers[s.id]
	s.bus.mu.RUnlock()
	if !ok {
		return 0
	}
	return sub.drops.Load()
}

// Subscribe registers a new subscriber, optionally filtered to a subset
// of event types (empty means all types).
func (b *Bus) Subscribe(types ...EventType) *Subscription {
	sub := &subscriber{
		id:    uuid.NewString(),
		queue: make(chan Event, defaultQueueSize),
	}
	if len(types) > 0 {
		sub.filter = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.filter[t] = true
		}
	}

	b.mu.Lock()
	b.subscribers[sub.id] = sub
	b.mu.Unlock()

	return &Subscription{
		Events: sub.queue,
		Cleanup: func() {
			b.mu.Lock()
			delete(b.subscribers, sub.id)
			b.mu.Unlock()
			sub.close()
		},
		id:  sub.id,
		bus: b,
	}
}

// Publish performs a non-blocking send to every subscriber's queue. A
// full queue drops the event for that subscriber only; the Event Bus
// itself never suspends on publish.
func (b *Bus) Publish(ev Event) {
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		sub.send(ev)
	}
}

// SubscriberCount reports the current live subscriber count.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
