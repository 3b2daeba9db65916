// Package eventbus is the in-process pub/sub hub for the orchestrator's
// event catalogue: goal.*, strand.*, and plan.* events
// published by cascade, scheduler, lifecycle, and hooks, delivered to
// any number of subscribers (a websocket transport, a notifier, a test
// assertion) with topic-prefix matching and non-blocking delivery. Its
// subscribe/publish shape and drop-count/threshold-warning behavior are
// grounded on internal/bus/bus.go, generalized from task/delegation/plan
// topics to this core's goal/strand/plan event names.
package eventbus

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

const defaultBufferSize = 100

// Event is one message published on the bus.
type Event struct {
	Name        string
	Payload     map[string]any
	TimestampMs int64
}

// Subscription is an active subscriber's channel plus its topic-prefix filter.
type Subscription struct {
	id     int
	prefix string
	ch     chan Event
}

// Ch returns the channel subscribers receive events on.
func (s *Subscription) Ch() <-chan Event { return s.ch }

// Bus is an in-process pub/sub hub with topic-prefix matching and
// non-blocking, drop-on-full delivery: a slow subscriber must never
// stall a publisher holding the Store lock.
type Bus struct {
	mu              sync.RWMutex
	subs            map[int]*Subscription
	nextID          int
	logger          *slog.Logger
	clock           func() int64
	droppedEvents   atomic.Int64
	lastDropWarning atomic.Int64
}

// New creates a Bus. clock defaults to a monotonic-ish wall clock if nil;
// tests can supply a deterministic one.
func New(logger *slog.Logger, clock func() int64) *Bus {
	if clock == nil {
		clock = defaultClock
	}
	return &Bus{
		subs:   make(map[int]*Subscription),
		logger: logger,
		clock:  clock,
	}
}

// Subscribe returns a subscription for events whose name has the given
// prefix ("" matches everything, "goal." matches only goal events).
func (b *Bus) Subscribe(prefix string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{id: b.nextID, prefix: prefix, ch: make(chan Event, defaultBufferSize)}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes and closes a subscription.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.ch)
	}
}

// Publish implements scheduler.EventPublisher and hooks' events
// collaborator: it fans event out to every matching subscriber without
// blocking the caller.
func (b *Bus) Publish(name string, payload map[string]any) {
	event := Event{Name: name, Payload: payload, TimestampMs: b.clock()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.prefix == "" || strings.HasPrefix(name, sub.prefix) {
			select {
			case sub.ch <- event:
			default:
				newCount := b.droppedEvents.Add(1)
				b.maybeLogDropWarning(newCount, name)
			}
		}
	}
}

// SubscriberCount reports how many subscriptions are currently active.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// DroppedEventCount reports how many events were dropped for full subscriber buffers.
func (b *Bus) DroppedEventCount() int64 {
	return b.droppedEvents.Load()
}

func dropThreshold(count int64) int64 {
	threshold := int64(1)
	for threshold*10 <= count {
		threshold *= 10
	}
	return threshold
}

func (b *Bus) maybeLogDropWarning(newCount int64, name string) {
	if b.logger == nil {
		return
	}
	threshold := dropThreshold(newCount)
	if newCount != threshold {
		return
	}
	lastWarned := b.lastDropWarning.Load()
	if threshold <= lastWarned {
		return
	}
	if b.lastDropWarning.CompareAndSwap(lastWarned, threshold) {
		b.logger.Warn("eventbus_dropped_events_reached_threshold",
			slog.Int64("count", newCount),
			slog.String("event", name),
		)
	}
}
