// Package bus implements the in-process typed publish/subscribe registry
// at the center of the streaming pipeline. The bus is a dumb, synchronous
// fan-out: Publish validates the event and notifies subscribers in
// subscription order; it holds no event history and performs no batching.
package bus

import (
	"log/slog"
	"sync"
)

// Handler receives published events. A handler must not publish from
// within its own invocation: Publish is synchronous and reentrant
// publication risks unbounded recursion. This is a discipline, not an
// enforced invariant.
type Handler func(Event)

type subscription struct {
	handler Handler
	id      uint64
}

// Bus routes events to subscribers. Whatever publishes first is observed
// first by every subscriber, so ordering downstream is deterministic.
type Bus struct {
	logger    *slog.Logger
	validator *Validator
	subs      map[EventType][]*subscription
	wildcard  []*subscription
	nextID    uint64
	mu        sync.RWMutex
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report dropped events.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// New creates a bus with schemas compiled for every known event type.
// Schema generation is deterministic over the payload structs; an error
// here is a programming bug, so New panics rather than returning it.
func New(opts ...Option) *Bus {
	validator, err := NewValidator()
	if err != nil {
		panic("bus: schema generation failed: " + err.Error())
	}
	b := &Bus{
		subs:      make(map[EventType][]*subscription),
		validator: validator,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish validates the event and synchronously notifies all subscribers
// registered for its type, then all wildcard subscribers, in subscription
// order. A malformed payload from a misbehaving adapter is logged and
// dropped; the bus keeps serving subsequent events.
func (b *Bus) Publish(ev Event) {
	if err := b.validator.Validate(ev); err != nil {
		b.logger.Warn("dropping invalid event",
			"type", string(ev.Type),
			"session", ev.SessionID,
			"error", err)
		return
	}

	// Snapshot under the read lock so a handler may unsubscribe (or a
	// concurrent goroutine subscribe) without invalidating this fan-out.
	b.mu.RLock()
	typed := make([]*subscription, len(b.subs[ev.Type]))
	copy(typed, b.subs[ev.Type])
	wild := make([]*subscription, len(b.wildcard))
	copy(wild, b.wildcard)
	b.mu.RUnlock()

	for _, sub := range typed {
		sub.handler(ev)
	}
	for _, sub := range wild {
		sub.handler(ev)
	}
}

// Subscribe registers a handler for one event type. The returned function
// removes the subscription and is safe to call more than once.
func (b *Bus) Subscribe(typ EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &subscription{id: b.nextID, handler: handler}
	b.nextID++
	b.subs[typ] = append(b.subs[typ], sub)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs[typ] = removeSub(b.subs[typ], sub.id)
	}
}

// SubscribeAll registers a wildcard handler invoked for every published
// event, after the type-specific subscribers.
func (b *Bus) SubscribeAll(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &subscription{id: b.nextID, handler: handler}
	b.nextID++
	b.wildcard = append(b.wildcard, sub)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.wildcard = removeSub(b.wildcard, sub.id)
	}
}

// Reset removes all subscribers. Used at process shutdown and test
// teardown only.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[EventType][]*subscription)
	b.wildcard = nil
}

func removeSub(subs []*subscription, id uint64) []*subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}
