// Package dispatch buffers bus events and delivers them to consumers in
// coalesced batches on a fixed cadence. The single-update-per-flush
// guarantee bounds render work to the cadence regardless of how fast any
// one provider emits.
package dispatch

import (
	"sync"
	"time"

	"github.com/parleychat/parley/bus"
)

// DefaultCadence aligns with a ~60 Hz render budget without being tied to
// any specific rendering framework.
const DefaultCadence = 16 * time.Millisecond

// Consumer receives one flushed batch. The slice is only valid for the
// duration of the call: the dispatcher recycles it as the next pending
// buffer after every consumer returns.
type Consumer func(batch []bus.Event)

type consumerEntry struct {
	fn Consumer
	id uint64
}

// Dispatcher accumulates events between flushes, overwriting pending
// entries that share a coalescing key so consumers see at most one event
// per key per flush window. Delta events carry no key and are all
// preserved in publish order.
type Dispatcher struct {
	lastFlush   time.Time
	index       map[string]int
	timer       *time.Timer
	unsubscribe func()
	pending     []bus.Event
	spare       []bus.Event
	consumers   []consumerEntry
	cadence     time.Duration
	nextID      uint64
	stats       Stats
	mu          sync.Mutex
	flushMu     sync.Mutex
	disposed    bool
}

// Stats counts dispatcher activity since construction.
type Stats struct {
	Enqueued  uint64
	Coalesced uint64
	Flushes   uint64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCadence overrides the flush cadence.
func WithCadence(cadence time.Duration) Option {
	return func(d *Dispatcher) {
		if cadence > 0 {
			d.cadence = cadence
		}
	}
}

// New creates a dispatcher subscribed to every event on b.
func New(b *bus.Bus, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		index:   make(map[string]int),
		pending: make([]bus.Event, 0, 64),
		spare:   make([]bus.Event, 0, 64),
		cadence: DefaultCadence,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.unsubscribe = b.SubscribeAll(d.Enqueue)
	return d
}

// Enqueue adds an event to the pending batch, coalescing against an
// earlier event with the same key. Coalescing overwrites the slot in
// place, so relative order within the batch is preserved. If more than
// one cadence has elapsed since the last flush the batch is delivered
// immediately; otherwise a single timer is armed for the remaining time.
func (d *Dispatcher) Enqueue(ev bus.Event) {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}
	d.stats.Enqueued++

	if key := coalesceKey(ev); key != "" {
		if idx, ok := d.index[key]; ok {
			d.pending[idx] = ev
			d.stats.Coalesced++
		} else {
			d.index[key] = len(d.pending)
			d.pending = append(d.pending, ev)
		}
	} else {
		d.pending = append(d.pending, ev)
	}

	elapsed := time.Since(d.lastFlush)
	if elapsed >= d.cadence {
		d.mu.Unlock()
		d.flush()
		return
	}
	if d.timer == nil {
		d.timer = time.AfterFunc(d.cadence-elapsed, d.onTimer)
	}
	d.mu.Unlock()
}

// AddConsumer registers fn to be invoked once per flush with the full
// coalesced batch. Consumers run synchronously in registration order.
// The returned function removes the consumer.
func (d *Dispatcher) AddConsumer(fn Consumer) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry := consumerEntry{id: d.nextID, fn: fn}
	d.nextID++
	d.consumers = append(d.consumers, entry)
	id := entry.id
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, c := range d.consumers {
			if c.id == id {
				d.consumers = append(d.consumers[:i:i], d.consumers[i+1:]...)
				return
			}
		}
	}
}

// FlushNow delivers any pending events immediately and resets the cadence
// window.
func (d *Dispatcher) FlushNow() {
	d.flush()
}

// Dispose cancels any pending timer and stops accepting events.
func (d *Dispatcher) Dispose() {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}
	d.disposed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	unsub := d.unsubscribe
	d.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Stats returns a snapshot of dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Dispatcher) onTimer() {
	d.flush()
}

// flush swaps the pending buffer with the spare, clears the coalescing
// index, and invokes every consumer with the swapped-out batch. A flush
// with nothing queued is skipped entirely. flushMu guarantees only one
// flush is in progress at a time, which also makes recycling the batch
// buffer safe once all consumers have returned.
func (d *Dispatcher) flush() {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.lastFlush = time.Now()
	if d.disposed || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	batch := d.pending
	d.pending = d.spare[:0]
	clear(d.index)
	d.stats.Flushes++
	consumers := make([]consumerEntry, len(d.consumers))
	copy(consumers, d.consumers)
	d.mu.Unlock()

	for _, c := range consumers {
		c.fn(batch)
	}

	d.mu.Lock()
	d.spare = batch[:0]
	d.mu.Unlock()
}

// coalesceKey derives the replacement key for an event, or "" for events
// that must all be preserved (deltas, lifecycle one-offs, errors). The
// key embeds the event type, so a tool-start and tool-complete for the
// same tool never coalesce into each other and both halves of the tool's
// lifecycle stay visible within one flush window.
func coalesceKey(ev bus.Event) string {
	switch data := ev.Data.(type) {
	case bus.ToolStartPayload:
		return "tool-start:" + data.ToolID
	case bus.ToolCompletePayload:
		return "tool-complete:" + data.ToolID
	case bus.AgentStartPayload:
		return "agent-start:" + data.AgentID
	case bus.AgentUpdatePayload:
		return "agent-update:" + data.AgentID
	case bus.AgentCompletePayload:
		return "agent-complete:" + data.AgentID
	case bus.SessionIdlePayload:
		return "session:" + ev.SessionID
	case bus.UsageUpdatePayload:
		return "usage:" + ev.SessionID
	case bus.WorkflowTaskUpdatePayload:
		return "workflow-tasks:" + data.WorkflowID
	default:
		return ""
	}
}
