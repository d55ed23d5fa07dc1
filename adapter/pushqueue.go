package adapter

import (
	"context"
	"sync"

	"github.com/parleychat/parley/bus"
)

// DefaultHighWater is the default push queue high-water mark.
const DefaultHighWater = 256

// PushQueue buffers events from an uncontrolled push-based provider (a
// native callback emitter) so a drain goroutine can publish them onto the
// bus at the pipeline's pace. When the queue exceeds its high-water mark
// because the bus path is backed up, the oldest non-delta event is
// sacrificed and a single recoverable session-error warns the consumer.
// Deltas are never dropped: they are additive, and losing one corrupts
// displayed text. The warning re-arms once the queue fully drains.
type PushQueue struct {
	bus       *bus.Bus
	session   Session
	notify    chan struct{}
	buf       []bus.Event
	highWater int
	dropped   uint64
	mu        sync.Mutex
	warned    bool
	closed    bool
}

// NewPushQueue creates a queue publishing to b for sess. A highWater of
// zero or less uses DefaultHighWater.
func NewPushQueue(b *bus.Bus, sess Session, highWater int) *PushQueue {
	if highWater <= 0 {
		highWater = DefaultHighWater
	}
	return &PushQueue{
		bus:       b,
		session:   sess,
		highWater: highWater,
		notify:    make(chan struct{}, 1),
	}
}

// Offer appends an event from the provider's callback. Never blocks.
func (q *PushQueue) Offer(ev bus.Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.buf = append(q.buf, ev)

	var warn bool
	if len(q.buf) > q.highWater {
		if q.dropOldestNonDelta() {
			q.dropped++
			if !q.warned {
				q.warned = true
				warn = true
			}
		}
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}

	if warn {
		q.bus.Publish(bus.NewEvent(q.session.ID, q.session.RunID, bus.SessionErrorPayload{
			Message:     "provider emitted events faster than they could be consumed; some were dropped",
			Context:     "push_queue_overflow",
			Recoverable: true,
		}))
	}
}

// Drain publishes queued events onto the bus until Close or cancellation.
// It yields between items so a fast provider cannot monopolize the
// scheduler. On cancellation it stops within one queued event.
func (q *PushQueue) Drain(ctx context.Context) error {
	for {
		ev, ok, closed := q.pop()
		if ok {
			q.bus.Publish(ev)
			// Re-check cancellation at every event boundary.
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			continue
		}
		if closed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.notify:
		}
	}
}

// Close stops the queue. Queued events already accepted are still drained
// before Drain returns.
func (q *PushQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Dropped returns how many events were sacrificed to backpressure.
func (q *PushQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Len returns the number of queued events.
func (q *PushQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

func (q *PushQueue) pop() (ev bus.Event, ok, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		if q.warned {
			q.warned = false
		}
		return bus.Event{}, false, q.closed
	}
	ev = q.buf[0]
	q.buf = q.buf[1:]
	return ev, true, false
}

// dropOldestNonDelta removes the oldest queued event that is not a text
// or thinking delta. Returns false when only deltas are queued, in which
// case the queue is allowed to exceed its mark.
func (q *PushQueue) dropOldestNonDelta() bool {
	for i, ev := range q.buf {
		if !ev.Type.IsDelta() {
			q.buf = append(q.buf[:i:i], q.buf[i+1:]...)
			return true
		}
	}
	return false
}
