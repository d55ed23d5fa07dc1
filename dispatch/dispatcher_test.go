package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/bus"
)

// collect registers a consumer that copies every flushed batch, since
// batch slices are recycled after the consumer returns.
func collect(d *Dispatcher) (*[][]bus.Event, *sync.Mutex) {
	var mu sync.Mutex
	batches := &[][]bus.Event{}
	d.AddConsumer(func(batch []bus.Event) {
		mu.Lock()
		defer mu.Unlock()
		*batches = append(*batches, append([]bus.Event(nil), batch...))
	})
	return batches, &mu
}

// newIdle returns a dispatcher whose cadence window is already open, so
// the first Enqueue does not flush immediately.
func newIdle(b *bus.Bus, cadence time.Duration) *Dispatcher {
	d := New(b, WithCadence(cadence))
	d.mu.Lock()
	d.lastFlush = time.Now()
	d.mu.Unlock()
	return d
}

func TestCoalesceSameKeyKeepsLatest(t *testing.T) {
	b := bus.New()
	d := newIdle(b, time.Hour)
	defer d.Dispose()
	batches, mu := collect(d)

	b.Publish(bus.NewEvent("s1", 1, bus.ToolStartPayload{ToolID: "t1", ToolName: "Read"}))
	b.Publish(bus.NewEvent("s1", 1, bus.ToolStartPayload{ToolID: "t1", ToolName: "Read", ParentAgentID: "a1"}))
	d.FlushNow()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *batches, 1)
	batch := (*batches)[0]
	require.Len(t, batch, 1)
	assert.Equal(t, "a1", batch[0].Data.(bus.ToolStartPayload).ParentAgentID)

	stats := d.Stats()
	assert.Equal(t, uint64(2), stats.Enqueued)
	assert.Equal(t, uint64(1), stats.Coalesced)
	assert.Equal(t, uint64(1), stats.Flushes)
}

func TestCoalescePreservesSlotOrder(t *testing.T) {
	b := bus.New()
	d := newIdle(b, time.Hour)
	defer d.Dispose()
	batches, mu := collect(d)

	b.Publish(bus.NewEvent("s1", 1, bus.AgentUpdatePayload{AgentID: "a1", Status: "one"}))
	b.Publish(bus.NewEvent("s1", 1, bus.TextDeltaPayload{Text: "mid"}))
	b.Publish(bus.NewEvent("s1", 1, bus.AgentUpdatePayload{AgentID: "a1", Status: "two"}))
	d.FlushNow()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *batches, 1)
	batch := (*batches)[0]
	require.Len(t, batch, 2)
	// The coalesced update stays in its original slot, before the delta.
	assert.Equal(t, "two", batch[0].Data.(bus.AgentUpdatePayload).Status)
	assert.Equal(t, "mid", batch[1].Data.(bus.TextDeltaPayload).Text)
}

func TestDeltasNeverCoalesce(t *testing.T) {
	b := bus.New()
	d := newIdle(b, time.Hour)
	defer d.Dispose()
	batches, mu := collect(d)

	for i := 0; i < 100; i++ {
		if i%2 == 0 {
			b.Publish(bus.NewEvent("s1", 1, bus.TextDeltaPayload{Text: "t"}))
		} else {
			b.Publish(bus.NewEvent("s1", 1, bus.ThinkingDeltaPayload{Text: "k"}))
		}
	}
	d.FlushNow()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *batches, 1)
	assert.Len(t, (*batches)[0], 100)
	assert.Zero(t, d.Stats().Coalesced)
}

func TestTypePrefixedKeysKeepToolLifecycleVisible(t *testing.T) {
	b := bus.New()
	d := newIdle(b, time.Hour)
	defer d.Dispose()
	batches, mu := collect(d)

	b.Publish(bus.NewEvent("s1", 1, bus.ToolStartPayload{ToolID: "t1", ToolName: "Read"}))
	b.Publish(bus.NewEvent("s1", 1, bus.ToolCompletePayload{ToolID: "t1", ToolName: "Read"}))
	d.FlushNow()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *batches, 1)
	batch := (*batches)[0]
	require.Len(t, batch, 2)
	assert.Equal(t, bus.EventToolStart, batch[0].Type)
	assert.Equal(t, bus.EventToolComplete, batch[1].Type)
}

func TestSessionKeyOnlyCoalescesIdle(t *testing.T) {
	b := bus.New()
	d := newIdle(b, time.Hour)
	defer d.Dispose()
	batches, mu := collect(d)

	b.Publish(bus.NewEvent("s1", 1, bus.SessionStartPayload{Model: "m"}))
	b.Publish(bus.NewEvent("s1", 1, bus.SessionErrorPayload{Message: "oops", Recoverable: true}))
	b.Publish(bus.NewEvent("s1", 1, bus.SessionIdlePayload{}))
	b.Publish(bus.NewEvent("s1", 1, bus.SessionIdlePayload{Success: true}))
	d.FlushNow()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *batches, 1)
	batch := (*batches)[0]
	require.Len(t, batch, 3)
	assert.Equal(t, bus.EventSessionStart, batch[0].Type)
	assert.Equal(t, bus.EventSessionError, batch[1].Type)
	assert.True(t, batch[2].Data.(bus.SessionIdlePayload).Success)
}

func TestCadenceFlushArrivesWithoutExplicitFlush(t *testing.T) {
	b := bus.New()
	d := newIdle(b, 5*time.Millisecond)
	defer d.Dispose()

	done := make(chan []bus.Event, 1)
	d.AddConsumer(func(batch []bus.Event) {
		select {
		case done <- append([]bus.Event(nil), batch...):
		default:
		}
	})

	b.Publish(bus.NewEvent("s1", 1, bus.TextDeltaPayload{Text: "hi"}))

	select {
	case batch := <-done:
		require.Len(t, batch, 1)
		assert.Equal(t, bus.EventTextDelta, batch[0].Type)
	case <-time.After(time.Second):
		t.Fatal("timer flush never fired")
	}
}

func TestImmediateFlushWhenCadenceElapsed(t *testing.T) {
	b := bus.New()
	d := New(b, WithCadence(time.Hour))
	defer d.Dispose()
	batches, mu := collect(d)

	// lastFlush is zero, so the first event flushes synchronously.
	b.Publish(bus.NewEvent("s1", 1, bus.TextDeltaPayload{Text: "hi"}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *batches, 1)
}

func TestEmptyFlushSkipsConsumers(t *testing.T) {
	b := bus.New()
	d := newIdle(b, time.Hour)
	defer d.Dispose()
	calls := 0
	d.AddConsumer(func(batch []bus.Event) { calls++ })

	d.FlushNow()
	d.FlushNow()

	assert.Zero(t, calls)
	assert.Zero(t, d.Stats().Flushes)
}

func TestRemoveConsumer(t *testing.T) {
	b := bus.New()
	d := newIdle(b, time.Hour)
	defer d.Dispose()
	calls := 0
	remove := d.AddConsumer(func(batch []bus.Event) { calls++ })

	b.Publish(bus.NewEvent("s1", 1, bus.TextDeltaPayload{Text: "a"}))
	d.FlushNow()
	remove()
	b.Publish(bus.NewEvent("s1", 1, bus.TextDeltaPayload{Text: "b"}))
	d.FlushNow()

	assert.Equal(t, 1, calls)
}

func TestDisposeStopsIntake(t *testing.T) {
	b := bus.New()
	d := newIdle(b, time.Hour)
	batches, mu := collect(d)

	d.Dispose()
	b.Publish(bus.NewEvent("s1", 1, bus.TextDeltaPayload{Text: "a"}))
	d.FlushNow()

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, *batches)

	// Idempotent.
	d.Dispose()
}

func TestConcurrentEnqueueLosesNothing(t *testing.T) {
	b := bus.New()
	d := newIdle(b, time.Hour)
	defer d.Dispose()

	var mu sync.Mutex
	total := 0
	d.AddConsumer(func(batch []bus.Event) {
		mu.Lock()
		total += len(batch)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				d.Enqueue(bus.NewEvent("s1", 1, bus.TextDeltaPayload{Text: "x"}))
			}
		}()
	}
	wg.Wait()
	d.FlushNow()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 400, total)
}
