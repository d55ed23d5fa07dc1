// Package claudecli adapts a Claude-CLI-shaped provider, a pull-based
// sequential event stream, onto the bus. It is the reference pull
// adapter: the provider exposes one typed event channel per turn, the
// adapter bridges it to completion.
package claudecli

import (
	"context"
	"sync"

	"github.com/parleychat/parley/adapter"
	"github.com/parleychat/parley/bus"
)

// DispatchToolName is the CLI tool whose invocation spawns a sub-agent.
const DispatchToolName = "Task"

// Streamer is the seam to the actual CLI session. Prompt starts a turn
// and returns a channel of native events, closed when the turn ends.
type Streamer interface {
	Prompt(ctx context.Context, input string) (<-chan Event, error)
	Close() error
}

// Adapter translates one Streamer's native events into bus events.
type Adapter struct {
	bus      *bus.Bus
	streamer Streamer
	mu       sync.Mutex
	disposed bool
}

// New creates an adapter publishing to b.
func New(b *bus.Bus, streamer Streamer) *Adapter {
	return &Adapter{bus: b, streamer: streamer}
}

// StartStreaming consumes one turn's native stream to completion,
// publishing exactly one bus event per native event.
func (a *Adapter) StartStreaming(ctx context.Context, session adapter.Session, input string) error {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return adapter.ErrDisposed
	}
	a.mu.Unlock()

	events, err := a.streamer.Prompt(ctx, input)
	if err != nil {
		return &adapter.ProviderError{Provider: "claudecli", Context: "prompt", Cause: err}
	}

	return adapter.Bridge(ctx, a.bus, session, events, adapter.BridgeConfig{Provider: "claudecli"})
}

// Dispose releases the underlying CLI session. Safe to call repeatedly.
func (a *Adapter) Dispose() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return nil
	}
	a.disposed = true
	return a.streamer.Close()
}
