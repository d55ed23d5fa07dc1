// Package adapter defines the provider adapter contract and the pull and
// push bridges that move a provider's native event stream onto the bus.
// An adapter is the only code that understands its
// provider's event vocabulary; nothing but normalized bus events leaves
// it.
package adapter

import (
	"context"
)

// Session identifies the provider session an adapter streams for and the
// run its events are tagged with.
type Session struct {
	ID    string
	RunID int64
}

// Adapter is implemented once per agent provider.
type Adapter interface {
	// StartStreaming consumes the provider's native stream to completion,
	// translating every native event into exactly one bus event. It
	// returns nil when the provider's turn is complete, ctx.Err() on
	// cancellation, or an error on unrecoverable provider failure. On
	// cancellation the adapter stops publishing within one native-event
	// boundary.
	StartStreaming(ctx context.Context, session Session, input string) error

	// Dispose releases provider-side resources. Safe to call multiple
	// times.
	Dispose() error
}
