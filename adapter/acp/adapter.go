// Package acp adapts an ACP-style agent, a push-based JSON-RPC
// notification emitter, onto the bus. The emitter's callback feeds a
// bounded queue; a drain loop publishes at the pipeline's pace, so an
// uncontrolled external emitter maps cleanly into the cooperatively
// scheduled pipeline. It is the reference push adapter.
package acp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/parleychat/parley/adapter"
	"github.com/parleychat/parley/bus"
)

// Client is the seam to the agent process. OnNotification registers the
// single callback the client invokes for every pushed notification and
// returns an unregister function; Prompt submits the user turn.
type Client interface {
	OnNotification(fn func(Notification)) (unregister func())
	Prompt(ctx context.Context, sessionID, input string) error
	Close() error
}

// Adapter bridges one Client onto the bus.
type Adapter struct {
	bus       *bus.Bus
	client    Client
	highWater int
	mu        sync.Mutex
	disposed  bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithHighWater overrides the push queue high-water mark.
func WithHighWater(n int) Option {
	return func(a *Adapter) { a.highWater = n }
}

// New creates an adapter publishing to b.
func New(b *bus.Bus, client Client, opts ...Option) *Adapter {
	a := &Adapter{bus: b, client: client}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// StartStreaming submits the turn and consumes pushed notifications until
// the agent reports the turn ended, the context is cancelled, or the
// agent fails fatally.
func (a *Adapter) StartStreaming(ctx context.Context, session adapter.Session, input string) error {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return adapter.ErrDisposed
	}
	a.mu.Unlock()

	queue := adapter.NewPushQueue(a.bus, session, a.highWater)

	var fatal error
	var fatalMu sync.Mutex

	unregister := a.client.OnNotification(func(n Notification) {
		ev, terminal, err := translate(n, session)
		if ev != nil {
			queue.Offer(*ev)
		}
		if err != nil {
			fatalMu.Lock()
			fatal = err
			fatalMu.Unlock()
		}
		if terminal {
			queue.Close()
		}
	})
	defer unregister()

	if err := a.client.Prompt(ctx, session.ID, input); err != nil {
		queue.Close()
		return &adapter.ProviderError{Provider: "acp", Context: "prompt", Cause: err}
	}

	if err := queue.Drain(ctx); err != nil {
		return err
	}

	fatalMu.Lock()
	defer fatalMu.Unlock()
	return fatal
}

// Dispose shuts down the agent process connection. Safe to call
// repeatedly.
func (a *Adapter) Dispose() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return nil
	}
	a.disposed = true
	return a.client.Close()
}

// translate maps one pushed notification to at most one bus event. The
// terminal flag is true when the notification ends the turn; err is
// non-nil only for fatal agent errors.
func translate(n Notification, session adapter.Session) (*bus.Event, bool, error) {
	switch n.Method {
	case MethodSessionUpdate:
		var params SessionUpdateParams
		if err := json.Unmarshal(n.Params, &params); err != nil {
			return nil, false, nil
		}
		var update SessionUpdate
		if err := json.Unmarshal(params.Update, &update); err != nil {
			return nil, false, nil
		}
		return translateUpdate(update, session), false, nil

	case MethodTurnEnded:
		var params TurnEndedParams
		if err := json.Unmarshal(n.Params, &params); err != nil {
			return nil, true, nil
		}
		ev := bus.NewEvent(session.ID, session.RunID, bus.SessionIdlePayload{
			Success:    params.StopReason != "error",
			DurationMs: params.DurationMs,
		})
		return &ev, true, nil

	case MethodError:
		var params ErrorParams
		if err := json.Unmarshal(n.Params, &params); err != nil {
			return nil, false, nil
		}
		ev := bus.NewEvent(session.ID, session.RunID, bus.SessionErrorPayload{
			Message:     params.Message,
			Context:     params.Context,
			Recoverable: !params.Fatal,
		})
		var fatal error
		if params.Fatal {
			fatal = &adapter.ProviderError{
				Provider: "acp",
				Context:  params.Context,
				Cause:    errors.New(params.Message),
			}
		}
		return &ev, params.Fatal, fatal
	}
	return nil, false, nil
}

func translateUpdate(update SessionUpdate, session adapter.Session) *bus.Event {
	var ev bus.Event
	switch update.Kind {
	case UpdateMessageChunk:
		ev = bus.NewEvent(session.ID, session.RunID, bus.TextDeltaPayload{Text: update.Content.Text})
	case UpdateThoughtChunk:
		ev = bus.NewEvent(session.ID, session.RunID, bus.ThinkingDeltaPayload{Text: update.Content.Text})
	case UpdateToolCall:
		ev = bus.NewEvent(session.ID, session.RunID, bus.ToolStartPayload{
			ToolID:                update.ToolCallID,
			ToolName:              update.Title,
			ToolInput:             update.RawInput,
			ProviderCorrelationID: update.CorrelationID,
		})
	case UpdateToolCallUpdate:
		// Non-terminal statuses stay internal to the agent; only a
		// finished call becomes a bus event.
		if update.Status != "completed" && update.Status != "failed" {
			return nil
		}
		ev = bus.NewEvent(session.ID, session.RunID, bus.ToolCompletePayload{
			ToolID:   update.ToolCallID,
			ToolName: update.Title,
			Result:   update.RawOutput,
			IsError:  update.Status == "failed",
		})
	case UpdateAgentSpawn:
		// The protocol calls its background mode "detached"; normalize
		// to the single IsBackground boolean.
		ev = bus.NewEvent(session.ID, session.RunID, bus.AgentStartPayload{
			AgentID:               update.AgentID,
			AgentType:             update.AgentType,
			Task:                  update.Task,
			IsBackground:          update.Detached,
			ProviderCorrelationID: update.CorrelationID,
		})
	case UpdateAgentStatus:
		if update.Status == "completed" || update.Status == "failed" {
			ev = bus.NewEvent(session.ID, session.RunID, bus.AgentCompletePayload{
				AgentID: update.AgentID,
				Success: update.Status == "completed",
			})
		} else {
			ev = bus.NewEvent(session.ID, session.RunID, bus.AgentUpdatePayload{
				AgentID: update.AgentID,
				Status:  update.Status,
			})
		}
	case UpdateUsage:
		ev = bus.NewEvent(session.ID, session.RunID, bus.UsageUpdatePayload{
			InputTokens:     update.InputTokens,
			OutputTokens:    update.OutputTokens,
			CacheReadTokens: update.CacheReadTokens,
			CostUSD:         update.CostUSD,
		})
	case UpdatePermission:
		ev = bus.NewEvent(session.ID, session.RunID, bus.PermissionRequestedPayload{
			ToolID:   update.ToolCallID,
			ToolName: update.Title,
			Prompt:   update.Prompt,
		})
	default:
		return nil
	}
	return &ev
}
