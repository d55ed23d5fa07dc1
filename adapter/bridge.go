package adapter

import (
	"context"

	"github.com/parleychat/parley/agentstream"
	"github.com/parleychat/parley/bus"
)

// BridgeConfig tunes a bridge loop.
type BridgeConfig struct {
	// ScopeID filters events implementing agentstream.Scoped to one
	// provider scope (e.g., a thread ID) on multiplexed channels.
	ScopeID string

	// Provider names the adapter in errors.
	Provider string
}

// Bridge reads native SDK events from a typed channel and publishes their
// normalized form onto the bus until the channel closes, the context is
// cancelled, or the provider fails unrecoverably. Events that implement
// none of the agentstream interfaces are silently skipped.
//
// This is the pull half of the adapter framework: pull-based providers
// expose their stream as a channel and need nothing else. Push-based
// providers feed a PushQueue instead and drain it through Translate.
func Bridge[E any](ctx context.Context, b *bus.Bus, sess Session, events <-chan E, cfg BridgeConfig) error {
	if events == nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}

			sev, ok := any(ev).(agentstream.Event)
			if !ok {
				continue
			}
			if cfg.ScopeID != "" {
				if scoped, ok := any(ev).(agentstream.Scoped); ok {
					if id := scoped.ScopeID(); id != "" && id != cfg.ScopeID {
						continue
					}
				}
			}

			out, ok := Translate(sev, sess)
			if !ok {
				continue
			}
			b.Publish(out)

			if sev.StreamEventKind() == agentstream.KindError {
				ee := sev.(agentstream.Error)
				if !ee.StreamRecoverable() {
					return &ProviderError{
						Provider: cfg.Provider,
						Context:  ee.StreamErrorContext(),
						Cause:    ee.StreamErr(),
					}
				}
			}
		}
	}
}

// Translate maps one native event onto its normalized bus form. Events of
// kind KindUnknown return (zero, false) and are skipped by callers.
func Translate(sev agentstream.Event, sess Session) (bus.Event, bool) {
	switch sev.StreamEventKind() {
	case agentstream.KindText:
		te := sev.(agentstream.Text)
		return bus.NewEvent(sess.ID, sess.RunID, bus.TextDeltaPayload{Text: te.StreamDelta()}), true

	case agentstream.KindThinking:
		te := sev.(agentstream.Text)
		return bus.NewEvent(sess.ID, sess.RunID, bus.ThinkingDeltaPayload{Text: te.StreamDelta()}), true

	case agentstream.KindToolStart:
		ts := sev.(agentstream.ToolStart)
		payload := bus.ToolStartPayload{
			ToolID:    ts.StreamToolCallID(),
			ToolName:  ts.StreamToolName(),
			ToolInput: ts.StreamToolInput(),
		}
		if td, ok := sev.(agentstream.ToolDispatch); ok {
			payload.ProviderCorrelationID = td.StreamCorrelationID()
		}
		if st, ok := sev.(agentstream.SubagentTool); ok {
			payload.ParentAgentID = st.StreamParentAgentID()
		}
		return bus.NewEvent(sess.ID, sess.RunID, payload), true

	case agentstream.KindToolEnd:
		te := sev.(agentstream.ToolEnd)
		payload := bus.ToolCompletePayload{
			ToolID:   te.StreamToolCallID(),
			ToolName: te.StreamToolName(),
			Result:   te.StreamToolResult(),
			IsError:  te.StreamToolIsError(),
		}
		if ee, ok := sev.(agentstream.ToolEndEchoed); ok {
			payload.EchoesResult = ee.StreamEchoesResult()
		}
		return bus.NewEvent(sess.ID, sess.RunID, payload), true

	case agentstream.KindAgentStart:
		as := sev.(agentstream.AgentStart)
		return bus.NewEvent(sess.ID, sess.RunID, bus.AgentStartPayload{
			AgentID:               as.StreamAgentID(),
			AgentType:             as.StreamAgentType(),
			Task:                  as.StreamAgentTask(),
			IsBackground:          as.StreamAgentIsBackground(),
			ProviderCorrelationID: as.StreamCorrelationID(),
		}), true

	case agentstream.KindAgentUpdate:
		au := sev.(agentstream.AgentUpdate)
		return bus.NewEvent(sess.ID, sess.RunID, bus.AgentUpdatePayload{
			AgentID: au.StreamAgentID(),
			Status:  au.StreamAgentStatus(),
		}), true

	case agentstream.KindAgentEnd:
		ae := sev.(agentstream.AgentEnd)
		return bus.NewEvent(sess.ID, sess.RunID, bus.AgentCompletePayload{
			AgentID:    ae.StreamAgentID(),
			Success:    ae.StreamAgentIsSuccess(),
			DurationMs: ae.StreamDuration(),
		}), true

	case agentstream.KindPermissionRequest:
		pr := sev.(agentstream.PermissionRequest)
		return bus.NewEvent(sess.ID, sess.RunID, bus.PermissionRequestedPayload{
			ToolID:   pr.StreamToolCallID(),
			ToolName: pr.StreamToolName(),
			Prompt:   pr.StreamPrompt(),
		}), true

	case agentstream.KindUsage:
		u := sev.(agentstream.Usage)
		return bus.NewEvent(sess.ID, sess.RunID, bus.UsageUpdatePayload{
			InputTokens:     u.StreamInputTokens(),
			OutputTokens:    u.StreamOutputTokens(),
			CacheReadTokens: u.StreamCacheReadTokens(),
			CostUSD:         u.StreamCost(),
		}), true

	case agentstream.KindTurnComplete:
		tc := sev.(agentstream.TurnComplete)
		return bus.NewEvent(sess.ID, sess.RunID, bus.SessionIdlePayload{
			Success:    tc.StreamIsSuccess(),
			DurationMs: tc.StreamDuration(),
		}), true

	case agentstream.KindError:
		ee := sev.(agentstream.Error)
		msg := "provider error"
		if ee.StreamErr() != nil {
			msg = ee.StreamErr().Error()
		}
		return bus.NewEvent(sess.ID, sess.RunID, bus.SessionErrorPayload{
			Message:     msg,
			Context:     ee.StreamErrorContext(),
			Recoverable: ee.StreamRecoverable(),
		}), true

	default:
		return bus.Event{}, false
	}
}
