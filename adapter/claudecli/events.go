package claudecli

import "github.com/parleychat/parley/agentstream"

// EventType discriminates between native event kinds.
type EventType int

const (
	// EventTypeText fires for streaming text chunks.
	EventTypeText EventType = iota
	// EventTypeThinking fires for thinking chunks.
	EventTypeThinking
	// EventTypeToolStart fires when a tool begins execution.
	EventTypeToolStart
	// EventTypeToolComplete fires when a tool finishes and its result is
	// available.
	EventTypeToolComplete
	// EventTypeSubagentStart fires when the CLI dispatches a sub-agent
	// via its task tool.
	EventTypeSubagentStart
	// EventTypeSubagentComplete fires when a dispatched sub-agent
	// finishes.
	EventTypeSubagentComplete
	// EventTypePermissionRequest fires when the CLI asks for approval to
	// run a tool.
	EventTypePermissionRequest
	// EventTypeUsage fires with cumulative token counters.
	EventTypeUsage
	// EventTypeTurnComplete fires when a turn finishes.
	EventTypeTurnComplete
	// EventTypeError fires on session errors.
	EventTypeError
)

// Event is the interface for all native CLI events.
type Event interface {
	Type() EventType
}

// TextEvent contains streaming text chunks.
type TextEvent struct {
	Text string
}

// Type returns the event type.
func (e TextEvent) Type() EventType { return EventTypeText }

func (e TextEvent) StreamEventKind() agentstream.EventKind { return agentstream.KindText }
func (e TextEvent) StreamDelta() string                    { return e.Text }

// ThinkingEvent contains thinking chunks.
type ThinkingEvent struct {
	Thinking string
}

// Type returns the event type.
func (e ThinkingEvent) Type() EventType { return EventTypeThinking }

func (e ThinkingEvent) StreamEventKind() agentstream.EventKind { return agentstream.KindThinking }
func (e ThinkingEvent) StreamDelta() string                    { return e.Thinking }

// ToolStartEvent fires when a tool begins execution. ParentAgentID is set
// when the tool was invoked by a dispatched sub-agent rather than the
// top-level session.
type ToolStartEvent struct {
	Input         map[string]interface{}
	ID            string
	Name          string
	ParentAgentID string
}

// Type returns the event type.
func (e ToolStartEvent) Type() EventType { return EventTypeToolStart }

func (e ToolStartEvent) StreamEventKind() agentstream.EventKind  { return agentstream.KindToolStart }
func (e ToolStartEvent) StreamToolName() string                  { return e.Name }
func (e ToolStartEvent) StreamToolCallID() string                { return e.ID }
func (e ToolStartEvent) StreamToolInput() map[string]interface{} { return e.Input }
func (e ToolStartEvent) StreamParentAgentID() string             { return e.ParentAgentID }

// StreamCorrelationID links a dispatch tool call to the sub-agent it
// spawns. The CLI correlates them by tool use ID, so the ID doubles as
// the token for dispatch tools and is empty for everything else.
func (e ToolStartEvent) StreamCorrelationID() string {
	if e.Name == DispatchToolName {
		return e.ID
	}
	return ""
}

// ToolCompleteEvent fires when a tool finishes. Echoed marks results the
// CLI is known to restate verbatim in the following text stream.
type ToolCompleteEvent struct {
	Result     interface{}
	ID         string
	Name       string
	DurationMs int64
	IsError    bool
	Echoed     bool
}

// Type returns the event type.
func (e ToolCompleteEvent) Type() EventType { return EventTypeToolComplete }

func (e ToolCompleteEvent) StreamEventKind() agentstream.EventKind  { return agentstream.KindToolEnd }
func (e ToolCompleteEvent) StreamToolName() string                  { return e.Name }
func (e ToolCompleteEvent) StreamToolCallID() string                { return e.ID }
func (e ToolCompleteEvent) StreamToolInput() map[string]interface{} { return nil }
func (e ToolCompleteEvent) StreamToolResult() interface{}           { return e.Result }
func (e ToolCompleteEvent) StreamToolIsError() bool                 { return e.IsError }
func (e ToolCompleteEvent) StreamEchoesResult() bool                { return e.Echoed }

// SubagentStartEvent fires when the CLI dispatches a sub-agent. The CLI
// calls its detached mode "run_in_background"; RunInBackground is that
// flag verbatim.
type SubagentStartEvent struct {
	AgentID         string
	AgentType       string
	Description     string
	ParentToolUseID string
	RunInBackground bool
}

// Type returns the event type.
func (e SubagentStartEvent) Type() EventType { return EventTypeSubagentStart }

func (e SubagentStartEvent) StreamEventKind() agentstream.EventKind { return agentstream.KindAgentStart }
func (e SubagentStartEvent) StreamAgentID() string                  { return e.AgentID }
func (e SubagentStartEvent) StreamAgentType() string                { return e.AgentType }
func (e SubagentStartEvent) StreamAgentTask() string                { return e.Description }
func (e SubagentStartEvent) StreamAgentIsBackground() bool          { return e.RunInBackground }
func (e SubagentStartEvent) StreamCorrelationID() string            { return e.ParentToolUseID }

// SubagentCompleteEvent fires when a dispatched sub-agent finishes.
type SubagentCompleteEvent struct {
	AgentID    string
	DurationMs int64
	Success    bool
}

// Type returns the event type.
func (e SubagentCompleteEvent) Type() EventType { return EventTypeSubagentComplete }

func (e SubagentCompleteEvent) StreamEventKind() agentstream.EventKind {
	return agentstream.KindAgentEnd
}
func (e SubagentCompleteEvent) StreamAgentID() string      { return e.AgentID }
func (e SubagentCompleteEvent) StreamAgentIsSuccess() bool { return e.Success }
func (e SubagentCompleteEvent) StreamDuration() int64      { return e.DurationMs }

// PermissionRequestEvent fires when the CLI asks for tool approval.
type PermissionRequestEvent struct {
	ToolUseID string
	ToolName  string
	Prompt    string
}

// Type returns the event type.
func (e PermissionRequestEvent) Type() EventType { return EventTypePermissionRequest }

func (e PermissionRequestEvent) StreamEventKind() agentstream.EventKind {
	return agentstream.KindPermissionRequest
}
func (e PermissionRequestEvent) StreamToolName() string   { return e.ToolName }
func (e PermissionRequestEvent) StreamToolCallID() string { return e.ToolUseID }
func (e PermissionRequestEvent) StreamPrompt() string     { return e.Prompt }

// UsageEvent carries cumulative token counters for the session.
type UsageEvent struct {
	InputTokens     int
	OutputTokens    int
	CacheReadTokens int
	CostUSD         float64
}

// Type returns the event type.
func (e UsageEvent) Type() EventType { return EventTypeUsage }

func (e UsageEvent) StreamEventKind() agentstream.EventKind { return agentstream.KindUsage }
func (e UsageEvent) StreamInputTokens() int                 { return e.InputTokens }
func (e UsageEvent) StreamOutputTokens() int                { return e.OutputTokens }
func (e UsageEvent) StreamCacheReadTokens() int             { return e.CacheReadTokens }
func (e UsageEvent) StreamCost() float64                    { return e.CostUSD }

// TurnCompleteEvent fires when a turn finishes.
type TurnCompleteEvent struct {
	DurationMs int64
	Success    bool
}

// Type returns the event type.
func (e TurnCompleteEvent) Type() EventType { return EventTypeTurnComplete }

func (e TurnCompleteEvent) StreamEventKind() agentstream.EventKind {
	return agentstream.KindTurnComplete
}
func (e TurnCompleteEvent) StreamIsSuccess() bool { return e.Success }
func (e TurnCompleteEvent) StreamDuration() int64 { return e.DurationMs }

// ErrorEvent contains session errors.
type ErrorEvent struct {
	Error       error
	Context     string
	Recoverable bool
}

// Type returns the event type.
func (e ErrorEvent) Type() EventType { return EventTypeError }

func (e ErrorEvent) StreamEventKind() agentstream.EventKind { return agentstream.KindError }
func (e ErrorEvent) StreamErr() error                       { return e.Error }
func (e ErrorEvent) StreamErrorContext() string             { return e.Context }
func (e ErrorEvent) StreamRecoverable() bool                { return e.Recoverable }
