package agentstream

// EventKind identifies the common event category for cross-provider bridging.
type EventKind int

const (
	// KindUnknown is the zero value. Events returning KindUnknown are skipped
	// by the generic bridge (e.g., a tool update with a non-terminal status).
	KindUnknown EventKind = iota
	KindText
	KindThinking
	KindToolStart
	KindToolEnd
	KindAgentStart
	KindAgentUpdate
	KindAgentEnd
	KindPermissionRequest
	KindUsage
	KindTurnComplete
	KindError
)

// Event is the common interface that SDK event types implement to participate
// in the generic provider bridge.
type Event interface {
	StreamEventKind() EventKind
}

// Text provides streaming text or thinking deltas.
type Text interface {
	Event
	StreamDelta() string
}

// ToolStart provides tool invocation start metadata.
type ToolStart interface {
	Event
	StreamToolName() string
	StreamToolCallID() string
	StreamToolInput() map[string]interface{}
}

// ToolDispatch is an optional extension of ToolStart for providers whose
// dispatch tool spawns a sub-agent. The correlation token links the tool
// call to the agent-start that follows; providers without an explicit
// token return "".
type ToolDispatch interface {
	ToolStart
	StreamCorrelationID() string
}

// SubagentTool is an optional extension of ToolStart for tool calls made
// by a sub-agent rather than the top-level session.
type SubagentTool interface {
	ToolStart
	StreamParentAgentID() string
}

// ToolEnd provides tool invocation completion metadata.
type ToolEnd interface {
	Event
	StreamToolName() string
	StreamToolCallID() string
	StreamToolInput() map[string]interface{}
	StreamToolResult() interface{}
	StreamToolIsError() bool
}

// ToolEndEchoed is an optional extension of ToolEnd for providers known to
// re-emit a tool's result text verbatim as a subsequent text delta.
type ToolEndEchoed interface {
	ToolEnd
	StreamEchoesResult() bool
}

// AgentStart provides sub-agent dispatch metadata. Providers name the
// background flag differently (detached, async, daemon); implementations
// normalize it to a single boolean here.
type AgentStart interface {
	Event
	StreamAgentID() string
	StreamAgentType() string
	StreamAgentTask() string
	StreamAgentIsBackground() bool
	StreamCorrelationID() string
}

// AgentUpdate provides sub-agent progress metadata.
type AgentUpdate interface {
	Event
	StreamAgentID() string
	StreamAgentStatus() string
}

// AgentEnd provides sub-agent completion metadata.
type AgentEnd interface {
	Event
	StreamAgentID() string
	StreamAgentIsSuccess() bool
	StreamDuration() int64
}

// PermissionRequest provides tool permission prompt metadata.
type PermissionRequest interface {
	Event
	StreamToolName() string
	StreamToolCallID() string
	StreamPrompt() string
}

// Usage provides token and cost counters.
type Usage interface {
	Event
	StreamInputTokens() int
	StreamOutputTokens() int
	StreamCacheReadTokens() int
	StreamCost() float64
}

// TurnComplete provides turn completion metadata.
type TurnComplete interface {
	Event
	StreamIsSuccess() bool
	StreamDuration() int64
}

// Error provides error information.
type Error interface {
	Event
	StreamErr() error
	StreamErrorContext() string
	StreamRecoverable() bool
}

// Scoped is an optional interface for events that belong to a named scope
// (e.g., a provider thread ID). When a bridge is configured with a
// non-empty scopeID, events implementing Scoped are filtered by ScopeID()
// match.
type Scoped interface {
	ScopeID() string
}
