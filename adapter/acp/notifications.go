package acp

import "encoding/json"

// Notification methods pushed by the agent process.
const (
	MethodSessionUpdate = "session/update"
	MethodTurnEnded     = "session/turn_ended"
	MethodError         = "session/error"
)

// Session update kinds carried inside a session/update notification.
const (
	UpdateMessageChunk   = "agent_message_chunk"
	UpdateThoughtChunk   = "agent_thought_chunk"
	UpdateToolCall       = "tool_call"
	UpdateToolCallUpdate = "tool_call_update"
	UpdateAgentSpawn     = "agent_spawn"
	UpdateAgentStatus    = "agent_status"
	UpdateUsage          = "usage"
	UpdatePermission     = "permission_request"
)

// Notification is one JSON-RPC notification from the agent process.
type Notification struct {
	Params json.RawMessage `json:"params"`
	Method string          `json:"method"`
}

// SessionUpdateParams wraps a session/update payload.
type SessionUpdateParams struct {
	Update    json.RawMessage `json:"update"`
	SessionID string          `json:"sessionId"`
}

// SessionUpdate is the discriminated inner update.
type SessionUpdate struct {
	Kind string `json:"sessionUpdate"`

	// agent_message_chunk / agent_thought_chunk
	Content contentBlock `json:"content"`

	// tool_call / tool_call_update
	ToolCallID    string                 `json:"toolCallId"`
	Title         string                 `json:"title"`
	Status        string                 `json:"status"`
	RawInput      map[string]interface{} `json:"rawInput"`
	RawOutput     string                 `json:"rawOutput"`
	CorrelationID string                 `json:"correlationId"`

	// agent_spawn / agent_status
	AgentID   string `json:"agentId"`
	AgentType string `json:"agentType"`
	Task      string `json:"task"`
	Detached  bool   `json:"detached"`

	// usage
	InputTokens     int     `json:"inputTokens"`
	OutputTokens    int     `json:"outputTokens"`
	CacheReadTokens int     `json:"cacheReadTokens"`
	CostUSD         float64 `json:"costUsd"`

	// permission_request
	Prompt string `json:"prompt"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TurnEndedParams wraps a session/turn_ended payload.
type TurnEndedParams struct {
	SessionID  string `json:"sessionId"`
	StopReason string `json:"stopReason"`
	DurationMs int64  `json:"durationMs"`
}

// ErrorParams wraps a session/error payload.
type ErrorParams struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Context   string `json:"context"`
	Fatal     bool   `json:"fatal"`
}
