package bus

import "time"

// EventType discriminates between normalized event kinds. The set is
// closed: Publish rejects events whose type is not listed here.
type EventType string

const (
	EventTextDelta            EventType = "text-delta"
	EventTextComplete         EventType = "text-complete"
	EventThinkingDelta        EventType = "thinking-delta"
	EventThinkingComplete     EventType = "thinking-complete"
	EventToolStart            EventType = "tool-start"
	EventToolComplete         EventType = "tool-complete"
	EventAgentStart           EventType = "agent-start"
	EventAgentUpdate          EventType = "agent-update"
	EventAgentComplete        EventType = "agent-complete"
	EventSessionStart         EventType = "session-start"
	EventSessionIdle          EventType = "session-idle"
	EventSessionError         EventType = "session-error"
	EventWorkflowStepStart    EventType = "workflow-step-start"
	EventWorkflowStepComplete EventType = "workflow-step-complete"
	EventWorkflowTaskUpdate   EventType = "workflow-task-update"
	EventPermissionRequested  EventType = "permission-requested"
	EventUsageUpdate          EventType = "usage-update"
)

// Types returns every known event type.
func Types() []EventType {
	return []EventType{
		EventTextDelta, EventTextComplete,
		EventThinkingDelta, EventThinkingComplete,
		EventToolStart, EventToolComplete,
		EventAgentStart, EventAgentUpdate, EventAgentComplete,
		EventSessionStart, EventSessionIdle, EventSessionError,
		EventWorkflowStepStart, EventWorkflowStepComplete, EventWorkflowTaskUpdate,
		EventPermissionRequested, EventUsageUpdate,
	}
}

// Payload is the interface for typed event payloads. The payload's type
// must agree with the enclosing event's Type field; Publish enforces this.
type Payload interface {
	PayloadType() EventType
}

// Event is the unit of communication on the bus. Immutable once published:
// neither the bus nor any downstream consumer mutates a published event,
// with the single exception of the dispatcher overwriting a pending slot
// with a newer event sharing the same coalescing key.
type Event struct {
	Data      Payload
	Type      EventType
	SessionID string
	RunID     int64
	Timestamp time.Time
}

// NewEvent builds an event from a payload, stamping the type from the payload
// and the timestamp from the wall clock. The timestamp is for display and
// debugging only; ordering is queue order.
func NewEvent(sessionID string, runID int64, data Payload) Event {
	return Event{
		Type:      data.PayloadType(),
		SessionID: sessionID,
		RunID:     runID,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// TextDeltaPayload carries an incremental chunk of assistant text.
// Deltas are additive: they carry no replacement key and are never
// coalesced.
type TextDeltaPayload struct {
	Text string `json:"text"`
}

func (TextDeltaPayload) PayloadType() EventType { return EventTextDelta }

// TextCompletePayload signals the end of a text block with its full text.
type TextCompletePayload struct {
	Text string `json:"text"`
}

func (TextCompletePayload) PayloadType() EventType { return EventTextComplete }

// ThinkingDeltaPayload carries an incremental chunk of reasoning text.
type ThinkingDeltaPayload struct {
	Text string `json:"text"`
}

func (ThinkingDeltaPayload) PayloadType() EventType { return EventThinkingDelta }

// ThinkingCompletePayload signals the end of a thinking block.
type ThinkingCompletePayload struct {
	Text string `json:"text"`
}

func (ThinkingCompletePayload) PayloadType() EventType { return EventThinkingComplete }

// ToolStartPayload fires when a tool invocation begins.
//
// ProviderCorrelationID is set by adapters when the provider links this
// tool call to a sub-agent it spawns; adapters produce the token, the
// correlation service resolves it.
type ToolStartPayload struct {
	ToolInput             map[string]interface{} `json:"toolInput,omitempty"`
	ToolID                string                 `json:"toolId" jsonschema:"minLength=1"`
	ToolName              string                 `json:"toolName" jsonschema:"minLength=1"`
	ProviderCorrelationID string                 `json:"providerCorrelationId,omitempty"`
	ParentAgentID         string                 `json:"parentAgentId,omitempty"`
}

func (ToolStartPayload) PayloadType() EventType { return EventToolStart }

// ToolCompletePayload fires when a tool invocation finishes.
//
// EchoesResult marks results from providers known to re-emit the result
// text verbatim as a subsequent text delta; the pipeline arms the echo
// suppressor for such results.
type ToolCompletePayload struct {
	Result       interface{} `json:"result,omitempty"`
	ToolID       string      `json:"toolId" jsonschema:"minLength=1"`
	ToolName     string      `json:"toolName" jsonschema:"minLength=1"`
	DurationMs   int64       `json:"durationMs,omitempty"`
	IsError      bool        `json:"isError,omitempty"`
	EchoesResult bool        `json:"echoesResult,omitempty"`
}

func (ToolCompletePayload) PayloadType() EventType { return EventToolComplete }

// AgentStartPayload fires when a sub-agent is dispatched. IsBackground is
// the normalized form of whatever the provider calls its detached mode.
type AgentStartPayload struct {
	AgentID               string `json:"agentId" jsonschema:"minLength=1"`
	AgentType             string `json:"agentType,omitempty"`
	Task                  string `json:"task,omitempty"`
	ProviderCorrelationID string `json:"providerCorrelationId,omitempty"`
	IsBackground          bool   `json:"isBackground,omitempty"`
}

func (AgentStartPayload) PayloadType() EventType { return EventAgentStart }

// AgentUpdatePayload carries sub-agent progress.
type AgentUpdatePayload struct {
	AgentID string `json:"agentId" jsonschema:"minLength=1"`
	Status  string `json:"status,omitempty"`
}

func (AgentUpdatePayload) PayloadType() EventType { return EventAgentUpdate }

// AgentCompletePayload fires when a sub-agent finishes.
type AgentCompletePayload struct {
	AgentID    string `json:"agentId" jsonschema:"minLength=1"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Success    bool   `json:"success,omitempty"`
}

func (AgentCompletePayload) PayloadType() EventType { return EventAgentComplete }

// SessionStartPayload fires when a provider session becomes ready.
type SessionStartPayload struct {
	Model string   `json:"model,omitempty"`
	Tools []string `json:"tools,omitempty"`
}

func (SessionStartPayload) PayloadType() EventType { return EventSessionStart }

// SessionIdlePayload fires when a session's turn completes and the session
// is waiting for input.
type SessionIdlePayload struct {
	DurationMs int64 `json:"durationMs,omitempty"`
	Success    bool  `json:"success,omitempty"`
}

func (SessionIdlePayload) PayloadType() EventType { return EventSessionIdle }

// SessionErrorPayload surfaces a provider failure. Recoverable errors show
// as inline status; unrecoverable ones end the session's run.
type SessionErrorPayload struct {
	Message     string `json:"message" jsonschema:"minLength=1"`
	Context     string `json:"context,omitempty"`
	Recoverable bool   `json:"recoverable,omitempty"`
}

func (SessionErrorPayload) PayloadType() EventType { return EventSessionError }

// WorkflowStepStartPayload fires when a workflow step begins executing.
type WorkflowStepStartPayload struct {
	WorkflowID string `json:"workflowId" jsonschema:"minLength=1"`
	StepID     string `json:"stepId" jsonschema:"minLength=1"`
	Name       string `json:"name,omitempty"`
}

func (WorkflowStepStartPayload) PayloadType() EventType { return EventWorkflowStepStart }

// WorkflowStepCompletePayload fires when a workflow step finishes.
type WorkflowStepCompletePayload struct {
	WorkflowID string `json:"workflowId" jsonschema:"minLength=1"`
	StepID     string `json:"stepId" jsonschema:"minLength=1"`
	Success    bool   `json:"success,omitempty"`
}

func (WorkflowStepCompletePayload) PayloadType() EventType { return EventWorkflowStepComplete }

// WorkflowTask is one entry in a workflow task list.
type WorkflowTask struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}

// WorkflowTaskUpdatePayload replaces the task list for a workflow.
type WorkflowTaskUpdatePayload struct {
	WorkflowID string         `json:"workflowId" jsonschema:"minLength=1"`
	Tasks      []WorkflowTask `json:"tasks,omitempty"`
}

func (WorkflowTaskUpdatePayload) PayloadType() EventType { return EventWorkflowTaskUpdate }

// PermissionRequestedPayload fires when a provider asks for approval to
// run a tool. Resolution stays with the host application.
type PermissionRequestedPayload struct {
	ToolID   string `json:"toolId" jsonschema:"minLength=1"`
	ToolName string `json:"toolName" jsonschema:"minLength=1"`
	Prompt   string `json:"prompt,omitempty"`
}

func (PermissionRequestedPayload) PayloadType() EventType { return EventPermissionRequested }

// UsageUpdatePayload carries cumulative token and cost counters for a
// session.
type UsageUpdatePayload struct {
	InputTokens     int     `json:"inputTokens,omitempty"`
	OutputTokens    int     `json:"outputTokens,omitempty"`
	CacheReadTokens int     `json:"cacheReadTokens,omitempty"`
	CostUSD         float64 `json:"costUsd,omitempty"`
}

func (UsageUpdatePayload) PayloadType() EventType { return EventUsageUpdate }

// IsDelta reports whether the type is an additive delta event. Deltas are
// never coalesced and never sacrificed by adapter backpressure.
func (t EventType) IsDelta() bool {
	return t == EventTextDelta || t == EventThinkingDelta
}
