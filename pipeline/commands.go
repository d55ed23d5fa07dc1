package pipeline

import "github.com/parleychat/parley/bus"

// CommandKind identifies a render command.
type CommandKind int

const (
	// CmdAppendText appends a chunk to the active text block.
	CmdAppendText CommandKind = iota
	// CmdAppendThinking appends a chunk to the active thinking block.
	CmdAppendThinking
	// CmdCompleteText closes the active text block with its final text.
	CmdCompleteText
	// CmdCompleteThinking closes the active thinking block.
	CmdCompleteThinking
	// CmdOpenTool starts a tool block.
	CmdOpenTool
	// CmdCloseTool finishes a tool block.
	CmdCloseTool
	// CmdUpsertAgent creates or updates a sub-agent block.
	CmdUpsertAgent
	// CmdUpsertTasks replaces a workflow task list.
	CmdUpsertTasks
	// CmdStatus shows an inline status line.
	CmdStatus
	// CmdPermission surfaces a pending tool permission prompt.
	CmdPermission
	// CmdUsage updates session usage counters.
	CmdUsage
)

// Command is one minimal state transition for the external renderer. The
// renderer applies a flushed batch's commands in order; how it lays them
// out is its own business.
type Command struct {
	ToolInput  map[string]interface{}
	ToolResult interface{}
	Tasks      []bus.WorkflowTask
	SessionID  string
	Text       string
	ToolID     string
	ToolName   string
	AgentID    string
	AgentType  string
	AgentTask  string
	Status     string
	Usage      bus.UsageUpdatePayload
	Kind       CommandKind
	IsError    bool
	Background bool
	Subagent   bool
}
