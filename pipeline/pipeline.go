// Package pipeline assembles the full event path (bus, batch dispatcher,
// correlation service, echo suppressor) and translates enriched batches
// into ordered render commands for the external
// renderer. Consumers receive at most one update per flush window and
// never an empty one.
package pipeline

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parleychat/parley/bus"
	"github.com/parleychat/parley/correlate"
	"github.com/parleychat/parley/dispatch"
	"github.com/parleychat/parley/echosuppress"
)

type handlerEntry struct {
	fn func([]Command)
	id uint64
}

// Pipeline owns one complete event path. Independent pipelines share
// nothing, so tests and embedded uses cannot interfere.
type Pipeline struct {
	bus        *bus.Bus
	dispatcher *dispatch.Dispatcher
	correlator *correlate.Correlator
	suppressor *echosuppress.Suppressor
	logger     *slog.Logger

	removeConsumer func()

	mu       sync.Mutex
	handlers []handlerEntry
	nextID   uint64

	runMu     sync.Mutex
	nextRunID int64

	statsMu   sync.Mutex
	unowned   uint64
	filtered  uint64
	delivered uint64
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Dispatcher       dispatch.Stats
	UnownedDropped   uint64
	EchoesSuppressed uint64
	DeltasFiltered   uint64
	BatchesDelivered uint64
}

type options struct {
	logger        *slog.Logger
	dispatchTools []string
	cadence       time.Duration
}

// Option configures a Pipeline.
type Option func(*options)

// WithCadence overrides the dispatcher flush cadence.
func WithCadence(cadence time.Duration) Option {
	return func(o *options) { o.cadence = cadence }
}

// WithLogger sets the logger shared by the bus and pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDispatchTools names provider tools that spawn sub-agents.
func WithDispatchTools(names ...string) Option {
	return func(o *options) { o.dispatchTools = names }
}

// New assembles a pipeline. The returned pipeline's Bus is the single
// publication point for adapters and the workflow engine.
func New(opts ...Option) *Pipeline {
	o := options{
		cadence: dispatch.DefaultCadence,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	corrOpts := []correlate.Option{}
	if len(o.dispatchTools) > 0 {
		corrOpts = append(corrOpts, correlate.WithDispatchTools(o.dispatchTools...))
	}

	p := &Pipeline{
		bus:        bus.New(bus.WithLogger(o.logger)),
		correlator: correlate.New(corrOpts...),
		suppressor: &echosuppress.Suppressor{},
		logger:     o.logger,
	}
	p.dispatcher = dispatch.New(p.bus, dispatch.WithCadence(o.cadence))
	p.removeConsumer = p.dispatcher.AddConsumer(p.consume)
	return p
}

// Bus returns the publication point for producers.
func (p *Pipeline) Bus() *bus.Bus {
	return p.bus
}

// StartRun begins a new top-level run for sessionID and returns its
// monotonically increasing run ID. All correlation state from the
// previous run is discarded atomically; events tagged with an earlier
// run resolve as unowned from here on.
func (p *Pipeline) StartRun(sessionID string) int64 {
	p.runMu.Lock()
	p.nextRunID++
	runID := p.nextRunID
	p.runMu.Unlock()

	p.mu.Lock()
	p.correlator.StartRun(runID, sessionID)
	p.suppressor.Reset()
	p.mu.Unlock()

	p.logger.Debug("run started", "run", runID, "session", sessionID)
	return runID
}

// OnBatch registers a handler invoked with the ordered render commands of
// each flush, at most once per cadence and never with an empty slice.
func (p *Pipeline) OnBatch(fn func([]Command)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry := handlerEntry{id: p.nextID, fn: fn}
	p.nextID++
	p.handlers = append(p.handlers, entry)
	id := entry.id
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, h := range p.handlers {
			if h.id == id {
				p.handlers = append(p.handlers[:i:i], p.handlers[i+1:]...)
				return
			}
		}
	}
}

// FlushNow forces an immediate flush of pending events.
func (p *Pipeline) FlushNow() {
	p.dispatcher.FlushNow()
}

// Dispose tears the pipeline down: the dispatcher stops, and all bus
// subscribers are removed.
func (p *Pipeline) Dispose() {
	p.removeConsumer()
	p.dispatcher.Dispose()
	p.bus.Reset()
}

// Stats returns a snapshot of pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return Stats{
		Dispatcher:       p.dispatcher.Stats(),
		UnownedDropped:   p.unowned,
		EchoesSuppressed: p.suppressor.Suppressed(),
		DeltasFiltered:   p.filtered,
		BatchesDelivered: p.delivered,
	}
}

// consume is the dispatcher consumer: correlation, then echo
// suppression, then translation to render commands, preserving batch
// order throughout.
func (p *Pipeline) consume(batch []bus.Event) {
	p.mu.Lock()
	enriched := p.correlator.ProcessBatch(batch)

	commands := make([]Command, 0, len(enriched))
	var unowned, filtered uint64
	for _, ev := range enriched {
		if !ev.Owned {
			// Stale events from a superseded run are dropped here: the
			// correlator tags, this consumer decides.
			unowned++
			continue
		}
		if ev.SuppressFromOutput {
			continue
		}
		cmd, ok := p.translate(ev)
		if !ok {
			if ev.Type == bus.EventTextDelta {
				filtered++
			}
			continue
		}
		commands = append(commands, cmd)
	}

	handlers := make([]handlerEntry, len(p.handlers))
	copy(handlers, p.handlers)
	p.mu.Unlock()

	p.statsMu.Lock()
	p.unowned += unowned
	p.filtered += filtered
	if len(commands) > 0 {
		p.delivered++
	}
	p.statsMu.Unlock()

	if len(commands) == 0 {
		return
	}
	for _, h := range handlers {
		h.fn(commands)
	}
}

// translate maps one enriched event to a render command. Callers must
// hold p.mu (the suppressor is touched here).
func (p *Pipeline) translate(ev correlate.Enriched) (Command, bool) {
	cmd := Command{SessionID: ev.SessionID}

	switch data := ev.Data.(type) {
	case bus.TextDeltaPayload:
		text := p.suppressor.FilterDelta(data.Text)
		if text == "" {
			return Command{}, false
		}
		cmd.Kind = CmdAppendText
		cmd.Text = text
	case bus.ThinkingDeltaPayload:
		cmd.Kind = CmdAppendThinking
		cmd.Text = data.Text
	case bus.TextCompletePayload:
		cmd.Kind = CmdCompleteText
		cmd.Text = data.Text
	case bus.ThinkingCompletePayload:
		cmd.Kind = CmdCompleteThinking
		cmd.Text = data.Text
	case bus.ToolStartPayload:
		cmd.Kind = CmdOpenTool
		cmd.ToolID = ev.ResolvedToolID
		cmd.ToolName = data.ToolName
		cmd.ToolInput = data.ToolInput
		cmd.AgentID = ev.ResolvedAgentID
		cmd.Subagent = ev.IsSubagentTool
	case bus.ToolCompletePayload:
		cmd.Kind = CmdCloseTool
		cmd.ToolID = ev.ResolvedToolID
		cmd.ToolName = data.ToolName
		cmd.ToolResult = data.Result
		cmd.IsError = data.IsError
		cmd.AgentID = ev.ResolvedAgentID
		cmd.Subagent = ev.IsSubagentTool
		if data.EchoesResult {
			if text, ok := data.Result.(string); ok {
				p.suppressor.ExpectEcho(text)
			}
		}
	case bus.AgentStartPayload:
		cmd.Kind = CmdUpsertAgent
		cmd.AgentID = ev.ResolvedAgentID
		cmd.AgentType = data.AgentType
		cmd.AgentTask = data.Task
		cmd.Background = data.IsBackground
		cmd.Status = "running"
		cmd.ToolID = ev.ResolvedToolID
	case bus.AgentUpdatePayload:
		cmd.Kind = CmdUpsertAgent
		cmd.AgentID = ev.ResolvedAgentID
		cmd.Status = data.Status
	case bus.AgentCompletePayload:
		cmd.Kind = CmdUpsertAgent
		cmd.AgentID = ev.ResolvedAgentID
		if data.Success {
			cmd.Status = "completed"
		} else {
			cmd.Status = "failed"
		}
	case bus.SessionStartPayload:
		cmd.Kind = CmdStatus
		cmd.Status = "session ready"
		cmd.Text = data.Model
	case bus.SessionIdlePayload:
		cmd.Kind = CmdStatus
		cmd.Status = "idle"
		cmd.IsError = !data.Success
	case bus.SessionErrorPayload:
		cmd.Kind = CmdStatus
		cmd.Status = "error"
		cmd.Text = data.Message
		cmd.IsError = !data.Recoverable
	case bus.WorkflowStepStartPayload:
		cmd.Kind = CmdStatus
		cmd.Status = "step started"
		cmd.Text = data.Name
	case bus.WorkflowStepCompletePayload:
		cmd.Kind = CmdStatus
		cmd.Status = "step finished"
		cmd.IsError = !data.Success
		cmd.Text = data.StepID
	case bus.WorkflowTaskUpdatePayload:
		cmd.Kind = CmdUpsertTasks
		cmd.Tasks = data.Tasks
	case bus.PermissionRequestedPayload:
		cmd.Kind = CmdPermission
		cmd.ToolID = data.ToolID
		cmd.ToolName = data.ToolName
		cmd.Text = data.Prompt
	case bus.UsageUpdatePayload:
		cmd.Kind = CmdUsage
		cmd.Usage = data
	default:
		return Command{}, false
	}

	return cmd, true
}

// EndSession prunes correlation state for one torn-down session without
// affecting the rest of the run.
func (p *Pipeline) EndSession(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.correlator.EndSession(sessionID)
}

// String renders a command for logs and the CLI.
func (c Command) String() string {
	switch c.Kind {
	case CmdAppendText:
		return fmt.Sprintf("text %q", c.Text)
	case CmdAppendThinking:
		return fmt.Sprintf("thinking %q", c.Text)
	case CmdCompleteText:
		return "text-complete"
	case CmdCompleteThinking:
		return "thinking-complete"
	case CmdOpenTool:
		return fmt.Sprintf("open-tool %s (%s)", c.ToolName, c.ToolID)
	case CmdCloseTool:
		return fmt.Sprintf("close-tool %s (%s)", c.ToolName, c.ToolID)
	case CmdUpsertAgent:
		return fmt.Sprintf("agent %s %s", c.AgentID, c.Status)
	case CmdUpsertTasks:
		return fmt.Sprintf("tasks x%d", len(c.Tasks))
	case CmdStatus:
		return fmt.Sprintf("status %s %s", c.Status, c.Text)
	case CmdPermission:
		return fmt.Sprintf("permission %s", c.ToolName)
	case CmdUsage:
		return fmt.Sprintf("usage in=%d out=%d", c.Usage.InputTokens, c.Usage.OutputTokens)
	default:
		return "unknown"
	}
}
