// Package correlate resolves identifiers across normalized events: which
// tool call spawned which sub-agent, which sub-agent belongs to which
// run, and whether an event belongs to the currently active run at all.
// The service is pure in-memory bookkeeping: no I/O, no timers, and all
// state reset wholesale at every run boundary.
package correlate

import (
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/parleychat/parley/bus"
)

// tokenCacheSize bounds the provider-token maps within one run so a
// long-lived session cannot grow them without bound.
const tokenCacheSize = 1024

// Enriched is a bus event plus correlation results. Created only here
// and never published back onto the bus, so enrichment cannot feed back
// into the pipeline.
type Enriched struct {
	bus.Event

	// ResolvedToolID is the internal ID of the tool call this event is
	// part of (for tool events) or was dispatched by (for agent-start).
	ResolvedToolID string

	// ResolvedAgentID is the internal ID of the agent this event belongs
	// to, when a parent relationship is known.
	ResolvedAgentID string

	// IsSubagentTool is true when the tool's resolved parent is an agent
	// rather than the top-level session.
	IsSubagentTool bool

	// SuppressFromOutput marks events consumers should not render, such
	// as the raw dispatch tool lifecycle once its agent has been linked.
	SuppressFromOutput bool

	// Owned is true when the event belongs to the currently active run.
	// Unowned events are tagged, not dropped; dropping is a downstream
	// policy decision.
	Owned bool
}

// pendingDispatch is one "agent dispatch expected" entry: a dispatch tool
// started but its agent-start has not arrived yet.
type pendingDispatch struct {
	sessionID string
	toolID    string
	token     string
}

// Correlator tracks correlation state for one pipeline instance. All
// maps live on the instance, never at package level, so independent
// pipelines (and tests) cannot interfere. Not safe for concurrent use;
// the dispatcher invokes ProcessBatch serially from its flush.
type Correlator struct {
	toolByToken  *lru.Cache[string, string]
	agentByToken *lru.Cache[string, string]
	toolParent   map[string]string
	agentByTool  map[string]string
	agentAlias   map[string]string
	pending      []pendingDispatch
	owned        map[string]struct{}
	dispatchTool map[string]struct{}
	activeRunID  int64
	hasRun       bool
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithDispatchTools names the provider tools whose start marks an
// expected sub-agent dispatch even when no correlation token is present.
func WithDispatchTools(names ...string) Option {
	return func(c *Correlator) {
		for _, n := range names {
			c.dispatchTool[n] = struct{}{}
		}
	}
}

// New creates an empty correlator with no active run.
func New(opts ...Option) *Correlator {
	c := &Correlator{
		dispatchTool: map[string]struct{}{"Task": {}, "dispatch_agent": {}},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.resetState()
	return c
}

// StartRun discards all prior correlation state and marks sessionID as
// owned by runID. No event tagged with an earlier run can resolve into
// the new run's state.
func (c *Correlator) StartRun(runID int64, sessionID string) {
	c.resetState()
	c.activeRunID = runID
	c.hasRun = true
	c.owned[sessionID] = struct{}{}
}

// EndSession prunes entries for one session without touching the rest of
// the run's state.
func (c *Correlator) EndSession(sessionID string) {
	delete(c.owned, sessionID)
	kept := c.pending[:0]
	for _, p := range c.pending {
		if p.sessionID != sessionID {
			kept = append(kept, p)
		}
	}
	c.pending = kept
}

// ProcessBatch resolves correlation for one flushed batch in order and
// returns the enriched events, preserving array order. Runs in O(n) over
// the batch: every lookup is a map or LRU access.
func (c *Correlator) ProcessBatch(events []bus.Event) []Enriched {
	out := make([]Enriched, 0, len(events))
	for _, ev := range events {
		out = append(out, c.process(ev))
	}
	return out
}

func (c *Correlator) process(ev bus.Event) Enriched {
	enriched := Enriched{Event: ev, Owned: c.isOwned(ev)}

	switch data := ev.Data.(type) {
	case bus.ToolStartPayload:
		c.onToolStart(ev, data, &enriched)
	case bus.ToolCompletePayload:
		enriched.ResolvedToolID = data.ToolID
		if agentID, ok := c.agentByTool[data.ToolID]; ok {
			// Dispatch tool finished after its agent was linked; the
			// agent lifecycle already covers it.
			enriched.ResolvedAgentID = agentID
			enriched.SuppressFromOutput = true
		} else if parent, ok := c.toolParent[data.ToolID]; ok {
			enriched.ResolvedAgentID = parent
			enriched.IsSubagentTool = true
		}
	case bus.AgentStartPayload:
		c.onAgentStart(ev, data, &enriched)
	case bus.AgentUpdatePayload:
		enriched.ResolvedAgentID = c.resolveAgentID(data.AgentID)
	case bus.AgentCompletePayload:
		enriched.ResolvedAgentID = c.resolveAgentID(data.AgentID)
	case bus.SessionStartPayload:
		// A session spawned under the active run joins its owned set, so
		// later events from that session resolve as owned even without a
		// run tag.
		if c.hasRun && ev.RunID == c.activeRunID {
			c.owned[ev.SessionID] = struct{}{}
			enriched.Owned = true
		}
	case bus.SessionErrorPayload:
		if !data.Recoverable {
			c.EndSession(ev.SessionID)
		}
	}

	return enriched
}

func (c *Correlator) onToolStart(ev bus.Event, data bus.ToolStartPayload, enriched *Enriched) {
	toolID := data.ToolID
	if toolID == "" {
		toolID = uuid.NewString()
	}
	enriched.ResolvedToolID = toolID

	if data.ParentAgentID != "" {
		c.toolParent[toolID] = data.ParentAgentID
		enriched.ResolvedAgentID = data.ParentAgentID
		enriched.IsSubagentTool = true
	}

	if data.ProviderCorrelationID != "" {
		c.toolByToken.Add(data.ProviderCorrelationID, toolID)
	}

	// A dispatch tool start means an agent-start is expected; queue it so
	// a token-less agent-start can match FIFO.
	if c.isDispatchTool(data) {
		c.pending = append(c.pending, pendingDispatch{
			sessionID: ev.SessionID,
			toolID:    toolID,
			token:     data.ProviderCorrelationID,
		})
	}
}

func (c *Correlator) onAgentStart(ev bus.Event, data bus.AgentStartPayload, enriched *Enriched) {
	agentID := data.AgentID
	if agentID == "" {
		agentID = uuid.NewString()
	}
	enriched.ResolvedAgentID = agentID
	if data.AgentID != "" {
		c.agentAlias[data.AgentID] = agentID
	}

	if data.ProviderCorrelationID != "" {
		c.agentByToken.Add(data.ProviderCorrelationID, agentID)
	}

	// An explicit token match takes precedence over queue order. Without
	// a token, match the oldest unmatched dispatch for this session.
	// Best effort: concurrent same-named dispatches from one session can
	// mismatch.
	if toolID, idx := c.matchDispatch(ev.SessionID, data.ProviderCorrelationID); toolID != "" {
		enriched.ResolvedToolID = toolID
		c.agentByTool[toolID] = agentID
		if idx >= 0 {
			c.pending = append(c.pending[:idx], c.pending[idx+1:]...)
		}
	}
}

// matchDispatch finds the pending dispatch entry for an agent-start.
// Token matches win; otherwise the oldest entry for the session is taken.
func (c *Correlator) matchDispatch(sessionID, token string) (string, int) {
	if token != "" {
		for i, p := range c.pending {
			if p.token == token {
				return p.toolID, i
			}
		}
		if toolID, ok := c.toolByToken.Get(token); ok {
			// Token recorded on a non-queued tool-start.
			return toolID, -1
		}
	}
	for i, p := range c.pending {
		if p.sessionID == sessionID {
			return p.toolID, i
		}
	}
	return "", -1
}

func (c *Correlator) resolveAgentID(providerAgentID string) string {
	if agentID, ok := c.agentAlias[providerAgentID]; ok {
		return agentID
	}
	return providerAgentID
}

func (c *Correlator) isOwned(ev bus.Event) bool {
	if !c.hasRun {
		return false
	}
	if _, ok := c.owned[ev.SessionID]; ok {
		return true
	}
	return ev.RunID == c.activeRunID
}

func (c *Correlator) isDispatchTool(data bus.ToolStartPayload) bool {
	if data.ProviderCorrelationID != "" {
		return true
	}
	_, ok := c.dispatchTool[data.ToolName]
	return ok
}

func (c *Correlator) resetState() {
	// lru.New only errors on a non-positive size.
	toolCache, _ := lru.New[string, string](tokenCacheSize)
	agentCache, _ := lru.New[string, string](tokenCacheSize)
	c.toolByToken = toolCache
	c.agentByToken = agentCache
	c.toolParent = make(map[string]string)
	c.agentByTool = make(map[string]string)
	c.agentAlias = make(map[string]string)
	c.pending = nil
	c.owned = make(map[string]struct{})
}
