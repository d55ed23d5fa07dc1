package correlate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/bus"
)

func processOne(c *Correlator, ev bus.Event) Enriched {
	out := c.ProcessBatch([]bus.Event{ev})
	return out[0]
}

func TestOwnershipFollowsActiveRun(t *testing.T) {
	c := New()

	// No run yet: nothing is owned.
	e := processOne(c, bus.NewEvent("s1", 1, bus.TextDeltaPayload{Text: "x"}))
	assert.False(t, e.Owned)

	c.StartRun(1, "s1")
	e = processOne(c, bus.NewEvent("s1", 1, bus.TextDeltaPayload{Text: "x"}))
	assert.True(t, e.Owned)

	// Same run ID, different session: owned via the run tag.
	e = processOne(c, bus.NewEvent("s2", 1, bus.TextDeltaPayload{Text: "x"}))
	assert.True(t, e.Owned)

	// Stale run tag and unknown session.
	e = processOne(c, bus.NewEvent("s3", 0, bus.TextDeltaPayload{Text: "x"}))
	assert.False(t, e.Owned)
}

func TestStartRunDiscardsPriorState(t *testing.T) {
	c := New()
	c.StartRun(1, "s1")
	processOne(c, bus.NewEvent("s1", 1, bus.ToolStartPayload{ToolID: "t1", ToolName: "Task"}))

	c.StartRun(2, "s1")

	// The pending dispatch from run 1 must not match an agent-start in
	// run 2.
	e := processOne(c, bus.NewEvent("s1", 2, bus.AgentStartPayload{AgentID: "a1"}))
	assert.Empty(t, e.ResolvedToolID)

	// Events tagged with the old run are no longer owned.
	e = processOne(c, bus.NewEvent("s9", 1, bus.TextDeltaPayload{Text: "x"}))
	assert.False(t, e.Owned)
}

func TestDispatchFIFOMatching(t *testing.T) {
	c := New()
	c.StartRun(1, "s1")

	e1 := processOne(c, bus.NewEvent("s1", 1, bus.ToolStartPayload{ToolID: "t1", ToolName: "Task"}))
	e2 := processOne(c, bus.NewEvent("s1", 1, bus.ToolStartPayload{ToolID: "t2", ToolName: "Task"}))
	assert.Equal(t, "t1", e1.ResolvedToolID)
	assert.Equal(t, "t2", e2.ResolvedToolID)

	// Token-less agent-starts match oldest-first.
	a1 := processOne(c, bus.NewEvent("s1", 1, bus.AgentStartPayload{AgentID: "a1"}))
	a2 := processOne(c, bus.NewEvent("s1", 1, bus.AgentStartPayload{AgentID: "a2"}))
	assert.Equal(t, "t1", a1.ResolvedToolID)
	assert.Equal(t, "t2", a2.ResolvedToolID)

	// A third agent-start has nothing left to match.
	a3 := processOne(c, bus.NewEvent("s1", 1, bus.AgentStartPayload{AgentID: "a3"}))
	assert.Empty(t, a3.ResolvedToolID)
}

func TestTokenMatchBeatsQueueOrder(t *testing.T) {
	c := New()
	c.StartRun(1, "s1")

	processOne(c, bus.NewEvent("s1", 1, bus.ToolStartPayload{ToolID: "t1", ToolName: "Task"}))
	processOne(c, bus.NewEvent("s1", 1, bus.ToolStartPayload{
		ToolID: "t2", ToolName: "Task", ProviderCorrelationID: "tok-2",
	}))

	// The tokened agent-start skips over the older token-less dispatch.
	a := processOne(c, bus.NewEvent("s1", 1, bus.AgentStartPayload{
		AgentID: "a2", ProviderCorrelationID: "tok-2",
	}))
	assert.Equal(t, "t2", a.ResolvedToolID)

	// The older dispatch is still pending for the next token-less start.
	b := processOne(c, bus.NewEvent("s1", 1, bus.AgentStartPayload{AgentID: "a1"}))
	assert.Equal(t, "t1", b.ResolvedToolID)
}

func TestFIFOMatchingIsPerSession(t *testing.T) {
	c := New()
	c.StartRun(1, "s1")

	processOne(c, bus.NewEvent("s1", 1, bus.ToolStartPayload{ToolID: "t1", ToolName: "Task"}))
	processOne(c, bus.NewEvent("s2", 1, bus.ToolStartPayload{ToolID: "t2", ToolName: "Task"}))

	a := processOne(c, bus.NewEvent("s2", 1, bus.AgentStartPayload{AgentID: "a1"}))
	assert.Equal(t, "t2", a.ResolvedToolID)
}

func TestDispatchToolCompleteSuppressedAfterLink(t *testing.T) {
	c := New()
	c.StartRun(1, "s1")

	processOne(c, bus.NewEvent("s1", 1, bus.ToolStartPayload{ToolID: "t1", ToolName: "Task"}))
	processOne(c, bus.NewEvent("s1", 1, bus.AgentStartPayload{AgentID: "a1"}))

	e := processOne(c, bus.NewEvent("s1", 1, bus.ToolCompletePayload{ToolID: "t1", ToolName: "Task"}))
	assert.True(t, e.SuppressFromOutput)
	assert.Equal(t, "a1", e.ResolvedAgentID)

	// An unlinked tool-complete is not suppressed.
	processOne(c, bus.NewEvent("s1", 1, bus.ToolStartPayload{ToolID: "t2", ToolName: "Read"}))
	e = processOne(c, bus.NewEvent("s1", 1, bus.ToolCompletePayload{ToolID: "t2", ToolName: "Read"}))
	assert.False(t, e.SuppressFromOutput)
}

func TestSubagentToolAttribution(t *testing.T) {
	c := New()
	c.StartRun(1, "s1")

	e := processOne(c, bus.NewEvent("s1", 1, bus.ToolStartPayload{
		ToolID: "t5", ToolName: "Read", ParentAgentID: "a1",
	}))
	assert.True(t, e.IsSubagentTool)
	assert.Equal(t, "a1", e.ResolvedAgentID)

	done := processOne(c, bus.NewEvent("s1", 1, bus.ToolCompletePayload{ToolID: "t5", ToolName: "Read"}))
	assert.True(t, done.IsSubagentTool)
	assert.Equal(t, "a1", done.ResolvedAgentID)
}

func TestToolStartWithoutIDGetsGenerated(t *testing.T) {
	c := New()
	c.StartRun(1, "s1")

	e := processOne(c, bus.NewEvent("s1", 1, bus.ToolStartPayload{ToolID: "x", ToolName: "Read"}))
	assert.Equal(t, "x", e.ResolvedToolID)

	// ProcessBatch does not validate; a missing ID still resolves to
	// something usable.
	e = processOne(c, bus.Event{
		Type: bus.EventToolStart, SessionID: "s1", RunID: 1,
		Data: bus.ToolStartPayload{ToolName: "Read"},
	})
	assert.NotEmpty(t, e.ResolvedToolID)
}

func TestAgentAliasResolution(t *testing.T) {
	c := New()
	c.StartRun(1, "s1")

	processOne(c, bus.NewEvent("s1", 1, bus.AgentStartPayload{AgentID: "a1"}))

	e := processOne(c, bus.NewEvent("s1", 1, bus.AgentUpdatePayload{AgentID: "a1", Status: "busy"}))
	assert.Equal(t, "a1", e.ResolvedAgentID)

	e = processOne(c, bus.NewEvent("s1", 1, bus.AgentCompletePayload{AgentID: "a1", Success: true}))
	assert.Equal(t, "a1", e.ResolvedAgentID)

	// Unknown agents pass through unchanged.
	e = processOne(c, bus.NewEvent("s1", 1, bus.AgentUpdatePayload{AgentID: "mystery"}))
	assert.Equal(t, "mystery", e.ResolvedAgentID)
}

func TestSessionStartUnderActiveRunJoinsOwnedSet(t *testing.T) {
	c := New()
	c.StartRun(3, "s1")

	e := processOne(c, bus.NewEvent("child", 3, bus.SessionStartPayload{Model: "m"}))
	assert.True(t, e.Owned)

	// Later events from the child session resolve as owned even with no
	// run tag.
	e = processOne(c, bus.NewEvent("child", 0, bus.TextDeltaPayload{Text: "x"}))
	assert.True(t, e.Owned)
}

func TestUnrecoverableErrorPrunesSession(t *testing.T) {
	c := New()
	c.StartRun(1, "s1")
	processOne(c, bus.NewEvent("s1", 1, bus.ToolStartPayload{ToolID: "t1", ToolName: "Task"}))

	processOne(c, bus.NewEvent("s1", 1, bus.SessionErrorPayload{Message: "boom"}))

	// The session is no longer owned and its pending dispatch is gone.
	e := processOne(c, bus.NewEvent("s1", 0, bus.TextDeltaPayload{Text: "x"}))
	assert.False(t, e.Owned)
	a := processOne(c, bus.NewEvent("s1", 1, bus.AgentStartPayload{AgentID: "a1"}))
	assert.Empty(t, a.ResolvedToolID)
}

func TestRecoverableErrorKeepsSession(t *testing.T) {
	c := New()
	c.StartRun(1, "s1")

	processOne(c, bus.NewEvent("s1", 1, bus.SessionErrorPayload{Message: "retry", Recoverable: true}))

	e := processOne(c, bus.NewEvent("s1", 0, bus.TextDeltaPayload{Text: "x"}))
	assert.True(t, e.Owned)
}

func TestCustomDispatchTools(t *testing.T) {
	c := New(WithDispatchTools("spawn_worker"))
	c.StartRun(1, "s1")

	processOne(c, bus.NewEvent("s1", 1, bus.ToolStartPayload{ToolID: "t1", ToolName: "spawn_worker"}))
	a := processOne(c, bus.NewEvent("s1", 1, bus.AgentStartPayload{AgentID: "a1"}))
	assert.Equal(t, "t1", a.ResolvedToolID)

	// Defaults stay active alongside the custom name.
	processOne(c, bus.NewEvent("s1", 1, bus.ToolStartPayload{ToolID: "t2", ToolName: "Task"}))
	b := processOne(c, bus.NewEvent("s1", 1, bus.AgentStartPayload{AgentID: "a2"}))
	assert.Equal(t, "t2", b.ResolvedToolID)
}

func TestBatchOrderPreserved(t *testing.T) {
	c := New()
	c.StartRun(1, "s1")

	batch := []bus.Event{
		bus.NewEvent("s1", 1, bus.ToolStartPayload{ToolID: "t1", ToolName: "Task"}),
		bus.NewEvent("s1", 1, bus.AgentStartPayload{AgentID: "a1"}),
		bus.NewEvent("s1", 1, bus.TextDeltaPayload{Text: "x"}),
	}
	out := c.ProcessBatch(batch)
	require.Len(t, out, 3)
	assert.Equal(t, bus.EventToolStart, out[0].Type)
	assert.Equal(t, bus.EventAgentStart, out[1].Type)
	assert.Equal(t, bus.EventTextDelta, out[2].Type)
}
