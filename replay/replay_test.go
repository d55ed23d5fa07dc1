package replay

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/adapter"
	"github.com/parleychat/parley/bus"
)

func writeTrace(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))
	return path
}

const sampleTrace = `{"type":"session-start","sessionId":"s1","data":{"model":"m-1"}}
{"type":"text-delta","sessionId":"s1","delayMs":2,"data":{"text":"hello"}}

{"type":"tool-start","sessionId":"s1","data":{"toolId":"t1","toolName":"read_file","toolInput":{"path":"a.go"}}}
{"type":"tool-complete","sessionId":"s1","data":{"toolId":"t1","toolName":"read_file","result":"body"}}
{"type":"session-idle","sessionId":"s1","data":{"success":true}}
`

func TestLoadDecodesTypedPayloads(t *testing.T) {
	path := writeTrace(t, sampleTrace)

	trace, err := Load(path)
	require.NoError(t, err)
	require.Len(t, trace.Events, 5)

	assert.Equal(t, bus.EventSessionStart, trace.Events[0].Type)
	assert.Equal(t, "m-1", trace.Events[0].Data.(bus.SessionStartPayload).Model)

	assert.Equal(t, 2*time.Millisecond, trace.Events[1].Delay)
	assert.Equal(t, "hello", trace.Events[1].Data.(bus.TextDeltaPayload).Text)

	start := trace.Events[2].Data.(bus.ToolStartPayload)
	assert.Equal(t, "t1", start.ToolID)
	assert.Equal(t, "a.go", start.ToolInput["path"])
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	path := writeTrace(t, "{\"type\":\"text-delta\",\"data\":{\"text\":\"ok\"}}\nnot json\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoadRejectsUnknownType(t *testing.T) {
	path := writeTrace(t, `{"type":"mystery","data":{}}`+"\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.Error(t, err)
}

func TestValidateAcceptsCleanTrace(t *testing.T) {
	path := writeTrace(t, sampleTrace)
	assert.NoError(t, Validate(path))
}

func TestValidateReportsSchemaFailure(t *testing.T) {
	// tool-start without a tool ID fails its schema.
	path := writeTrace(t, `{"type":"tool-start","sessionId":"s1","data":{"toolName":"read_file"}}`+"\n")

	err := Validate(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestReplayerPublishesInOrder(t *testing.T) {
	path := writeTrace(t, sampleTrace)
	trace, err := Load(path)
	require.NoError(t, err)

	b := bus.New()
	var got []bus.Event
	b.SubscribeAll(func(ev bus.Event) { got = append(got, ev) })

	r := NewReplayer(b, trace, 0)
	err = r.StartStreaming(context.Background(), adapter.Session{ID: "replay", RunID: 3}, "")
	require.NoError(t, err)

	require.Len(t, got, 5)
	assert.Equal(t, bus.EventSessionStart, got[0].Type)
	assert.Equal(t, bus.EventSessionIdle, got[4].Type)
	for _, ev := range got {
		assert.Equal(t, "s1", ev.SessionID)
		assert.Equal(t, int64(3), ev.RunID)
	}
	require.NoError(t, r.Dispose())
}

func TestReplayerFallsBackToReplaySession(t *testing.T) {
	trace := &Trace{Events: []TraceEvent{
		{Type: bus.EventTextDelta, Data: bus.TextDeltaPayload{Text: "x"}},
	}}

	b := bus.New()
	var got []bus.Event
	b.SubscribeAll(func(ev bus.Event) { got = append(got, ev) })

	r := NewReplayer(b, trace, 0)
	require.NoError(t, r.StartStreaming(context.Background(), adapter.Session{ID: "fallback", RunID: 1}, ""))

	require.Len(t, got, 1)
	assert.Equal(t, "fallback", got[0].SessionID)
}

func TestReplayerCancellation(t *testing.T) {
	trace := &Trace{Events: []TraceEvent{
		{Type: bus.EventTextDelta, Data: bus.TextDeltaPayload{Text: "x"}, Delay: time.Hour},
	}}

	b := bus.New()
	r := NewReplayer(b, trace, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.StartStreaming(ctx, adapter.Session{ID: "s1", RunID: 1}, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplayerSpeedScalesDelays(t *testing.T) {
	trace := &Trace{Events: []TraceEvent{
		{Type: bus.EventTextDelta, Data: bus.TextDeltaPayload{Text: "a"}, Delay: 10 * time.Millisecond},
		{Type: bus.EventTextDelta, Data: bus.TextDeltaPayload{Text: "b"}, Delay: 10 * time.Millisecond},
	}}

	b := bus.New()
	count := 0
	b.SubscribeAll(func(ev bus.Event) { count++ })

	start := time.Now()
	r := NewReplayer(b, trace, 100)
	require.NoError(t, r.StartStreaming(context.Background(), adapter.Session{ID: "s1", RunID: 1}, ""))

	assert.Equal(t, 2, count)
	assert.Less(t, time.Since(start), 5*time.Second)
}
