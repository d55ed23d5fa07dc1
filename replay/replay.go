// Package replay loads recorded traces of normalized events and plays
// them back through the pipeline as if a live provider had emitted them.
// A trace is a JSONL file, one event envelope per line; replay drives
// demos and integration-style tests without a real provider process.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/parleychat/parley/adapter"
	"github.com/parleychat/parley/bus"
)

// envelope is one recorded line.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	Type      bus.EventType   `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	DelayMs   int64           `json:"delayMs,omitempty"`
}

// TraceEvent is one decoded trace entry: the payload plus the recorded
// gap since the previous event.
type TraceEvent struct {
	Data      bus.Payload
	Type      bus.EventType
	SessionID string
	Delay     time.Duration
}

// Trace is a decoded recording.
type Trace struct {
	Events []TraceEvent
}

// Load reads and decodes a JSONL trace file. Blank lines are skipped;
// a malformed line fails the whole load with its line number.
func Load(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	trace := &Trace{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env envelope
		if err := json.Unmarshal(line, &env); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		data, err := bus.DecodePayload(env.Type, env.Data)
		if err != nil {
			return nil, fmt.Errorf("line %d: decode %s payload: %w", lineNo, env.Type, err)
		}
		trace.Events = append(trace.Events, TraceEvent{
			Type:      env.Type,
			SessionID: env.SessionID,
			Delay:     time.Duration(env.DelayMs) * time.Millisecond,
			Data:      data,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return trace, nil
}

// Validate runs every line of a trace file through the bus schemas and
// returns the first failure, or nil when the whole trace is clean.
func Validate(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	validator, err := bus.NewValidator()
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env envelope
		if err := json.Unmarshal(line, &env); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := validator.ValidateRaw(env.Type, env.Data); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	return scanner.Err()
}

// Replayer plays a loaded trace onto the bus. It implements the adapter
// contract, so from the pipeline's perspective a replayed trace is
// indistinguishable from a live provider.
type Replayer struct {
	bus   *bus.Bus
	trace *Trace
	speed float64
}

var _ adapter.Adapter = (*Replayer)(nil)

// NewReplayer creates a replayer publishing to b. speed scales recorded
// gaps: 1 preserves them, 2 halves them, 0 or less replays with no
// delays at all.
func NewReplayer(b *bus.Bus, trace *Trace, speed float64) *Replayer {
	return &Replayer{bus: b, trace: trace, speed: speed}
}

// StartStreaming publishes every trace event in order, honoring recorded
// gaps. The input argument is ignored; the trace already contains the
// conversation. Events keep their recorded session ID when present,
// falling back to the replay session.
func (r *Replayer) StartStreaming(ctx context.Context, session adapter.Session, _ string) error {
	for _, te := range r.trace.Events {
		if r.speed > 0 && te.Delay > 0 {
			delay := time.Duration(float64(te.Delay) / r.speed)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		} else {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		sessionID := te.SessionID
		if sessionID == "" {
			sessionID = session.ID
		}
		r.bus.Publish(bus.NewEvent(sessionID, session.RunID, te.Data))
	}
	return nil
}

// Dispose is a no-op; a trace holds no provider resources.
func (r *Replayer) Dispose() error {
	return nil
}
