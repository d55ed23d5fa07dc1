package bus

import (
	"encoding/json"
	"fmt"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// payloadPrototypes maps each event type to a zero value of its payload
// struct. Schema generation and trace decoding both key off this table.
var payloadPrototypes = map[EventType]Payload{
	EventTextDelta:            TextDeltaPayload{},
	EventTextComplete:         TextCompletePayload{},
	EventThinkingDelta:        ThinkingDeltaPayload{},
	EventThinkingComplete:     ThinkingCompletePayload{},
	EventToolStart:            ToolStartPayload{},
	EventToolComplete:         ToolCompletePayload{},
	EventAgentStart:           AgentStartPayload{},
	EventAgentUpdate:          AgentUpdatePayload{},
	EventAgentComplete:        AgentCompletePayload{},
	EventSessionStart:         SessionStartPayload{},
	EventSessionIdle:          SessionIdlePayload{},
	EventSessionError:         SessionErrorPayload{},
	EventWorkflowStepStart:    WorkflowStepStartPayload{},
	EventWorkflowStepComplete: WorkflowStepCompletePayload{},
	EventWorkflowTaskUpdate:   WorkflowTaskUpdatePayload{},
	EventPermissionRequested:  PermissionRequestedPayload{},
	EventUsageUpdate:          UsageUpdatePayload{},
}

// Validator checks published payloads against the JSON schema generated
// from their payload struct. Schemas are derived once at construction from
// struct tags (required fields are those without omitempty; identifying
// fields additionally carry minLength=1), so a payload with a missing
// identifying field fails validation instead of propagating downstream.
type Validator struct {
	schemas map[EventType]*jsonschema.Schema
}

// NewValidator generates and compiles one schema per known event type.
func NewValidator() (*Validator, error) {
	reflector := invopop.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}

	compiler := jsonschema.NewCompiler()
	for typ, proto := range payloadPrototypes {
		raw, err := json.Marshal(reflector.Reflect(proto))
		if err != nil {
			return nil, fmt.Errorf("marshal schema for %s: %w", typ, err)
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal schema for %s: %w", typ, err)
		}
		if err := compiler.AddResource(string(typ)+".json", doc); err != nil {
			return nil, fmt.Errorf("add schema resource for %s: %w", typ, err)
		}
	}

	schemas := make(map[EventType]*jsonschema.Schema, len(payloadPrototypes))
	for typ := range payloadPrototypes {
		schema, err := compiler.Compile(string(typ) + ".json")
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", typ, err)
		}
		schemas[typ] = schema
	}

	return &Validator{schemas: schemas}, nil
}

// Validate checks an event's payload against the schema for its type.
// It rejects unknown types, payload/type mismatches, and schema failures.
func (v *Validator) Validate(ev Event) error {
	schema, ok := v.schemas[ev.Type]
	if !ok {
		return &ValidationError{Type: ev.Type, Message: "unknown event type"}
	}
	if ev.Data == nil {
		return &ValidationError{Type: ev.Type, Message: "nil payload"}
	}
	if got := ev.Data.PayloadType(); got != ev.Type {
		return &ValidationError{
			Type:    ev.Type,
			Message: fmt.Sprintf("payload type %s does not match event type", got),
		}
	}

	raw, err := json.Marshal(ev.Data)
	if err != nil {
		return &ValidationError{Type: ev.Type, Message: "payload not marshalable", Cause: err}
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &ValidationError{Type: ev.Type, Message: "payload not valid JSON", Cause: err}
	}
	if err := schema.Validate(doc); err != nil {
		return &ValidationError{Type: ev.Type, Message: "schema validation failed", Cause: err}
	}
	return nil
}

// ValidateRaw checks a raw JSON payload against the schema for typ.
// Used by trace tooling to vet recorded events before replay.
func (v *Validator) ValidateRaw(typ EventType, raw json.RawMessage) error {
	schema, ok := v.schemas[typ]
	if !ok {
		return &ValidationError{Type: typ, Message: "unknown event type"}
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &ValidationError{Type: typ, Message: "payload not valid JSON", Cause: err}
	}
	if err := schema.Validate(doc); err != nil {
		return &ValidationError{Type: typ, Message: "schema validation failed", Cause: err}
	}
	return nil
}

// DecodePayload unmarshals a raw JSON payload into the typed payload
// struct for typ. Unknown types return an error.
func DecodePayload(typ EventType, raw json.RawMessage) (Payload, error) {
	switch typ {
	case EventTextDelta:
		return decodeInto[TextDeltaPayload](raw)
	case EventTextComplete:
		return decodeInto[TextCompletePayload](raw)
	case EventThinkingDelta:
		return decodeInto[ThinkingDeltaPayload](raw)
	case EventThinkingComplete:
		return decodeInto[ThinkingCompletePayload](raw)
	case EventToolStart:
		return decodeInto[ToolStartPayload](raw)
	case EventToolComplete:
		return decodeInto[ToolCompletePayload](raw)
	case EventAgentStart:
		return decodeInto[AgentStartPayload](raw)
	case EventAgentUpdate:
		return decodeInto[AgentUpdatePayload](raw)
	case EventAgentComplete:
		return decodeInto[AgentCompletePayload](raw)
	case EventSessionStart:
		return decodeInto[SessionStartPayload](raw)
	case EventSessionIdle:
		return decodeInto[SessionIdlePayload](raw)
	case EventSessionError:
		return decodeInto[SessionErrorPayload](raw)
	case EventWorkflowStepStart:
		return decodeInto[WorkflowStepStartPayload](raw)
	case EventWorkflowStepComplete:
		return decodeInto[WorkflowStepCompletePayload](raw)
	case EventWorkflowTaskUpdate:
		return decodeInto[WorkflowTaskUpdatePayload](raw)
	case EventPermissionRequested:
		return decodeInto[PermissionRequestedPayload](raw)
	case EventUsageUpdate:
		return decodeInto[UsageUpdatePayload](raw)
	default:
		return nil, fmt.Errorf("unknown event type %q", typ)
	}
}

func decodeInto[P Payload](raw json.RawMessage) (Payload, error) {
	var p P
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}
