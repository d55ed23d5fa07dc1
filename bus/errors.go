package bus

import "fmt"

// ValidationError reports a published event whose payload failed schema
// validation. The bus logs the failure and drops the single event; it
// never halts the shared pipeline.
type ValidationError struct {
	Cause   error
	Type    EventType
	Message string
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid %s event: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid %s event: %s", e.Type, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}
