package adapter

import (
	"errors"
	"fmt"
)

// Sentinel errors for common adapter conditions.
var (
	ErrDisposed      = errors.New("adapter disposed")
	ErrQueueClosed   = errors.New("push queue closed")
	ErrStreamEnded   = errors.New("provider stream ended unexpectedly")
	ErrAlreadyActive = errors.New("adapter is already streaming")
)

// ProviderError wraps an unrecoverable failure from a provider's native
// stream. Adapters are the only components permitted to let an error
// escape to their caller; everything downstream of the bus degrades
// instead of throwing.
type ProviderError struct {
	Cause    error
	Provider string
	Context  string
}

func (e *ProviderError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Context, e.Cause)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Cause)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// IsRecoverable reports whether an error should surface as an inline
// session-error event rather than ending the run.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return false
	}
	if errors.Is(err, ErrDisposed) || errors.Is(err, ErrStreamEnded) {
		return false
	}
	return true
}
