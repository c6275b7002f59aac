package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnresolved marks a projection that referred to an entity with no
// local mapping yet. Plausible under normal operation (event raced the
// creating request), so it dead-letters instead of failing hard.
var ErrUnresolved = errors.New("projection target unresolved")

// ProviderError classifies a failure from an outbound provider call.
// Retryable means a retry is likely to succeed (timeout, 5xx, rate
// limit); non-retryable means operator remediation is needed first.
type ProviderError struct {
	Provider  string
	Operation string
	Category  string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Operation, e.Category, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether err is transient: a provider error flagged
// retryable, or a context deadline (downstream too slow, worth retrying).
// Everything else is treated as terminal.
func Retryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return errors.Is(err, context.DeadlineExceeded)
}
