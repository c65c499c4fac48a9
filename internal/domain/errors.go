package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource (deal, snapshot, analysis).
	ErrNotFound = errors.New("not found")
	// ErrVectorDimMismatch signals a query vector whose dimensionality does
	// not match the snapshot's embedding model.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrProviderTimeout signals an inference provider call that timed out
	// after its single retry.
	ErrProviderTimeout = errors.New("provider timeout")
	// ErrContractViolation signals model output that still violates the
	// answer schema after one repair attempt.
	ErrContractViolation = errors.New("contract violation")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrInferenceProviderError signals an inference provider failure.
	ErrInferenceProviderError = errors.New("inference provider error")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
)

// ValidationError describes a structural violation of the answer schema.
// It carries a terse reason suitable for a corrective regeneration prompt.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid analysis payload: %s", e.Reason)
}

// NewValidationError creates a validation error with the given reason.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
