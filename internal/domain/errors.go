package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the mention pipeline.
type ErrorKind string

const (
	ErrLedgerUnavailable    ErrorKind = "LEDGER_UNAVAILABLE"
	ErrRateLimitExceeded    ErrorKind = "RATE_LIMIT_EXCEEDED"
	ErrInvalidPrompt        ErrorKind = "INVALID_PROMPT"
	ErrBadResponse          ErrorKind = "BAD_RESPONSE"
	ErrInferenceUnavailable ErrorKind = "INFERENCE_UNAVAILABLE"
	ErrHistoryUnavailable   ErrorKind = "HISTORY_UNAVAILABLE"
	ErrEnrichmentFailed     ErrorKind = "ENRICHMENT_FAILED"
	ErrDeliveryFailed       ErrorKind = "DELIVERY_FAILED"
)

// Error is a classified pipeline failure. Prompt is only set for
// ErrInvalidPrompt so the rejected sequence can be logged.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
	Prompt []PromptMessage
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s (%s)", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s (%s): %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewError(kind ErrorKind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Kind, true
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
