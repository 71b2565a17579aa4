package usecase

import (
	"strings"

	"slack-ai-bridge/internal/domain"
)

const (
	DefaultCeilingMessage = "Sorry, this thread has reached its reply limit. Please ask your question in a new thread."
	DefaultApologyFormat  = "Sorry, an error occurred while {phase}. Details: {details}"
)

// Pipeline phases named in apology replies.
const (
	phaseClaim    = "claiming the event"
	phaseGenerate = "generating a reply"
	phaseDeliver  = "sending the reply"
	phaseRecord   = "recording the result"
)

// apology renders the user-facing failure reply. {phase} and {details} are
// substituted in format.
func apology(format, phase string, err error) string {
	if format == "" {
		format = DefaultApologyFormat
	}
	return strings.NewReplacer("{phase}", phase, "{details}", describe(err)).Replace(format)
}

func describe(err error) string {
	kind, _ := domain.KindOf(err)
	switch kind {
	case domain.ErrRateLimitExceeded:
		return "the AI service is receiving too many requests. Please try again in a moment."
	case domain.ErrInvalidPrompt:
		return "the conversation could not be accepted by the AI service."
	case domain.ErrBadResponse:
		return "the AI service returned a reply that could not be read."
	case domain.ErrInferenceUnavailable:
		return "the AI service is currently unavailable."
	case domain.ErrLedgerUnavailable:
		return "the event store is currently unavailable."
	case domain.ErrDeliveryFailed:
		return "the reply could not be posted to Slack."
	default:
		return "an unexpected error occurred."
	}
}
