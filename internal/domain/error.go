package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrStatusConflict  = errors.New("status precondition failed")

	// Job execution failures
	ErrTopicNotFound       = errors.New("topic not found or inactive")
	ErrParameterValidation = errors.New("missing or invalid parameters")
	ErrPromptRender        = errors.New("prompt rendering failed")
	ErrBackendTimeout      = errors.New("backend call timed out")
	ErrBackendExhausted    = errors.New("all backends failed")
	ErrInternal            = errors.New("internal error")

	// Conversation failures
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionNotActive    = errors.New("session is not active")
	ErrSessionAccessDenied = errors.New("session belongs to another tenant")
	ErrMaxTurnsReached     = errors.New("maximum turns reached")
	ErrSessionIdleTimeout  = errors.New("session expired due to inactivity")
	ErrExtractionFailed    = errors.New("result extraction failed")
)

// FailureCode is the persisted category of a failed job. Execution-time
// failures are always mapped to one of these before they reach storage.
type FailureCode string

const (
	CodeTopicNotFound       FailureCode = "TOPIC_NOT_FOUND"
	CodeParameterValidation FailureCode = "PARAMETER_VALIDATION"
	CodePromptRender        FailureCode = "PROMPT_RENDER_ERROR"
	CodeBackendTimeout      FailureCode = "BACKEND_TIMEOUT"
	CodeBackendError        FailureCode = "BACKEND_ERROR"
	CodeInternal            FailureCode = "INTERNAL_ERROR"
)

// Categorize maps an execution error onto its failure code. Unknown errors
// fall through to INTERNAL_ERROR so the terminal job record always carries
// an inspectable category.
func Categorize(err error) FailureCode {
	switch {
	case errors.Is(err, ErrTopicNotFound):
		return CodeTopicNotFound
	case errors.Is(err, ErrParameterValidation):
		return CodeParameterValidation
	case errors.Is(err, ErrPromptRender):
		return CodePromptRender
	case errors.Is(err, ErrBackendTimeout):
		return CodeBackendTimeout
	case errors.Is(err, ErrBackendExhausted):
		return CodeBackendError
	default:
		return CodeInternal
	}
}
