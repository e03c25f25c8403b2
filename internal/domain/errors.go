package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the engine's failure taxonomy. Callers branch on
// these with errors.Is; wrapping preserves the underlying cause.
var (
	// ErrCollaboratorUnavailable means the text-generation or image
	// classification service could not be reached. Fatal for the current
	// stage; the session stays in its pre-stage state for safe retry.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrParseFailure means generated text matched no expected pattern.
	// Recovered locally with fallback values, never fatal to a stage.
	ErrParseFailure = errors.New("parse failure")

	// ErrSessionNotFound means the caller referenced an unknown session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionStale means the session existed but was evicted or
	// completed and archived. Distinct from not-found so callers can tell
	// an expired session from a bad identifier.
	ErrSessionStale = errors.New("session stale")

	// ErrSessionBusy means a handler is already running for the session.
	ErrSessionBusy = errors.New("session busy")

	// ErrInvalidTransition means the router saw a state/path combination
	// it does not recognize. Logged and degraded, never surfaced raw.
	ErrInvalidTransition = errors.New("invalid workflow transition")

	// ErrEmptyGeneration means the text generator returned success with
	// no content; treated as a collaborator failure, not as valid output.
	ErrEmptyGeneration = errors.New("empty generation result")
)

// Error codes used in API responses.
const (
	CodeCollaboratorUnavailable = "COLLABORATOR_UNAVAILABLE"
	CodeParseFailure            = "PARSE_FAILURE"
	CodeSessionNotFound         = "SESSION_NOT_FOUND"
	CodeSessionStale            = "SESSION_STALE"
	CodeSessionBusy             = "SESSION_BUSY"
	CodeInvalidTransition       = "INVALID_TRANSITION"
	CodeInvalidInput            = "INVALID_INPUT"
	CodeInternalServer          = "INTERNAL_SERVER_ERROR"
)

// EngineError is the standardized error response shape.
type EngineError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewEngineError creates a new EngineError with timestamp.
func NewEngineError(code, message, details, sessionID string) *EngineError {
	return &EngineError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		SessionID: sessionID,
	}
}

// CodeForError maps a sentinel error to its API error code.
func CodeForError(err error) string {
	switch {
	case errors.Is(err, ErrCollaboratorUnavailable), errors.Is(err, ErrEmptyGeneration):
		return CodeCollaboratorUnavailable
	case errors.Is(err, ErrParseFailure):
		return CodeParseFailure
	case errors.Is(err, ErrSessionNotFound):
		return CodeSessionNotFound
	case errors.Is(err, ErrSessionStale):
		return CodeSessionStale
	case errors.Is(err, ErrSessionBusy):
		return CodeSessionBusy
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	default:
		return CodeInternalServer
	}
}

// ValidationError represents input validation errors.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
