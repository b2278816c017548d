package models

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a failure class surfaced through the API envelope.
type ErrorCode string

const (
	// Input errors - surfaced immediately, no side effects
	ErrInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrSourceNotFound  ErrorCode = "SOURCE_NOT_FOUND"
	ErrWordLimit       ErrorCode = "WORD_LIMIT"
	ErrSchemaViolation ErrorCode = "SCHEMA_VIOLATION"
	ErrNotFound        ErrorCode = "NOT_FOUND"

	// Auth errors
	ErrAuthMissing      ErrorCode = "AUTH_MISSING"
	ErrAuthInvalidToken ErrorCode = "AUTH_INVALID_TOKEN"
	ErrAccessDenied     ErrorCode = "ACCESS_DENIED"
	ErrAdminRequired    ErrorCode = "ADMIN_REQUIRED"

	// Upstream transient - retried with bounded backoff before surfacing
	ErrLLMRateLimited      ErrorCode = "LLM_RATE_LIMITED"
	ErrLLMTransport        ErrorCode = "LLM_TRANSPORT"
	ErrStoreUnavailable    ErrorCode = "STORE_UNAVAILABLE"
	ErrUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"

	// Upstream fatal
	ErrLLMParseFailed   ErrorCode = "LLM_PARSE_FAILED"
	ErrExtractionFailed ErrorCode = "EXTRACTION_FAILED"

	// Write failures - trigger pipeline rollback
	ErrStoreWriteFailed ErrorCode = "STORE_WRITE_FAILED"

	// Consistency - a normal terminal, reported distinctly from errors
	ErrDuplicate ErrorCode = "DUPLICATE"
)

// defaultRecovery maps error codes to a caller-facing recovery hint.
var defaultRecovery = map[ErrorCode]string{
	ErrInvalidInput:        "Correct the request payload and retry",
	ErrSourceNotFound:      "Register the source via create_source or use an existing source_id",
	ErrWordLimit:           "Split the document; content must stay under the word limit",
	ErrSchemaViolation:     "Correct the request payload and retry",
	ErrNotFound:            "Verify the identifier and retry",
	ErrAuthMissing:         "Provide a bearer token in the Authorization header",
	ErrAuthInvalidToken:    "Request a new token; this one is expired, revoked, or malformed",
	ErrAccessDenied:        "Request access to the named group or target a permitted group",
	ErrAdminRequired:       "Use a token whose group set includes admin",
	ErrLLMRateLimited:      "Retry after the provider rate-limit window",
	ErrLLMTransport:        "Retry; the LLM provider was unreachable",
	ErrStoreUnavailable:    "Retry; a backing store was unreachable",
	ErrUpstreamUnavailable: "Retry later; upstream retries were exhausted",
	ErrLLMParseFailed:      "Retry; the provider returned unparseable output",
	ErrExtractionFailed:    "Retry ingestion; extraction failed after retries",
	ErrStoreWriteFailed:    "Retry ingestion; partial writes were rolled back",
	ErrDuplicate:           "No action needed; the story is already indexed",
}

// ServiceError is the typed error carried through the service layers and
// rendered into the API error envelope. Details never contain tokens,
// secrets, or full document content.
type ServiceError struct {
	Code     ErrorCode      `json:"error_code"`
	Message  string         `json:"message"`
	Recovery string         `json:"recovery_strategy,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	cause    error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.cause
}

// NewServiceError creates a ServiceError with the default recovery hint for
// the code.
func NewServiceError(code ErrorCode, message string) *ServiceError {
	return &ServiceError{
		Code:     code,
		Message:  message,
		Recovery: defaultRecovery[code],
	}
}

// WrapServiceError creates a ServiceError wrapping an underlying cause. The
// cause is preserved for logs but not rendered into the envelope message.
func WrapServiceError(code ErrorCode, message string, cause error) *ServiceError {
	e := NewServiceError(code, message)
	e.cause = cause
	return e
}

// WithDetail attaches a structured detail value and returns the error for
// chaining.
func (e *ServiceError) WithDetail(key string, value any) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// CodeOf extracts the ErrorCode from any error, or "" if the chain carries
// no ServiceError.
func CodeOf(err error) ErrorCode {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// AsServiceError returns the ServiceError in err's chain, or wraps err as
// UPSTREAM_UNAVAILABLE if none is present.
func AsServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return WrapServiceError(ErrUpstreamUnavailable, "internal error", err)
}
