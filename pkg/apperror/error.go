package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents an application error with HTTP status and error code
type Error struct {
	HTTPStatus int
	Code       string
	Message    string
	Internal   error
	Details    map[string]any
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the internal error
func (e *Error) Unwrap() error {
	return e.Internal
}

// WithInternal returns a copy of the error with an internal error attached
func (e *Error) WithInternal(err error) *Error {
	return &Error{
		HTTPStatus: e.HTTPStatus,
		Code:       e.Code,
		Message:    e.Message,
		Internal:   err,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *Error) WithMessage(message string) *Error {
	return &Error{
		HTTPStatus: e.HTTPStatus,
		Code:       e.Code,
		Message:    message,
		Internal:   e.Internal,
		Details:    e.Details,
	}
}

// WithDetails returns a copy of the error with details attached
func (e *Error) WithDetails(details map[string]any) *Error {
	return &Error{
		HTTPStatus: e.HTTPStatus,
		Code:       e.Code,
		Message:    e.Message,
		Internal:   e.Internal,
		Details:    details,
	}
}

// New creates a new application error
func New(status int, code, message string) *Error {
	return &Error{
		HTTPStatus: status,
		Code:       code,
		Message:    message,
	}
}

// Common error definitions
var (
	// Request errors
	ErrBadRequest = New(http.StatusBadRequest, "bad_request", "Invalid request")

	// Graph consistency errors
	ErrMissingType      = New(http.StatusUnprocessableEntity, "missing_type", "Resource has no rdf:type")
	ErrMalformedQuery   = New(http.StatusBadRequest, "malformed_query", "Query cannot be evaluated")
	ErrDuplicateRecords = New(http.StatusInternalServerError, "duplicate_records", "Multiple persisted resources share type and label")
	ErrSweepRunning     = New(http.StatusConflict, "sweep_running", "A sweep pass is already running")
	ErrUnknownTenant    = New(http.StatusNotFound, "unknown_tenant", "Tenant not found")

	// Server errors
	ErrInternal = New(http.StatusInternalServerError, "internal_error", "An internal error occurred")
	ErrStore    = New(http.StatusInternalServerError, "store_error", "Store operation failed")
)

// Rule maps a domain sentinel onto an application error.
type Rule struct {
	Target error
	Err    *Error
}

// Match returns the application error of the first rule whose target is in
// err's chain, with err attached as the internal error and its text as the
// message. An *Error already in the chain is returned as is. Anything else
// becomes ErrInternal.
func Match(err error, rules ...Rule) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, r := range rules {
		if errors.Is(err, r.Target) {
			return r.Err.WithInternal(err).WithMessage(err.Error())
		}
	}
	return ErrInternal.WithInternal(err)
}

// NewBadRequest creates a bad request error with a custom message
func NewBadRequest(message string) *Error {
	return ErrBadRequest.WithMessage(message)
}

// NewInternal creates an internal error with a message and optional wrapped error
func NewInternal(message string, err error) *Error {
	return &Error{
		HTTPStatus: http.StatusInternalServerError,
		Code:       "internal_error",
		Message:    message,
		Internal:   err,
	}
}
