package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Steno error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrConflict       ErrorCode = "CONFLICT"        // 409
	ErrRenderFailed   ErrorCode = "RENDER_FAILED"   // 500, recorded on the job
	ErrCancelled      ErrorCode = "CANCELLED"       // recorded on the job
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// CancelledMessage is the error message recorded on a job cancelled by a client.
const CancelledMessage = "cancelled"

// StenoError represents a structured error with code, status, and details.
type StenoError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *StenoError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *StenoError) Unwrap() error {
	return e.Err
}

// NewInvalidRequest creates a 400 error for missing or malformed fields.
func NewInvalidRequest(msg string) *StenoError {
	return &StenoError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewInvalidRequestf is NewInvalidRequest with formatting.
func NewInvalidRequestf(format string, args ...any) *StenoError {
	return NewInvalidRequest(fmt.Sprintf(format, args...))
}

// NewNotFound creates a 404 error for an unknown resource of the given kind
// ("video", "job", "document", "caption").
func NewNotFound(kind, identifier string) *StenoError {
	return &StenoError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewConflict creates a 409 error for revision mismatches.
func NewConflict(msg string) *StenoError {
	return &StenoError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewRenderFailed wraps a failure from the rendering engine or output I/O.
func NewRenderFailed(err error) *StenoError {
	msg := "render failed"
	if err != nil {
		msg = err.Error()
	}
	return &StenoError{
		Code:    ErrRenderFailed,
		Status:  500,
		Message: msg,
		Err:     err,
	}
}

// NewCancelled creates the error recorded on a client-cancelled job.
func NewCancelled() *StenoError {
	return &StenoError{
		Code:    ErrCancelled,
		Status:  409,
		Message: CancelledMessage,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *StenoError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &StenoError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		Err:     err,
	}
}

// Is checks if an error is (or wraps) a StenoError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *StenoError
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}

// As returns the StenoError in err's chain, or wraps err as internal.
func As(err error) *StenoError {
	var sErr *StenoError
	if stderrors.As(err, &sErr) {
		return sErr
	}
	return NewInternal(err)
}
