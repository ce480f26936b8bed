// Package apperror defines the error taxonomy shared by the data layer,
// the services and the HTTP handlers.
//
// Every constructor returns an *AppError wrapping one of the sentinel errors
// below, so callers branch with errors.Is and read the human message with
// errors.As. Absence is NOT an error at the repository layer: lookups return
// nil or an empty slice, and only the service layer turns absence into
// ErrNotFound.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("Validation Error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrRemoteQuery     = errors.New("remote query failed")
	ErrMalformedRecord = errors.New("malformed record")
)

type AppError struct {
	Err     error  // sentinel kind
	Cause   error  // Optional: underlying error, kept intact for errors.Is
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the cause, so
// errors.Is(err, ErrRemoteQuery) and errors.Is(err, sql.ErrConnDone)
// can both hold for the same error.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthenticated is raised before any remote call when an operation needs
// a session and there is none.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

// RemoteQuery wraps a document store failure. The cause is propagated
// unchanged; no retry happens anywhere below the caller.
func RemoteQuery(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrRemoteQuery,
		Cause:   cause,
		Message: fmt.Sprintf("%s: %v", op, cause),
	}
}

// MalformedRecord reports a stored document whose required field is missing
// or has the wrong type.
func MalformedRecord(collection, id, field, reason string) *AppError {
	return &AppError{
		Err:     ErrMalformedRecord,
		Message: fmt.Sprintf("%s/%s: field %q %s", collection, id, field, reason),
		Field:   field,
	}
}
