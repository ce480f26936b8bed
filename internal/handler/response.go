package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON and writeError, so the API has one
// error shape:
//
//	{"error": "not_found", "message": "member not found with id abc123"}
//
// The frontend always knows what fields to expect, whatever the status code.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/time-estimator/internal/apperror"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Set for validation errors
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status go out on the first Write, so they are set before the
// body is encoded.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// headers are already sent, all we can do is log
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// decodeJSON reads a JSON request body into dst. On failure it has already
// written a 400 and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_json",
			Message: "Invalid JSON body",
		})
		return false
	}
	return true
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// ERROR MAPPING:
//
//	ErrValidation      → 400 validation_error
//	ErrUnauthenticated → 401 unauthenticated
//	ErrForbidden       → 403 forbidden
//	ErrNotFound        → 404 not_found
//	ErrConflict        → 409 conflict
//	ErrMalformedRecord → 500 malformed_record (details are logged, not sent)
//	ErrRemoteQuery     → 502 remote_query_failed (details are logged, not sent)
//
// errors.Is walks the whole chain, so a service's
// fmt.Errorf("loading team overview: %w", err) still maps by its kind.
func writeError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		// NEVER expose internal error details to the client.
		logger.ErrorContext(r.Context(), "unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	resp := ErrorResponse{Error: "internal_error", Message: appErr.Message}
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, apperror.ErrValidation):
		status = http.StatusBadRequest
		resp.Error = "validation_error"
		resp.Field = appErr.Field
	case errors.Is(err, apperror.ErrUnauthenticated):
		status = http.StatusUnauthorized
		resp.Error = "unauthenticated"
	case errors.Is(err, apperror.ErrForbidden):
		status = http.StatusForbidden
		resp.Error = "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		status = http.StatusNotFound
		resp.Error = "not_found"
	case errors.Is(err, apperror.ErrConflict):
		status = http.StatusConflict
		resp.Error = "conflict"
	case errors.Is(err, apperror.ErrMalformedRecord):
		logger.ErrorContext(r.Context(), "malformed record", slog.String("error", err.Error()))
		resp.Error = "malformed_record"
		resp.Message = "A stored record could not be read"
	case errors.Is(err, apperror.ErrRemoteQuery):
		logger.ErrorContext(r.Context(), "remote query failed", slog.String("error", err.Error()))
		status = http.StatusBadGateway
		resp.Error = "remote_query_failed"
		resp.Message = "The data store could not be reached"
	default:
		resp.Message = "An internal error occurred"
	}

	writeJSON(w, status, resp)
}
