package apperror

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
)

// TABLE-DRIVEN TESTS:
// Each case checks that errors.Is() identifies the error kind through the
// AppError wrapper, including when the AppError itself is wrapped again with
// fmt.Errorf("...: %w", err) the way repositories and services do.
func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("member", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("name", "name is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Unauthenticated wraps ErrUnauthenticated",
			err:       Unauthenticated("no active session"),
			target:    ErrUnauthenticated,
			wantMatch: true,
		},
		{
			name:      "RemoteQuery wraps ErrRemoteQuery",
			err:       RemoteQuery("members: find", sql.ErrConnDone),
			target:    ErrRemoteQuery,
			wantMatch: true,
		},
		{
			name:      "RemoteQuery keeps the cause reachable",
			err:       RemoteQuery("members: find", sql.ErrConnDone),
			target:    sql.ErrConnDone,
			wantMatch: true,
		},
		{
			name:      "MalformedRecord wraps ErrMalformedRecord",
			err:       MalformedRecord("history", "h1", "createdAt", "is missing"),
			target:    ErrMalformedRecord,
			wantMatch: true,
		},
		{
			name:      "double wrapped RemoteQuery still matches",
			err:       fmt.Errorf("service: loading team: %w", RemoteQuery("members: find", sql.ErrConnDone)),
			target:    ErrRemoteQuery,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("member", "abc123"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "Unauthenticated does NOT match ErrForbidden",
			err:       Unauthenticated("no active session"),
			target:    ErrForbidden,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("member", "abc123"),
			wantMessage: "member not found with id abc123",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("name", "name is required"),
			wantMessage: "name is required",
		},
		{
			name:        "Conflict message includes resource and id",
			err:         Conflict("account", "a@b.c"),
			wantMessage: "account conflict with id a@b.c",
		},
		{
			name:        "MalformedRecord names the document and field",
			err:         MalformedRecord("members", "m1", "name", "is missing"),
			wantMessage: `members/m1: field "name" is missing`,
		},
		{
			name:        "RemoteQuery prefixes the operation",
			err:         RemoteQuery("history: insert", errors.New("disk full")),
			wantMessage: "history: insert: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := NotFound("member", "abc123")
	unwrapped := err.Unwrap()

	if len(unwrapped) != 1 || unwrapped[0] != ErrNotFound {
		t.Errorf("Unwrap() = %v, want [%v]", unwrapped, ErrNotFound)
	}

	cause := errors.New("boom")
	remote := RemoteQuery("members: get", cause)
	if got := remote.Unwrap(); len(got) != 2 || got[1] != cause {
		t.Errorf("Unwrap() = %v, want sentinel and cause", got)
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("taskDificulty", "difficulty must be positive")

	if err.Field != "taskDificulty" {
		t.Errorf("Field = %q, want %q", err.Field, "taskDificulty")
	}
}
