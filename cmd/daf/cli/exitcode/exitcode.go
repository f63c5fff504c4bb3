// Package exitcode maps the error taxonomy onto process exit codes and the
// machine-readable codes used in the --json envelope.
package exitcode

import (
	"errors"

	"github.com/charmbracelet/huh"

	"github.com/devaiflow/cli/cmd/daf/cli/manager"
	"github.com/devaiflow/cli/cmd/daf/cli/safety"
	"github.com/devaiflow/cli/cmd/daf/cli/tracker"
)

// Process exit codes.
const (
	OK            = 0
	Failure       = 1
	Cancelled     = 2
	SafetyRefused = 3
	AuthFailed    = 4
	NotFound      = 5
	Validation    = 6
)

// FromError returns the exit code for err.
func FromError(err error) int {
	if err == nil {
		return OK
	}

	var refused *safety.RefusedError
	var authErr *tracker.AuthError
	var nfErr *tracker.NotFoundError
	var valErr *tracker.ValidationError
	var localNF *manager.NotFoundError

	switch {
	case errors.Is(err, manager.ErrCancelled), errors.Is(err, huh.ErrUserAborted):
		return Cancelled
	case errors.As(err, &refused):
		return SafetyRefused
	case errors.As(err, &authErr):
		return AuthFailed
	case errors.As(err, &nfErr), errors.As(err, &localNF):
		return NotFound
	case errors.As(err, &valErr):
		return Validation
	default:
		return Failure
	}
}

// Code returns the envelope error code string for err.
func Code(err error) string {
	switch FromError(err) {
	case Cancelled:
		return "CANCELLED"
	case SafetyRefused:
		return "SAFETY_REFUSED"
	case AuthFailed:
		return "AUTH_ERROR"
	case NotFound:
		return "NOT_FOUND"
	case Validation:
		return "VALIDATION_ERROR"
	default:
		var needs *manager.NeedsInteractiveError
		var conflict *manager.ConflictError
		switch {
		case errors.As(err, &needs):
			return "NEEDS_INTERACTIVE"
		case errors.As(err, &conflict):
			return "CONFLICT"
		}
		return "ERROR"
	}
}

// Details returns structured context for the envelope, when the error
// carries any.
func Details(err error) map[string]any {
	var valErr *tracker.ValidationError
	if errors.As(err, &valErr) && len(valErr.FieldErrors) > 0 {
		return map[string]any{"field_errors": valErr.FieldErrors}
	}
	var apiErr *tracker.APIError
	if errors.As(err, &apiErr) {
		return map[string]any{"status_code": apiErr.StatusCode}
	}
	return nil
}
