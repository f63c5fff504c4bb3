package tracker

import (
	"fmt"
	"sort"
	"strings"
)

// AuthError reports 401/403 responses or missing credentials.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("tracker authentication failed (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return "tracker authentication failed: " + e.Message
}

// NotFoundError reports a 404, identifying what was being looked up.
type NotFoundError struct {
	Kind string // "issue", "project", "transition"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tracker %s %q not found", e.Kind, e.ID)
}

// ValidationError reports a 400 carrying field-level messages.
type ValidationError struct {
	FieldErrors map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.FieldErrors) == 0 {
		return "tracker rejected the request"
	}
	fields := make([]string, 0, len(e.FieldErrors))
	for f := range e.FieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e.FieldErrors[f])
	}
	return "tracker validation failed: " + strings.Join(parts, "; ")
}

// APIError reports any other 4xx/5xx response.
type APIError struct {
	StatusCode int
	Messages   []string
	Body       string // excerpt of the raw body
}

func (e *APIError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("tracker request failed (HTTP %d): %s", e.StatusCode, strings.Join(e.Messages, "; "))
	}
	return fmt.Sprintf("tracker request failed (HTTP %d)", e.StatusCode)
}

// ConnectionError wraps network or TLS failures reaching the tracker.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "failed to reach tracker: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
