// Package jsonutil provides JSON utilities with consistent formatting and the
// structured output envelope used by --json mode.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// MarshalIndentWithNewline is like json.MarshalIndent but adds a trailing newline.
// This ensures JSON files have proper POSIX line endings.
func MarshalIndentWithNewline(v any, prefix, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent(prefix, indent)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding JSON: %w", err)
	}
	return buf.Bytes(), nil
}

// Envelope is the structured stdout payload emitted under --json. Nothing
// else may be written to stdout in that mode.
type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *EnvelopeError `json:"error,omitempty"`
}

// EnvelopeError identifies a failure in the --json envelope.
type EnvelopeError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteSuccess emits a success envelope to w.
func WriteSuccess(w io.Writer, data any) error {
	return writeEnvelope(w, Envelope{Success: true, Data: data})
}

// WriteError emits a failure envelope to w.
func WriteError(w io.Writer, code, message string, details map[string]any) error {
	return writeEnvelope(w, Envelope{
		Success: false,
		Error:   &EnvelopeError{Code: code, Message: message, Details: details},
	})
}

func writeEnvelope(w io.Writer, env Envelope) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(env); err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	return nil
}
