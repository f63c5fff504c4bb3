package store

import (
	"errors"
	"fmt"
)

// ErrInterrupted is returned when a lock wait is cancelled by the caller's
// context before the lock was acquired.
var ErrInterrupted = errors.New("interrupted while waiting for store lock")

// CorruptError reports a metadata or index document that could not be parsed.
// For per-session metadata, Path points at the quarantined copy.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt store document %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// LockError reports a failure to acquire the store lock within the wait
// budget. Holder carries whatever the sentinel file recorded about the
// current owner, when known.
type LockError struct {
	Path   string
	Holder string
	Err    error
}

func (e *LockError) Error() string {
	if e.Holder != "" {
		return fmt.Sprintf("store is locked by %s (%s)", e.Holder, e.Path)
	}
	return fmt.Sprintf("failed to lock store at %s: %v", e.Path, e.Err)
}

func (e *LockError) Unwrap() error {
	return e.Err
}
