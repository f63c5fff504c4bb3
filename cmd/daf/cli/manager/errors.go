package manager

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned when the user declines or aborts an interactive
// prompt. The CLI exits 2 without further output.
var ErrCancelled = errors.New("cancelled by user")

// ConflictError reports a name collision in the store.
type ConflictError struct {
	Name string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("session %q already exists", e.Name)
}

// NotFoundError reports a session that does not exist locally.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session %q not found", e.Name)
}

// NeedsInteractiveError is returned when an operation requires a prompt but
// the run is non-interactive (--json or no TTY).
type NeedsInteractiveError struct {
	Reason string
}

func (e *NeedsInteractiveError) Error() string {
	return "interactive input required: " + e.Reason
}

// InvalidPathError reports a work directory that does not exist or is not a
// repository checkout.
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid work directory %s: %s", e.Path, e.Reason)
}

// BranchConflictError reports that the user aborted a branch decision.
type BranchConflictError struct {
	Branch string
}

func (e *BranchConflictError) Error() string {
	return fmt.Sprintf("branch conflict on %q not resolved", e.Branch)
}
