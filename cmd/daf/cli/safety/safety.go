// Package safety refuses mutating commands when invoked from inside a
// spawned agent. Detection relies exclusively on the INSIDE_AGENT environment
// variable set by the agent launcher; no parent-process probing.
package safety

import (
	"fmt"
	"os"
)

// EnvInsideAgent is set to "1" by the agent launcher before exec. A mutating
// daf command run from a shell inside the agent risks nested sessions and
// concurrent index updates, so the guard aborts it.
const EnvInsideAgent = "INSIDE_AGENT"

// EnvAgentSessionID carries the active session identifier into the spawned
// agent's environment. Read-only queries like `daf active` use it.
const EnvAgentSessionID = "AI_AGENT_SESSION_ID"

// RefusedError reports a mutating operation blocked inside a spawned agent.
type RefusedError struct {
	Operation string
}

func (e *RefusedError) Error() string {
	return fmt.Sprintf("refusing to run %q inside agent: %s is set; exit the agent and retry from your shell", e.Operation, EnvInsideAgent)
}

// mutatingOps lists every operation that writes to the store or the tracker.
// Anything not listed here is treated as read-only and always allowed.
var mutatingOps = map[string]bool{
	"new":         true,
	"open":        true,
	"complete":    true,
	"delete":      true,
	"link":        true,
	"unlink":      true,
	"note add":    true,
	"jira new":    true,
	"sync":        true,
	"pause":       true,
	"resume":      true,
	"export":      true,
	"import":      true,
	"backup":      true,
	"restore":     true,
	"update":      true,
	"investigate": true,
	"maintenance": true,
}

// IsMutating reports whether the named operation writes durable state.
func IsMutating(op string) bool {
	return mutatingOps[op]
}

// InsideAgent reports whether the current process runs inside a spawned agent.
func InsideAgent() bool {
	return os.Getenv(EnvInsideAgent) == "1"
}

// Guard returns a RefusedError when a mutating operation is attempted inside
// a spawned agent. Read-only operations always pass.
func Guard(op string) error {
	if !IsMutating(op) {
		return nil
	}
	if InsideAgent() {
		return &RefusedError{Operation: op}
	}
	return nil
}

// ActiveSessionID returns the session identifier exported into the agent
// environment, or empty when not inside an agent.
func ActiveSessionID() string {
	return os.Getenv(EnvAgentSessionID)
}
