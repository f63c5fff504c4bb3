// Package paths defines the on-disk layout of the daf store and resolves
// agent conversation directories. The store root defaults to ~/.daf-sessions
// and can be overridden with the DEVAIFLOW_HOME environment variable.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// HomeEnvVar overrides the store root directory.
const HomeEnvVar = "DEVAIFLOW_HOME"

// DefaultRootDirName is the store root under the user's home directory.
const DefaultRootDirName = ".daf-sessions"

// File and directory names under the store root.
const (
	UserConfigFileName         = "config.json"
	OrganizationConfigFileName = "organization.json"
	TeamConfigFileName         = "team.json"
	EnterpriseConfigFileName   = "enterprise.json"
	SessionsIndexFileName      = "sessions.json"
	SessionsDirName            = "sessions"
	BackendsDirName            = "backends"
	LogsDirName                = "logs"
	LockFileName               = ".lock"
)

// Per-session file names under sessions/<name>/.
const (
	MetadataFileName = "metadata.json"
	NotesFileName    = "notes.md"
)

// Context files composed into the initial agent prompt, in precedence order.
var ContextFileNames = []string{"ENTERPRISE.md", "ORGANIZATION.md", "TEAM.md", "USER.md"}

// Root returns the store root directory, creating nothing.
func Root() (string, error) {
	if override := os.Getenv(HomeEnvVar); override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, DefaultRootDirName), nil
}

// EnsureRoot returns the store root, creating it (and the sessions and logs
// subdirectories) on first use.
func EnsureRoot() (string, error) {
	root, err := Root()
	if err != nil {
		return "", err
	}
	for _, dir := range []string{root, filepath.Join(root, SessionsDirName), filepath.Join(root, LogsDirName)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return "", fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return root, nil
}

// SessionsIndexFile returns the path to the index file under root.
func SessionsIndexFile(root string) string {
	return filepath.Join(root, SessionsIndexFileName)
}

// SessionDir returns the per-session directory under root.
func SessionDir(root, name string) string {
	return filepath.Join(root, SessionsDirName, name)
}

// MetadataFile returns the path to a session's metadata document.
func MetadataFile(root, name string) string {
	return filepath.Join(SessionDir(root, name), MetadataFileName)
}

// NotesFile returns the path to a session's notes log.
func NotesFile(root, name string) string {
	return filepath.Join(SessionDir(root, name), NotesFileName)
}

// LogsDir returns the diagnostics log directory under root.
func LogsDir(root string) string {
	return filepath.Join(root, LogsDirName)
}

// LockFile returns the path to the advisory lock sentinel under root.
func LockFile(root string) string {
	return filepath.Join(root, LockFileName)
}

// BackendConfigFile returns the per-backend config file (tracker URL, cached
// field catalog) for the named backend.
func BackendConfigFile(root, backend string) string {
	return filepath.Join(root, BackendsDirName, backend+".json")
}

// sessionNameRegex matches names safe for use as directory components.
var sessionNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// ValidateSessionName rejects names that would escape the sessions directory
// or collide with store files.
func ValidateSessionName(name string) error {
	if name == "" {
		return errors.New("session name cannot be empty")
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("invalid session name %q: contains path separators", name)
	}
	if !sessionNameRegex.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must start with an alphanumeric and contain only alphanumerics, dots, underscores and hyphens", name)
	}
	return nil
}

// issueKeyRegex matches tracker identifiers of the form PREFIX-123.
var issueKeyRegex = regexp.MustCompile(`^[A-Z][A-Z0-9]*-[0-9]+$`)

// IsIssueKey reports whether s looks like a tracker issue key (PREFIX-INTEGER).
func IsIssueKey(s string) bool {
	return issueKeyRegex.MatchString(s)
}

// agentSessionIDRegex matches identifiers safe for transcript file names.
var agentSessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateAgentSessionID validates an identifier captured from an agent's
// conversation file name before it is used in any path.
func ValidateAgentSessionID(id string) error {
	if id == "" {
		return errors.New("agent session ID cannot be empty")
	}
	if !agentSessionIDRegex.MatchString(id) {
		return fmt.Errorf("invalid agent session ID %q: must be alphanumeric with underscores/hyphens only", id)
	}
	return nil
}

// nonAlphanumericRegex matches any non-alphanumeric character.
var nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z0-9]`)

// EncodeWorkDir converts an absolute work directory into the flat directory
// component the Claude-style agent uses for its per-project conversation
// storage: every non-alphanumeric character becomes a dash.
func EncodeWorkDir(workDir string) string {
	return nonAlphanumericRegex.ReplaceAllString(workDir, "-")
}
