// Package agent abstracts the spawned AI coding agent. Each implementation
// knows how to launch and resume its binary and, when the agent writes
// parseable conversation files, where those files live on disk.
package agent

import (
	"context"
)

// Info describes an agent for UI and session metadata.
type Info struct {
	Name            string `json:"name"`
	DisplayName     string `json:"display_name"`
	Binary          string `json:"binary"`
	SupportsCapture bool   `json:"supports_capture"`
}

// LaunchSpec starts a fresh conversation in workDir.
type LaunchSpec struct {
	WorkDir string
	Prompt  string
	// Env entries are appended to the inherited environment. The caller is
	// responsible for the in-agent contract (INSIDE_AGENT, AI_AGENT_SESSION_ID).
	Env map[string]string
}

// ResumeSpec reattaches to an existing conversation.
type ResumeSpec struct {
	WorkDir        string
	AgentSessionID string
	Env            map[string]string
}

// Agent is the spawned-agent surface the SessionManager programs against.
type Agent interface {
	// Name returns the registry identifier (e.g. "claude", "cursor").
	Name() string

	// Describe returns display metadata for this agent.
	Describe() Info

	// DetectPresence reports whether the agent's binary is installed.
	DetectPresence() (bool, error)

	// SupportsCapture reports whether the agent writes conversation files
	// that daf can observe to learn the new conversation's identifier.
	// When false, the SessionManager synthesizes a local identifier and
	// skips message counting.
	SupportsCapture() bool

	// ConversationDir returns the directory the agent writes conversation
	// files into for the given working directory. Only meaningful when
	// SupportsCapture is true.
	ConversationDir(workDir string) (string, error)

	// ConversationFilePath returns the transcript path for a captured
	// conversation identifier.
	ConversationFilePath(workDir, agentSessionID string) (string, error)

	// Launch starts a fresh interactive conversation and returns a handle
	// for the running process.
	Launch(ctx context.Context, spec LaunchSpec) (*ProcessHandle, error)

	// Resume reattaches to a previous conversation by its identifier.
	Resume(ctx context.Context, spec ResumeSpec) (*ProcessHandle, error)
}
