package agent

import (
	"context"
	"errors"
	"os/exec"
)

func init() {
	Register(AgentNameCursor, func() Agent {
		return &editorAgent{name: AgentNameCursor, displayName: "Cursor", binary: "cursor"}
	})
	Register(AgentNameWindsurf, func() Agent {
		return &editorAgent{name: AgentNameWindsurf, displayName: "Windsurf", binary: "windsurf"}
	})
	Register(AgentNameVSCode, func() Agent {
		return &editorAgent{name: AgentNameVSCode, displayName: "VS Code + Copilot", binary: "code"}
	})
}

// editorAgent covers the editor-embedded agents. They keep their
// conversations in opaque internal storage, so capture is unsupported: the
// SessionManager synthesizes a local identifier and skips message counting.
type editorAgent struct {
	name        string
	displayName string
	binary      string
}

func (a *editorAgent) Name() string { return a.name }

func (a *editorAgent) Describe() Info {
	return Info{Name: a.name, DisplayName: a.displayName, Binary: a.binary}
}

func (a *editorAgent) DetectPresence() (bool, error) {
	if _, err := exec.LookPath(a.binary); err != nil {
		return false, nil //nolint:nilerr // absence is a normal answer, not a failure
	}
	return true, nil
}

func (a *editorAgent) SupportsCapture() bool { return false }

func (a *editorAgent) ConversationDir(string) (string, error) {
	return "", errors.New(a.displayName + " does not expose conversation files")
}

func (a *editorAgent) ConversationFilePath(string, string) (string, error) {
	return "", errors.New(a.displayName + " does not expose conversation files")
}

// Launch opens the editor in the working directory. The prompt cannot be
// injected; the manager surfaces it to the user instead.
func (a *editorAgent) Launch(ctx context.Context, spec LaunchSpec) (*ProcessHandle, error) {
	cmd := exec.CommandContext(ctx, a.binary, ".") //nolint:gosec // binary name is fixed
	return start(cmd, spec.WorkDir, spec.Env)
}

func (a *editorAgent) Resume(ctx context.Context, spec ResumeSpec) (*ProcessHandle, error) {
	cmd := exec.CommandContext(ctx, a.binary, ".") //nolint:gosec // binary name is fixed
	return start(cmd, spec.WorkDir, spec.Env)
}
