package agent

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/devaiflow/cli/cmd/daf/cli/paths"
)

func init() {
	Register(AgentNameClaude, func() Agent { return &ClaudeAgent{binary: "claude"} })
}

// ClaudeAgent drives the Claude Code CLI. It is the only agent with full
// capture fidelity: every conversation is a JSONL file named by a stable
// UUID under ~/.claude/projects/<encoded-workdir>/.
type ClaudeAgent struct {
	binary string
}

func (a *ClaudeAgent) Name() string { return AgentNameClaude }

func (a *ClaudeAgent) Describe() Info {
	return Info{
		Name:            AgentNameClaude,
		DisplayName:     "Claude Code",
		Binary:          a.binary,
		SupportsCapture: true,
	}
}

func (a *ClaudeAgent) DetectPresence() (bool, error) {
	_, err := exec.LookPath(a.binary)
	if err != nil {
		return false, nil //nolint:nilerr // absence is a normal answer, not a failure
	}
	return true, nil
}

func (a *ClaudeAgent) SupportsCapture() bool { return true }

// ConversationDir encodes the working directory the way the agent does:
// every non-alphanumeric character becomes a dash.
func (a *ClaudeAgent) ConversationDir(workDir string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve work directory: %w", err)
	}
	return filepath.Join(home, ".claude", "projects", paths.EncodeWorkDir(abs)), nil
}

func (a *ClaudeAgent) ConversationFilePath(workDir, agentSessionID string) (string, error) {
	if err := paths.ValidateAgentSessionID(agentSessionID); err != nil {
		return "", err
	}
	dir, err := a.ConversationDir(workDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, agentSessionID+".jsonl"), nil
}

func (a *ClaudeAgent) Launch(ctx context.Context, spec LaunchSpec) (*ProcessHandle, error) {
	args := []string{}
	if spec.Prompt != "" {
		args = append(args, spec.Prompt)
	}
	cmd := exec.CommandContext(ctx, a.binary, args...) //nolint:gosec // binary name is fixed
	return start(cmd, spec.WorkDir, spec.Env)
}

func (a *ClaudeAgent) Resume(ctx context.Context, spec ResumeSpec) (*ProcessHandle, error) {
	if err := paths.ValidateAgentSessionID(spec.AgentSessionID); err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, a.binary, "--resume", spec.AgentSessionID) //nolint:gosec // id validated above
	return start(cmd, spec.WorkDir, spec.Env)
}
