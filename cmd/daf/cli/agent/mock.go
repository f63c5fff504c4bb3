package agent

import (
	"context"
	"os/exec"
	"path/filepath"

	"github.com/devaiflow/cli/cmd/daf/cli/paths"
)

// MockName is the registry name of the scripted test agent.
const MockName = "mock"

func init() {
	Register(MockName, func() Agent { return &MockAgent{} })
}

// MockAgent is a scriptable agent for tests and DAF_MOCK_MODE. It runs an
// arbitrary shell script instead of a real agent binary and stores
// conversation files under Dir, mimicking the Claude layout.
type MockAgent struct {
	// Script is run via sh -c on Launch and Resume. Empty means "true".
	Script string

	// Dir is where conversation files live. Empty disables capture.
	Dir string

	// LaunchCalls and ResumeCalls record invocations.
	LaunchCalls []LaunchSpec
	ResumeCalls []ResumeSpec
}

func (a *MockAgent) Name() string { return MockName }

func (a *MockAgent) Describe() Info {
	return Info{Name: MockName, DisplayName: "Mock Agent", Binary: "sh", SupportsCapture: a.Dir != ""}
}

func (a *MockAgent) DetectPresence() (bool, error) { return true, nil }

func (a *MockAgent) SupportsCapture() bool { return a.Dir != "" }

func (a *MockAgent) ConversationDir(string) (string, error) {
	return a.Dir, nil
}

func (a *MockAgent) ConversationFilePath(_, agentSessionID string) (string, error) {
	if err := paths.ValidateAgentSessionID(agentSessionID); err != nil {
		return "", err
	}
	return filepath.Join(a.Dir, agentSessionID+".jsonl"), nil
}

func (a *MockAgent) Launch(ctx context.Context, spec LaunchSpec) (*ProcessHandle, error) {
	a.LaunchCalls = append(a.LaunchCalls, spec)
	return a.run(ctx, spec.WorkDir, spec.Env)
}

func (a *MockAgent) Resume(ctx context.Context, spec ResumeSpec) (*ProcessHandle, error) {
	a.ResumeCalls = append(a.ResumeCalls, spec)
	return a.run(ctx, spec.WorkDir, spec.Env)
}

func (a *MockAgent) run(ctx context.Context, workDir string, env map[string]string) (*ProcessHandle, error) {
	script := a.Script
	if script == "" {
		script = "true"
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	return start(cmd, workDir, env)
}
