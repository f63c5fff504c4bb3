package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// summaryPrompt wraps the transcript in boundary tags so injected content
// inside the conversation cannot masquerade as instructions.
const summaryPrompt = `Summarize this development conversation in one short paragraph:
what was attempted, what was achieved, and anything left unfinished.

<transcript>
%s
</transcript>

Return only the paragraph, no preamble and no formatting.`

// DefaultModel balances quality and cost for summaries.
const DefaultModel = "sonnet"

// ClaudeGenerator shells out to the claude CLI in print mode.
type ClaudeGenerator struct {
	// ClaudePath defaults to "claude" on PATH.
	ClaudePath string

	// Model defaults to DefaultModel.
	Model string

	// CommandRunner allows injection of the command execution for testing.
	CommandRunner func(ctx context.Context, name string, args ...string) *exec.Cmd
}

type claudeCLIResponse struct {
	Result string `json:"result"`
}

func (g *ClaudeGenerator) Generate(ctx context.Context, in Input) (string, error) {
	if len(in.Transcript) == 0 {
		return "", errors.New("empty transcript")
	}

	runner := g.CommandRunner
	if runner == nil {
		runner = exec.CommandContext
	}
	claudePath := g.ClaudePath
	if claudePath == "" {
		claudePath = "claude"
	}
	model := g.Model
	if model == "" {
		model = DefaultModel
	}

	// --setting-sources user avoids project hooks interfering with --print.
	cmd := runner(ctx, claudePath, "--print", "--output-format", "json", "--model", model, "--setting-sources", "user")
	cmd.Stdin = strings.NewReader(fmt.Sprintf(summaryPrompt, in.Transcript))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return "", fmt.Errorf("claude CLI not found: %w", err)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("claude CLI failed (exit %d): %s", exitErr.ExitCode(), stderr.String())
		}
		return "", fmt.Errorf("failed to run claude CLI: %w", err)
	}

	var resp claudeCLIResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return "", fmt.Errorf("failed to parse claude CLI response: %w", err)
	}
	summary := strings.TrimSpace(resp.Result)
	if summary == "" {
		return "", errors.New("claude CLI returned an empty summary")
	}
	return summary, nil
}
