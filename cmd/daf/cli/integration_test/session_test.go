//go:build integration

package integration

import (
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/devaiflow/cli/cmd/daf/cli/session"
)

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	env := NewTestEnv(t)

	env.MustRun("new", "refactor-auth", "-g", "refactor the auth layer", "-w", env.RepoDir)

	if !env.SessionExists("refactor-auth") {
		t.Fatal("session metadata should exist after new")
	}

	out := env.MustRun("list")
	if !strings.Contains(out, "refactor-auth") {
		t.Errorf("list should show the session, got: %s", out)
	}

	env.MustRun("pause", "refactor-auth")
	if s := env.LoadSession("refactor-auth"); s.Status != session.StatusPaused {
		t.Errorf("status after pause = %s, want %s", s.Status, session.StatusPaused)
	}

	env.MustRun("resume", "refactor-auth")
	if s := env.LoadSession("refactor-auth"); s.Status != session.StatusInProgress {
		t.Errorf("status after resume = %s, want %s", s.Status, session.StatusInProgress)
	}

	env.MustRun("complete", "refactor-auth", "--no-summary")
	if s := env.LoadSession("refactor-auth"); s.Status != session.StatusComplete {
		t.Errorf("status after complete = %s, want %s", s.Status, session.StatusComplete)
	}

	// Completed sessions drop out of the default listing.
	out = env.MustRun("list")
	if strings.Contains(out, "refactor-auth") {
		t.Errorf("default list should hide completed sessions, got: %s", out)
	}
	out = env.MustRun("list", "--all")
	if !strings.Contains(out, "refactor-auth") {
		t.Errorf("list --all should show completed sessions, got: %s", out)
	}
}

func TestOpenBindsAgentSessionID(t *testing.T) {
	t.Parallel()
	env := NewTestEnv(t)

	env.MustRun("new", "fix-flaky-test", "-g", "chase down the flaky test", "-w", env.RepoDir)
	env.MustRun("open", "fix-flaky-test")

	s := env.LoadSession("fix-flaky-test")
	conv := s.Conversations[s.ActiveWorkDir]
	if conv == nil || conv.Active == nil {
		t.Fatal("session should have an active conversation")
	}
	if conv.Active.AgentSessionID == "" {
		t.Error("open should bind an agent session id")
	}
	if s.TimeState != session.TimePaused {
		t.Errorf("time state after open = %s, want %s", s.TimeState, session.TimePaused)
	}
}

func TestNewWithBranchChecksOut(t *testing.T) {
	t.Parallel()
	env := NewTestEnv(t)
	env.InitRepo()

	env.MustRun("new", "payments-retry", "-g", "add retry to payment webhooks", "-w", env.RepoDir, "-b", "feature/payments-retry")

	if branch := env.CurrentBranch(); branch != "feature/payments-retry" {
		t.Errorf("current branch = %s, want feature/payments-retry", branch)
	}
	s := env.LoadSession("payments-retry")
	if conv := s.Conversations[s.ActiveWorkDir]; conv == nil || conv.Active == nil || conv.Active.Branch != "feature/payments-retry" {
		t.Error("session should record the branch on its active conversation")
	}
}

func TestDeleteAsksForConfirmation(t *testing.T) {
	t.Parallel()
	env := NewTestEnv(t)

	env.MustRun("new", "doomed", "-g", "will be deleted", "-w", env.RepoDir)

	output, err := env.RunCommandInteractive([]string{"delete", "doomed"}, func(ptyFile *os.File) string {
		out, err := WaitForPromptAndRespond(ptyFile, "Delete session doomed", "y\n", 5*time.Second)
		if err != nil {
			t.Logf("prompt interaction: %v", err)
		}
		return out
	})
	if err != nil {
		t.Fatalf("delete failed: %v\nOutput: %s", err, output)
	}

	if env.SessionExists("doomed") {
		t.Error("session should be gone after confirmed delete")
	}
}

func TestJSONErrorEnvelope(t *testing.T) {
	t.Parallel()
	env := NewTestEnv(t)

	out, err := env.RunCommand("info", "no-such-session", "--json")
	if err == nil {
		t.Fatal("info on a missing session should fail")
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected an exit error, got %v", err)
	}
	if code := exitErr.ExitCode(); code != 5 {
		t.Errorf("exit code = %d, want 5", code)
	}

	var envelope struct {
		Success bool `json:"success"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if jsonErr := json.Unmarshal([]byte(out), &envelope); jsonErr != nil {
		t.Fatalf("stdout should be a JSON envelope, got: %s", out)
	}
	if envelope.Success {
		t.Error("envelope should report failure")
	}
	if envelope.Error == nil || envelope.Error.Code != "NOT_FOUND" {
		t.Errorf("envelope error code = %+v, want NOT_FOUND", envelope.Error)
	}
}
