//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/devaiflow/cli/cmd/daf/cli/paths"
	"github.com/devaiflow/cli/cmd/daf/cli/session"
)

// TestEnv manages an isolated environment for one integration test: a
// private store root and a work directory. Commands receive the store
// location via cmd.Env rather than t.Setenv so tests can run in parallel.
type TestEnv struct {
	T       *testing.T
	HomeDir string
	RepoDir string
}

// NewTestEnv creates an isolated test environment with a fresh store root
// and an empty work directory.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	// Resolve symlinks on macOS where /var -> /private/var so the CLI
	// subprocess and the test see consistent paths.
	homeDir := t.TempDir()
	if resolved, err := filepath.EvalSymlinks(homeDir); err == nil {
		homeDir = resolved
	}
	repoDir := t.TempDir()
	if resolved, err := filepath.EvalSymlinks(repoDir); err == nil {
		repoDir = resolved
	}

	return &TestEnv{T: t, HomeDir: homeDir, RepoDir: repoDir}
}

// commandEnv is the environment every CLI invocation runs with: an isolated
// store root and the mock tracker/agent pair.
func (env *TestEnv) commandEnv() []string {
	return append(os.Environ(),
		paths.HomeEnvVar+"="+env.HomeDir,
		"DAF_MOCK_MODE=1",
		"TERM=xterm",
	)
}

// RunCommand executes the CLI with the given arguments in the repo dir and
// returns combined output.
func (env *TestEnv) RunCommand(args ...string) (string, error) {
	env.T.Helper()

	cmd := exec.Command(getTestBinary(), args...)
	cmd.Dir = env.RepoDir
	cmd.Env = env.commandEnv()

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// MustRun executes the CLI and fails the test on a nonzero exit.
func (env *TestEnv) MustRun(args ...string) string {
	env.T.Helper()

	out, err := env.RunCommand(args...)
	if err != nil {
		env.T.Fatalf("daf %v failed: %v\nOutput: %s", args, err, out)
	}
	return out
}

// InitRepo initializes a git repository with one commit in the work dir.
func (env *TestEnv) InitRepo() {
	env.T.Helper()

	repo, err := git.PlainInit(env.RepoDir, false)
	if err != nil {
		env.T.Fatalf("failed to init git repo: %v", err)
	}

	cfg, err := repo.Config()
	if err != nil {
		env.T.Fatalf("failed to get repo config: %v", err)
	}
	cfg.User.Name = "Test User"
	cfg.User.Email = "test@example.com"
	if err := repo.SetConfig(cfg); err != nil {
		env.T.Fatalf("failed to set repo config: %v", err)
	}

	env.WriteFile("README.md", "# Test Repository")
	worktree, err := repo.Worktree()
	if err != nil {
		env.T.Fatalf("failed to get worktree: %v", err)
	}
	if _, err := worktree.Add("README.md"); err != nil {
		env.T.Fatalf("failed to add file: %v", err)
	}
	_, err = worktree.Commit("Initial commit", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Test User",
			Email: "test@example.com",
			When:  time.Now(),
		},
	})
	if err != nil {
		env.T.Fatalf("failed to commit: %v", err)
	}
}

// WriteFile creates a file with the given content in the work dir.
func (env *TestEnv) WriteFile(path, content string) {
	env.T.Helper()

	fullPath := filepath.Join(env.RepoDir, path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		env.T.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
		env.T.Fatalf("failed to write file %s: %v", path, err)
	}
}

// SessionExists reports whether the named session has a metadata document in
// the store.
func (env *TestEnv) SessionExists(name string) bool {
	env.T.Helper()

	_, err := os.Stat(paths.MetadataFile(env.HomeDir, name))
	return err == nil
}

// LoadSession reads the named session's metadata document from the store.
func (env *TestEnv) LoadSession(name string) *session.Session {
	env.T.Helper()

	data, err := os.ReadFile(paths.MetadataFile(env.HomeDir, name))
	if err != nil {
		env.T.Fatalf("failed to read session %s: %v", name, err)
	}
	var s session.Session
	if err := json.Unmarshal(data, &s); err != nil {
		env.T.Fatalf("failed to parse session %s: %v", name, err)
	}
	return &s
}

// CurrentBranch returns the checked-out branch in the work dir.
func (env *TestEnv) CurrentBranch() string {
	env.T.Helper()

	repo, err := git.PlainOpen(env.RepoDir)
	if err != nil {
		env.T.Fatalf("failed to open git repo: %v", err)
	}
	head, err := repo.Head()
	if err != nil {
		env.T.Fatalf("failed to get HEAD: %v", err)
	}
	if !head.Name().IsBranch() {
		return ""
	}
	return head.Name().Short()
}
