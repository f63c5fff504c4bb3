package gitops

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func initRepo(t *testing.T) (*Repo, *git.Repository, string) {
	t.Helper()
	dir := t.TempDir()
	raw, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	commitFile(t, raw, dir, "README.md", "hello\n", "initial commit")

	r, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	return r, raw, dir
}

func commitFile(t *testing.T, raw *git.Repository, dir, name, content, msg string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	w, err := raw.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Add(name); err != nil {
		t.Fatal(err)
	}
	_, err = w.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "dev", Email: "dev@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCurrentBranchAndClean(t *testing.T) {
	r, _, dir := initRepo(t)

	branch, err := r.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch() = %v", err)
	}
	if branch != "master" && branch != "main" {
		t.Errorf("branch = %q", branch)
	}

	clean, err := r.IsClean()
	if err != nil {
		t.Fatalf("IsClean() = %v", err)
	}
	if !clean {
		t.Error("fresh commit should be clean")
	}

	if err := os.WriteFile(filepath.Join(dir, "dirty.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	clean, err = r.IsClean()
	if err != nil {
		t.Fatal(err)
	}
	if clean {
		t.Error("untracked file should make the worktree dirty")
	}
}

func TestCreateBranch(t *testing.T) {
	r, _, _ := initRepo(t)

	exists, err := r.BranchExists("feature/PROJ-1")
	if err != nil || exists {
		t.Fatalf("BranchExists before create = %v, %v", exists, err)
	}
	if err := r.CreateBranch("feature/PROJ-1"); err != nil {
		t.Fatalf("CreateBranch() = %v", err)
	}
	exists, err = r.BranchExists("feature/PROJ-1")
	if err != nil || !exists {
		t.Errorf("BranchExists after create = %v, %v", exists, err)
	}
}

func TestCommitsAhead(t *testing.T) {
	r, raw, dir := initRepo(t)
	base, err := r.CurrentBranch()
	if err != nil {
		t.Fatal(err)
	}
	if err := r.CreateBranch("topic"); err != nil {
		t.Fatal(err)
	}

	// Advance the current branch by two commits; "topic" stays at the base.
	commitFile(t, raw, dir, "a.txt", "a\n", "add a")
	commitFile(t, raw, dir, "b.txt", "b\n", "add b")

	ahead, err := r.CommitsAhead(base, "topic")
	if err != nil {
		t.Fatalf("CommitsAhead() = %v", err)
	}
	if ahead != 2 {
		t.Errorf("CommitsAhead() = %d, want 2", ahead)
	}
}

func TestPreviewChange(t *testing.T) {
	p := PreviewChange("main.go", "line1\nline2\nline3\n", "line1\nchanged\nline3\nline4\n")
	if p.Added != 2 || p.Removed != 1 {
		t.Errorf("Added/Removed = %d/%d, want 2/1", p.Added, p.Removed)
	}
	if !strings.Contains(p.Patch, "+changed") || !strings.Contains(p.Patch, "-line2") {
		t.Errorf("Patch = %q", p.Patch)
	}
	if strings.Contains(p.Patch, "line3") {
		t.Error("unchanged lines should be elided")
	}
}
