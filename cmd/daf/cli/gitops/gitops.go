// Package gitops wraps the git interactions daf needs around a session's
// work directory: branch creation and switching, cleanliness checks, and the
// base-branch comparison shown before complete.
package gitops

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Repo is a handle on one checkout.
type Repo struct {
	path string
	repo *git.Repository
}

// Open opens the repository containing path.
func Open(path string) (*Repo, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository at %s: %w", path, err)
	}
	return &Repo{path: path, repo: repo}, nil
}

// Path returns the directory the repo was opened from.
func (r *Repo) Path() string {
	return r.path
}

// CurrentBranch returns the short name of the checked-out branch.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", errors.New("not on a branch (detached HEAD)")
	}
	return head.Name().Short(), nil
}

// IsClean reports whether the worktree has no staged, unstaged, or untracked
// changes.
func (r *Repo) IsClean() (bool, error) {
	w, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree: %w", err)
	}
	status, err := w.Status()
	if err != nil {
		return false, fmt.Errorf("failed to get status: %w", err)
	}
	return status.IsClean(), nil
}

// BranchExists reports whether a local branch exists.
func (r *Repo) BranchExists(name string) (bool, error) {
	_, err := r.repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check branch: %w", err)
	}
	return true, nil
}

// CreateBranch creates a local branch at the current HEAD.
func (r *Repo) CreateBranch(name string) error {
	head, err := r.repo.Head()
	if err != nil {
		return fmt.Errorf("failed to get HEAD: %w", err)
	}
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), head.Hash())
	if err := r.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("failed to create branch %s: %w", name, err)
	}
	return nil
}

// Checkout switches to the given branch or commit.
// Uses the git CLI instead of go-git to work around the go-git v5 bug where
// Checkout deletes untracked files (go-git/go-git#970).
func (r *Repo) Checkout(ref string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", "checkout", ref) //nolint:gosec // ref is a branch name
	cmd.Dir = r.path
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to checkout %s: %s: %w", ref, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// CommitAll stages the whole worktree and commits it. Uses the git CLI so
// the user's hooks and commit config apply.
func (r *Repo) CommitAll(message string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	add := exec.CommandContext(ctx, "git", "add", "-A")
	add.Dir = r.path
	if out, err := add.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to stage changes: %s: %w", strings.TrimSpace(string(out)), err)
	}
	commit := exec.CommandContext(ctx, "git", "commit", "-m", message) //nolint:gosec // message is user input to git, not a shell
	commit.Dir = r.path
	if out, err := commit.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to commit: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

// RemoteURL returns the fetch URL of the origin remote.
func (r *Repo) RemoteURL() (string, error) {
	remote, err := r.repo.Remote("origin")
	if err != nil {
		return "", fmt.Errorf("failed to get origin remote: %w", err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", errors.New("origin remote has no URL")
	}
	return urls[0], nil
}

// Merge merges ref into the current branch using the git CLI. On conflict it
// aborts the merge and returns the conflicting paths alongside the error.
func (r *Repo) Merge(ref string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", "merge", "--no-edit", ref) //nolint:gosec // ref is a branch name
	cmd.Dir = r.path
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil, nil
	}

	conflicts := r.conflictingPaths(ctx)
	abort := exec.CommandContext(ctx, "git", "merge", "--abort")
	abort.Dir = r.path
	_ = abort.Run()
	return conflicts, fmt.Errorf("failed to merge %s: %s", ref, strings.TrimSpace(string(out)))
}

func (r *Repo) conflictingPaths(ctx context.Context) []string {
	cmd := exec.CommandContext(ctx, "git", "diff", "--name-only", "--diff-filter=U")
	cmd.Dir = r.path
	out, err := cmd.Output()
	if err != nil {
		return nil
	}
	var paths []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths
}

// MergeBase returns the common ancestor of two branches.
func (r *Repo) MergeBase(branch1, branch2 string) (plumbing.Hash, error) {
	ref1, err := r.repo.Reference(plumbing.NewBranchReferenceName(branch1), true)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to resolve branch %s: %w", branch1, err)
	}
	ref2, err := r.repo.Reference(plumbing.NewBranchReferenceName(branch2), true)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to resolve branch %s: %w", branch2, err)
	}
	commit1, err := r.repo.CommitObject(ref1.Hash())
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to get commit for %s: %w", branch1, err)
	}
	commit2, err := r.repo.CommitObject(ref2.Hash())
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to get commit for %s: %w", branch2, err)
	}
	bases, err := commit1.MergeBase(commit2)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to find merge base: %w", err)
	}
	if len(bases) == 0 {
		return plumbing.ZeroHash, errors.New("no common ancestor found")
	}
	return bases[0].Hash, nil
}

// CommitsAhead counts commits on branch that are not on base.
func (r *Repo) CommitsAhead(branch, base string) (int, error) {
	baseHash, err := r.MergeBase(branch, base)
	if err != nil {
		return 0, err
	}
	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve branch %s: %w", branch, err)
	}

	count := 0
	commit, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return 0, fmt.Errorf("failed to get commit: %w", err)
	}
	for commit.Hash != baseHash {
		count++
		if commit.NumParents() == 0 {
			break
		}
		commit, err = commit.Parent(0)
		if err != nil {
			return 0, fmt.Errorf("failed to walk history: %w", err)
		}
	}
	return count, nil
}
