package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/devaiflow/cli/cmd/daf/cli/gitops"
	"github.com/devaiflow/cli/cmd/daf/cli/logging"
	"github.com/devaiflow/cli/cmd/daf/cli/paths"
	"github.com/devaiflow/cli/cmd/daf/cli/session"
	"github.com/devaiflow/cli/cmd/daf/cli/tracker"
)

// NewOptions are the inputs to NewSession. Name and Goal are required;
// everything else is inferred when absent.
type NewOptions struct {
	Name      string
	Goal      string
	WorkDir   string
	Branch    string
	Template  string
	Workspace string
}

// NewSession creates and persists a session. When the name is a tracker
// issue key the issue is fetched and bound; tracker failures are warnings,
// not fatal. A branch is created and checked out when requested; the user
// aborting that decision is a BranchConflictError.
func (m *Manager) NewSession(ctx context.Context, opts NewOptions) (*session.Session, error) {
	if err := m.guard("new"); err != nil {
		return nil, err
	}
	if opts.Name == "" || opts.Goal == "" {
		return nil, &tracker.ValidationError{FieldErrors: map[string]string{"name": "required", "goal": "required"}}
	}
	if err := paths.ValidateSessionName(opts.Name); err != nil {
		return nil, err
	}

	workDir, err := m.resolveWorkDir(opts.WorkDir)
	if err != nil {
		return nil, err
	}

	// Remote read happens before the lock: the decision (issue fields)
	// feeds the local mutation but its failure never blocks it.
	var ticket *tracker.Ticket
	if paths.IsIssueKey(opts.Name) {
		if trk, tErr := m.RequireTracker(); tErr == nil {
			ticket, err = trk.GetTicket(ctx, opts.Name)
			if err != nil {
				ticket = nil
				m.warnf("could not fetch issue %s: %v", opts.Name, err)
			}
		}
	}

	branch := opts.Branch
	baseBranch := ""
	if branch != "" {
		branch, baseBranch, err = m.prepareBranch(workDir, branch)
		if err != nil {
			return nil, err
		}
	}

	now := m.now()
	s := session.New(opts.Name, opts.Goal, session.TypeDevelopment, now)
	s.Workspace = opts.Workspace
	s.Template = opts.Template
	if paths.IsIssueKey(opts.Name) {
		s.IssueKey = opts.Name
	}
	if ticket != nil {
		s.IssueSummary = ticket.Summary
		s.IssueStatus = ticket.Status
		s.IssueType = ticket.Type
	}

	repoName := filepath.Base(workDir)
	s.Conversations[repoName] = &session.Conversation{
		RepoName: repoName,
		Active: &session.ConversationContext{
			ProjectPath: workDir,
			Branch:      branch,
			BaseBranch:  baseBranch,
			CreatedAt:   now,
			LastActive:  now,
		},
	}
	s.ActiveWorkDir = repoName

	err = m.Store.WithLock(ctx, func() error {
		existing, loadErr := m.Store.Load(opts.Name)
		if loadErr != nil {
			return loadErr
		}
		if existing != nil {
			return &ConflictError{Name: opts.Name}
		}
		return m.Store.Save(s)
	})
	if err != nil {
		return nil, err
	}

	logging.Info(ctx, "session created", "session", s.Name, "work_dir", workDir)
	return s, nil
}

// resolveWorkDir validates the work directory, asking the user for one when
// it is missing or wrong. Under --json the prompt becomes
// NeedsInteractiveError.
func (m *Manager) resolveWorkDir(workDir string) (string, error) {
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		workDir = wd
	}
	for {
		abs, err := filepath.Abs(workDir)
		if err != nil {
			return "", &InvalidPathError{Path: workDir, Reason: err.Error()}
		}
		info, err := os.Stat(abs)
		if err == nil && info.IsDir() {
			return abs, nil
		}

		answer, pErr := m.Prompter.Input("Work directory "+abs+" does not exist. Enter a work directory", abs)
		if pErr != nil {
			return "", pErr
		}
		if answer == "" {
			return "", &InvalidPathError{Path: abs, Reason: "directory does not exist"}
		}
		workDir = answer
	}
}

// Branch-conflict menu options when the requested branch already exists.
const (
	branchOptSuffix = "Create it with a numbered suffix"
	branchOptReuse  = "Reuse the existing branch"
	branchOptRename = "Enter a different name"
	branchOptSkip   = "Skip the branch switch"
)

// prepareBranch creates and checks out the branch, confirming first when the
// worktree is dirty. An existing branch goes through the four-option conflict
// menu (suffix, reuse, rename, skip). Returns the branch actually checked out
// (empty on skip) and the branch it forked from.
func (m *Manager) prepareBranch(workDir, branch string) (string, string, error) {
	repo, err := gitops.Open(workDir)
	if err != nil {
		return "", "", &InvalidPathError{Path: workDir, Reason: "not a git checkout"}
	}

	clean, err := repo.IsClean()
	if err != nil {
		return "", "", err
	}
	if !clean {
		ok, pErr := m.Prompter.Confirm("Worktree has uncommitted changes. Switch to branch "+branch+" anyway?", false)
		if pErr != nil {
			return "", "", pErr
		}
		if !ok {
			return "", "", &BranchConflictError{Branch: branch}
		}
	}

	base, err := repo.CurrentBranch()
	if err != nil {
		base = ""
	}

	exists, err := repo.BranchExists(branch)
	if err != nil {
		return "", "", err
	}
	if exists {
		branch, err = m.resolveBranchConflict(repo, branch)
		if err != nil {
			return "", "", err
		}
		if branch == "" {
			return "", "", nil
		}
	} else if err := repo.CreateBranch(branch); err != nil {
		return "", "", err
	}
	if err := repo.Checkout(branch); err != nil {
		return "", "", err
	}
	if branch == base {
		base = ""
	}
	return branch, base, nil
}

// resolveBranchConflict asks what to do about an already-existing branch.
// Returns the branch to check out, or empty to skip branching entirely.
func (m *Manager) resolveBranchConflict(repo *gitops.Repo, branch string) (string, error) {
	choice, err := m.Prompter.Select(
		fmt.Sprintf("Branch %q already exists", branch),
		[]string{branchOptSuffix, branchOptReuse, branchOptRename, branchOptSkip})
	if err != nil {
		return "", err
	}

	switch choice {
	case branchOptSuffix:
		for i := 2; ; i++ {
			candidate := fmt.Sprintf("%s-%d", branch, i)
			exists, err := repo.BranchExists(candidate)
			if err != nil {
				return "", err
			}
			if !exists {
				return candidate, repo.CreateBranch(candidate)
			}
		}
	case branchOptReuse:
		return branch, nil
	case branchOptRename:
		name, err := m.Prompter.Input("New branch name", branch+"-2")
		if err != nil {
			return "", err
		}
		exists, err := repo.BranchExists(name)
		if err != nil {
			return "", err
		}
		if exists {
			return "", &BranchConflictError{Branch: name}
		}
		return name, repo.CreateBranch(name)
	case branchOptSkip:
		return "", nil
	}
	return "", &BranchConflictError{Branch: branch}
}

// Delete removes a session after confirmation.
func (m *Manager) Delete(ctx context.Context, name string, force bool) error {
	if err := m.guard("delete"); err != nil {
		return err
	}
	if _, err := m.Get(name); err != nil {
		return err
	}
	if !force {
		ok, err := m.Prompter.Confirm("Delete session "+name+" and its notes?", false)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCancelled
		}
	}
	return m.Store.WithLock(ctx, func() error {
		return m.Store.Delete(name)
	})
}

// errIsNotFound reports whether err is a local or remote not-found.
func errIsNotFound(err error) bool {
	var local *NotFoundError
	var remote *tracker.NotFoundError
	return errors.As(err, &local) || errors.As(err, &remote)
}
