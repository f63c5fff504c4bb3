package manager

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/devaiflow/cli/cmd/daf/cli/config"
	"github.com/devaiflow/cli/cmd/daf/cli/gitops"
	"github.com/devaiflow/cli/cmd/daf/cli/logging"
	"github.com/devaiflow/cli/cmd/daf/cli/session"
	"github.com/devaiflow/cli/cmd/daf/cli/summarize"
	"github.com/devaiflow/cli/cmd/daf/cli/timetracker"
	"github.com/devaiflow/cli/cmd/daf/cli/tracker"
	"github.com/devaiflow/cli/redact"
)

// CompleteOptions are the inputs to Complete.
type CompleteOptions struct {
	Name string

	// NoSummary skips summary generation regardless of the configured mode.
	NoSummary bool

	// NoComment keeps the summary local instead of pushing it to the issue.
	NoComment bool
}

// CompleteResult reports what completion did, for rendering.
type CompleteResult struct {
	Summary      string
	Commented    bool
	Committed    bool
	PullRequest  string
	Transitioned bool
	TimeSpent    string
}

// Complete finishes a session: stops time tracking, marks the session
// complete, generates and optionally pushes a summary, and applies the
// configured tracker transition. Remote failures under the warn policy
// leave the session complete locally.
func (m *Manager) Complete(ctx context.Context, opts CompleteOptions) (*CompleteResult, error) {
	if err := m.guard("complete"); err != nil {
		return nil, err
	}
	s, err := m.Get(opts.Name)
	if err != nil {
		return nil, err
	}
	if s.Status == session.StatusComplete {
		return nil, fmt.Errorf("session %q is already complete", s.Name)
	}

	if err := m.ensureSessionBranch(s); err != nil {
		return nil, err
	}
	committed, prURL := m.offerCommit(s)

	// Summary generation reads the transcript and may shell out; it happens
	// outside the lock, on the pre-completion snapshot.
	var summary string
	if !opts.NoSummary {
		summary = m.generateSummary(ctx, s)
	}

	res := &CompleteResult{Summary: summary, Committed: committed, PullRequest: prURL}

	err = m.mutate(ctx, s.Name, func(cur *session.Session) error {
		timetracker.Stop(cur, m.now())
		cur.Status = session.StatusComplete
		if conv := cur.ActiveConversation(); conv != nil && conv.Active != nil {
			if summary != "" {
				conv.Active.Summary = summary
			}
			if prURL != "" && !slices.Contains(conv.Active.PullRequests, prURL) {
				conv.Active.PullRequests = append(conv.Active.PullRequests, prURL)
			}
		}
		res.TimeSpent = timetracker.FormatDuration(timetracker.Elapsed(cur, m.now()))
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Remote side-effects come after the local completion so a tracker
	// outage can never leave the session half-finished.
	if s.IssueKey != "" {
		if summary != "" && !opts.NoComment {
			res.Commented = m.pushSummaryComment(ctx, s.IssueKey, summary, res.TimeSpent)
		}
		transitioned, err := m.applyCompleteTransition(ctx, s.IssueKey)
		if err != nil {
			return nil, err
		}
		res.Transitioned = transitioned
	}

	logging.Info(ctx, "session completed", "session", s.Name, "time_spent", res.TimeSpent)
	return res, nil
}

// ensureSessionBranch puts the checkout back on the session's branch before
// completion. Auto-switches only when the worktree is clean; otherwise aborts
// with instructions.
func (m *Manager) ensureSessionBranch(s *session.Session) error {
	conv := s.ActiveConversation()
	if s.Type != session.TypeDevelopment || conv == nil || conv.Active == nil || conv.Active.Branch == "" {
		return nil
	}
	repo, err := gitops.Open(conv.Active.ProjectPath)
	if err != nil {
		return nil //nolint:nilerr // work dir without a checkout completes anyway
	}
	current, err := repo.CurrentBranch()
	if err != nil || current == conv.Active.Branch {
		return nil //nolint:nilerr // detached HEAD is the user's business
	}
	clean, err := repo.IsClean()
	if err != nil {
		return err
	}
	if !clean {
		return fmt.Errorf("checkout is on branch %s with uncommitted changes; commit or stash them, then switch to %s before completing", current, conv.Active.Branch)
	}
	if err := repo.Checkout(conv.Active.Branch); err != nil {
		return err
	}
	m.warnf("switched checkout from %s back to session branch %s", current, conv.Active.Branch)
	return nil
}

// offerCommit previews pending worktree changes and offers to commit them,
// then asks for a pull request URL to record on the conversation. Declined
// or failed prompts never block completion.
func (m *Manager) offerCommit(s *session.Session) (bool, string) {
	conv := s.ActiveConversation()
	if s.Type != session.TypeDevelopment || conv == nil || conv.Active == nil {
		return false, ""
	}
	repo, err := gitops.Open(conv.Active.ProjectPath)
	if err != nil {
		return false, ""
	}

	committed := false
	if clean, err := repo.IsClean(); err == nil && !clean {
		changes, dErr := repo.WorktreeDiff()
		if dErr != nil {
			m.warnf("could not diff worktree: %v", dErr)
		}
		for _, c := range changes {
			m.warnf("uncommitted: %s (+%d -%d)", c.File, c.Added, c.Removed)
		}
		committed = m.commitChanges(repo, s.Goal)
	}

	if conv.Active.Branch == "" {
		return committed, ""
	}
	url, err := m.Prompter.Input("Pull request URL to record (empty to skip)", "")
	if err != nil {
		return committed, ""
	}
	return committed, strings.TrimSpace(url)
}

func (m *Manager) commitChanges(repo *gitops.Repo, goal string) bool {
	ok, err := m.Prompter.Confirm("Commit these changes before completing?", true)
	if err != nil || !ok {
		if err == nil {
			m.warnf("worktree has uncommitted changes; commit before opening a pull request")
		}
		return false
	}
	msg, err := m.Prompter.Input("Commit message", goal)
	if err != nil {
		return false
	}
	if msg == "" {
		msg = goal
	}
	if err := repo.CommitAll(msg); err != nil {
		m.warnf("commit failed: %v", err)
		return false
	}
	return true
}

// generateSummary runs the configured summarizer on the redacted transcript.
// Failures degrade to no summary.
func (m *Manager) generateSummary(ctx context.Context, s *session.Session) string {
	gen := summarize.ForMode(m.Config.Summary())
	if gen == nil {
		return ""
	}

	in := summarize.Input{Goal: s.Goal}
	if conv := s.ActiveConversation(); conv != nil && conv.Active != nil {
		in.MessageCount = conv.Active.MessageCount
		if conv.Active.AgentSessionID != "" {
			if ag, err := m.agentFor(); err == nil && ag.SupportsCapture() {
				if path, err := ag.ConversationFilePath(conv.Active.ProjectPath, conv.Active.AgentSessionID); err == nil {
					if raw, err := os.ReadFile(path); err == nil {
						if clean, err := redact.JSONLBytes(raw); err == nil {
							in.Transcript = clean
						} else {
							in.Transcript = raw
						}
					}
				}
			}
		}
	}

	out, err := gen.Generate(ctx, in)
	if err != nil {
		m.warnf("summary generation failed: %v", err)
		return ""
	}
	return out
}

// pushSummaryComment posts the summary to the issue. Best-effort.
func (m *Manager) pushSummaryComment(ctx context.Context, key, summary, timeSpent string) bool {
	trk, err := m.RequireTracker()
	if err != nil {
		m.warnf("summary not posted: %v", err)
		return false
	}
	body := redact.String(summary)
	if timeSpent != "" {
		body += "\n\nTime spent: " + timeSpent
	}
	if err := trk.AddComment(ctx, key, body, m.Config.CommentVisibility); err != nil {
		m.warnf("could not post summary to %s: %v", key, err)
		return false
	}
	return true
}

const transitionSkipOption = "Skip the transition"

// applyCompleteTransition applies the on_complete rule. With prompting
// enabled the issue's currently available workflow transitions feed a menu;
// without it the configured target applies directly. With on_fail=warn a
// tracker failure degrades to a warning; with block it aborts (the session
// is already complete locally either way).
func (m *Manager) applyCompleteTransition(ctx context.Context, key string) (bool, error) {
	rule := m.completeRule()
	if rule.To == "" {
		return false, nil
	}

	trk, err := m.RequireTracker()
	if err != nil {
		if rule.OnFail == config.FailBlock {
			return false, err
		}
		m.warnf("could not transition %s to %s: %v", key, rule.To, err)
		return false, nil
	}

	target := rule.To
	if m.shouldPrompt(rule, "transition_on_complete") {
		target, err = m.pickTransition(ctx, trk, key, rule.To)
		if err != nil {
			return false, err
		}
		if target == "" {
			return false, nil
		}
	}

	if err := trk.Transition(ctx, key, target); err != nil {
		if rule.OnFail == config.FailBlock {
			return false, fmt.Errorf("transition %s to %s: %w", key, target, err)
		}
		m.warnf("could not transition %s to %s: %v", key, target, err)
		return false, nil
	}
	return true, nil
}

// pickTransition asks which workflow transition to apply, offering the
// issue's currently available transitions. When the workflow cannot be
// fetched it degrades to a yes/no on the configured target. Empty means the
// user skipped the transition.
func (m *Manager) pickTransition(ctx context.Context, trk tracker.Tracker, key, configured string) (string, error) {
	options, err := trk.AvailableTransitions(ctx, key)
	if err != nil || len(options) == 0 {
		if err != nil {
			m.warnf("could not list transitions for %s: %v", key, err)
		}
		ok, cErr := m.Prompter.Confirm(fmt.Sprintf("Transition %s to %s?", key, configured), true)
		if cErr != nil {
			return "", cErr
		}
		if !ok {
			return "", nil
		}
		return configured, nil
	}

	states := make([]string, 0, len(options)+1)
	for _, opt := range options {
		states = append(states, opt.ToStatus)
	}
	states = append(states, transitionSkipOption)

	choice, err := m.Prompter.Select(fmt.Sprintf("Transition %s to", key), states)
	if err != nil {
		return "", err
	}
	if choice == transitionSkipOption {
		return "", nil
	}
	return choice, nil
}

func (m *Manager) completeRule() config.TransitionRule {
	if t := m.Config.Transitions; t != nil && t.OnComplete != nil {
		return *t.OnComplete
	}
	return config.TransitionRule{To: "Review", OnFail: config.FailWarn}
}

// shouldPrompt resolves the rule's prompt flag against the prompt policy.
func (m *Manager) shouldPrompt(rule config.TransitionRule, policyName string) bool {
	if rule.Prompt != nil {
		return *rule.Prompt
	}
	switch m.Config.PromptFor(policyName) {
	case config.PromptAlways, config.PromptAsk:
		return true
	case config.PromptNever:
		return false
	}
	return true
}
