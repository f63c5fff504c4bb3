package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/devaiflow/cli/cmd/daf/cli/agent"
	"github.com/devaiflow/cli/cmd/daf/cli/capture"
	"github.com/devaiflow/cli/cmd/daf/cli/gitops"
	"github.com/devaiflow/cli/cmd/daf/cli/logging"
	"github.com/devaiflow/cli/cmd/daf/cli/paths"
	"github.com/devaiflow/cli/cmd/daf/cli/prompt"
	"github.com/devaiflow/cli/cmd/daf/cli/safety"
	"github.com/devaiflow/cli/cmd/daf/cli/session"
	"github.com/devaiflow/cli/cmd/daf/cli/timetracker"
	"github.com/devaiflow/cli/redact"
)

// OpenOptions are the inputs to Open.
type OpenOptions struct {
	// Name is a session name or issue key; empty means latest-active.
	Name    string
	WorkDir string // switch the active conversation to this repo first

	// NewConversation archives the current context and starts a fresh one.
	NewConversation bool
}

// Open resumes work on a session: reopens the tracker issue when it sits in
// a closed state, starts the work interval, launches or resumes the agent,
// and binds the captured conversation id. It returns the agent's exit code.
func (m *Manager) Open(ctx context.Context, opts OpenOptions) (int, error) {
	if err := m.guard("open"); err != nil {
		return 0, err
	}
	s, err := m.ResolveSession(opts.Name)
	if err != nil {
		return 0, err
	}
	if s.Status == session.StatusComplete {
		return 0, fmt.Errorf("session %q is complete; create a new session to continue the work", s.Name)
	}

	// Remote read + possible reopen happen before the lock.
	if s.IssueKey != "" {
		if err := m.maybeReopenIssue(ctx, s); err != nil {
			return 0, err
		}
	}

	if err := m.maybeCatchUpBranch(s); err != nil {
		return 0, err
	}

	if opts.WorkDir != "" {
		if err := m.switchWorkDir(ctx, s, opts.WorkDir); err != nil {
			return 0, err
		}
		s, err = m.Get(s.Name)
		if err != nil {
			return 0, err
		}
	}

	ag, err := m.agentFor()
	if err != nil {
		return 0, err
	}

	if s.Type == session.TypeTicketCreation {
		if err := m.refreshTempDir(ctx, s, ag); err != nil {
			return 0, err
		}
		s, err = m.Get(s.Name)
		if err != nil {
			return 0, err
		}
	}

	if opts.NewConversation {
		if err := m.archiveActiveConversation(ctx, s); err != nil {
			return 0, err
		}
	}

	// Locked step: start the work interval.
	err = m.mutate(ctx, s.Name, func(cur *session.Session) error {
		timetracker.Start(cur, m.User, m.now())
		return nil
	})
	if err != nil {
		return 0, err
	}

	exitCode, runErr := m.runAgent(ctx, s.Name, ag)

	// Second locked step: close the interval even when the run failed.
	// A parent exit path that leaves the interval open loses time silently.
	if stopErr := m.mutate(ctx, s.Name, func(cur *session.Session) error {
		timetracker.Stop(cur, m.now())
		m.refreshMessageCount(cur, ag)
		return nil
	}); stopErr != nil && runErr == nil {
		runErr = stopErr
	}
	return exitCode, runErr
}

// ResolveSession turns a session name, issue key, or empty string into a
// session: first by exact name, then by issue key, then latest-active.
func (m *Manager) ResolveSession(nameOrKey string) (*session.Session, error) {
	if nameOrKey != "" {
		if s, err := m.Get(nameOrKey); err == nil {
			return s, nil
		} else if !errIsNotFound(err) {
			return nil, err
		}
	}

	all, _, err := m.Store.LoadAll()
	if err != nil {
		return nil, err
	}
	if nameOrKey != "" {
		for _, s := range all {
			if s.IssueKey == nameOrKey {
				return s, nil
			}
		}
		return nil, &NotFoundError{Name: nameOrKey}
	}

	var latest *session.Session
	for _, s := range all {
		if s.Status == session.StatusComplete {
			continue
		}
		if latest == nil || s.LastActive.After(latest.LastActive) {
			latest = s
		}
	}
	if latest == nil {
		return nil, &NotFoundError{Name: "(no open sessions)"}
	}
	return latest, nil
}

// archiveActiveConversation summarizes and archives the current context and
// installs a fresh one chaining the prior agent session id.
func (m *Manager) archiveActiveConversation(ctx context.Context, s *session.Session) error {
	conv := s.ActiveConversation()
	if conv == nil || conv.Active == nil {
		return nil
	}
	summary := m.generateSummary(ctx, s)
	return m.mutate(ctx, s.Name, func(cur *session.Session) error {
		c := cur.ActiveConversation()
		if c == nil || c.Active == nil {
			return nil
		}
		c.Archive(summary, m.now())
		return nil
	})
}

// maybeReopenIssue proposes a transition back to in-progress when the bound
// issue is in a configured closed state. The prompt respects --json via the
// Prompter; the transition itself is best-effort.
func (m *Manager) maybeReopenIssue(ctx context.Context, s *session.Session) error {
	trk, err := m.RequireTracker()
	if err != nil {
		m.warnf("tracker unavailable: %v", err)
		return nil //nolint:nilerr // graceful degradation when the tracker is down
	}
	ticket, err := trk.GetTicket(ctx, s.IssueKey)
	if err != nil {
		m.warnf("could not fetch issue %s: %v", s.IssueKey, err)
		return nil //nolint:nilerr // see above
	}

	closed := false
	for _, state := range m.Config.ReopenFrom() {
		if strings.EqualFold(ticket.Status, state) {
			closed = true
			break
		}
	}
	if !closed {
		return nil
	}

	target := "In Progress"
	if t := m.Config.Transitions; t != nil && t.OnOpen != nil && t.OnOpen.To != "" {
		target = t.OnOpen.To
	}
	ok, err := m.Prompter.Confirm(
		fmt.Sprintf("Issue %s is %s. Transition it to %s?", s.IssueKey, ticket.Status, target), true)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := trk.Transition(ctx, s.IssueKey, target); err != nil {
		m.warnf("could not transition %s: %v", s.IssueKey, err)
	}
	return nil
}

// maybeCatchUpBranch proposes merging the base branch in when the session
// branch has fallen behind it. Merge conflicts abort with the conflicting
// paths; declining the merge is fine.
func (m *Manager) maybeCatchUpBranch(s *session.Session) error {
	conv := s.ActiveConversation()
	if s.Type != session.TypeDevelopment || conv == nil || conv.Active == nil {
		return nil
	}
	branch, base := conv.Active.Branch, conv.Active.BaseBranch
	if branch == "" || base == "" {
		return nil
	}
	repo, err := gitops.Open(conv.Active.ProjectPath)
	if err != nil {
		return nil //nolint:nilerr // no checkout, nothing to catch up
	}
	behind, err := repo.CommitsAhead(base, branch)
	if err != nil || behind == 0 {
		return nil //nolint:nilerr // unknown history is not worth blocking open
	}

	ok, err := m.Prompter.Confirm(
		fmt.Sprintf("Branch %s is %d commits behind %s. Merge %s into it?", branch, behind, base, base), true)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	conflicts, err := repo.Merge(base)
	if err != nil {
		if len(conflicts) > 0 {
			return fmt.Errorf("merging %s into %s conflicts in: %s", base, branch, strings.Join(conflicts, ", "))
		}
		return err
	}
	return nil
}

// refreshTempDir replaces a ticket_creation session's throwaway work
// directory on reopen. The agent keys its conversation file by the encoded
// work directory path, so the transcript is copied under the new directory's
// key before the old one is torn down; the stored agent session id never
// changes. First opens, where no id is bound yet, keep the directory minted
// at creation.
func (m *Manager) refreshTempDir(ctx context.Context, s *session.Session, ag agent.Agent) error {
	conv := s.ActiveConversation()
	if conv == nil || conv.Active == nil || conv.TempDir == "" || conv.Active.AgentSessionID == "" {
		return nil
	}
	oldDir := conv.TempDir

	newDir, err := os.MkdirTemp("", "daf-ticket-*")
	if err != nil {
		return err
	}
	if ag.SupportsCapture() {
		id := conv.Active.AgentSessionID
		src, sErr := ag.ConversationFilePath(oldDir, id)
		dst, dErr := ag.ConversationFilePath(newDir, id)
		if sErr == nil && dErr == nil && src != dst {
			if cErr := capture.CopyTranscript(src, dst); cErr != nil {
				m.warnf("could not relocate conversation transcript: %v", cErr)
			}
		}
	}
	if err := os.RemoveAll(oldDir); err != nil {
		m.warnf("could not remove old work directory %s: %v", oldDir, err)
	}

	oldKey := s.ActiveWorkDir
	repoName := filepath.Base(newDir)
	return m.mutate(ctx, s.Name, func(cur *session.Session) error {
		c, ok := cur.Conversations[oldKey]
		if !ok || c.Active == nil {
			return nil
		}
		delete(cur.Conversations, oldKey)
		c.RepoName = repoName
		c.TempDir = newDir
		c.Active.ProjectPath = newDir
		cur.Conversations[repoName] = c
		cur.ActiveWorkDir = repoName
		return nil
	})
}

// switchWorkDir makes workDir's repo the active conversation, creating a
// conversation for it on first use.
func (m *Manager) switchWorkDir(ctx context.Context, s *session.Session, workDir string) error {
	abs, err := m.resolveWorkDir(workDir)
	if err != nil {
		return err
	}
	repoName := repoNameFor(abs)
	return m.mutate(ctx, s.Name, func(cur *session.Session) error {
		if _, ok := cur.Conversations[repoName]; !ok {
			now := m.now()
			cur.Conversations[repoName] = &session.Conversation{
				RepoName: repoName,
				Active: &session.ConversationContext{
					ProjectPath: abs,
					CreatedAt:   now,
					LastActive:  now,
				},
			}
		}
		cur.ActiveWorkDir = repoName
		return nil
	})
}

// runAgent launches or resumes the agent for the active conversation and
// waits for it to exit.
func (m *Manager) runAgent(ctx context.Context, name string, ag agent.Agent) (int, error) {
	s, err := m.Get(name)
	if err != nil {
		return 0, err
	}
	conv := s.ActiveConversation()
	if conv == nil || conv.Active == nil {
		return 0, fmt.Errorf("session %q has no active conversation", name)
	}
	workDir := conv.Active.ProjectPath

	env := map[string]string{
		safety.EnvInsideAgent:    "1",
		safety.EnvAgentSessionID: s.Name,
	}

	if conv.Active.AgentSessionID != "" {
		return m.resumeAgent(ctx, s, ag, workDir, conv.Active.AgentSessionID, env)
	}
	return m.launchAgent(ctx, s, ag, workDir, env)
}

func (m *Manager) resumeAgent(ctx context.Context, s *session.Session, ag agent.Agent, workDir, id string, env map[string]string) (int, error) {
	if m.MockMode {
		return 0, nil
	}
	handle, err := ag.Resume(ctx, agent.ResumeSpec{WorkDir: workDir, AgentSessionID: id, Env: env})
	if err != nil {
		return 0, err
	}
	logging.Info(ctx, "agent resumed", "session", s.Name, "agent_session_id", id)
	return handle.Wait()
}

func (m *Manager) launchAgent(ctx context.Context, s *session.Session, ag agent.Agent, workDir string, env map[string]string) (int, error) {
	promptText := m.buildPrompt(ctx, s)

	// Capture path: snapshot before spawn, poll after.
	var watcher *capture.Watcher
	if ag.SupportsCapture() {
		dir, err := ag.ConversationDir(workDir)
		if err != nil {
			return 0, err
		}
		watcher, err = capture.NewWatcher(dir)
		if err != nil {
			return 0, err
		}
	}

	var handle *agent.ProcessHandle
	if !m.MockMode {
		var err error
		handle, err = ag.Launch(ctx, agent.LaunchSpec{WorkDir: workDir, Prompt: promptText, Env: env})
		if err != nil {
			return 0, err
		}
	}

	id, err := m.captureID(ctx, watcher)
	if err != nil {
		return 0, err
	}
	if err := m.bindAgentSessionID(ctx, s.Name, id); err != nil {
		return 0, err
	}

	if handle == nil {
		return 0, nil
	}
	return handle.Wait()
}

// captureID waits for the agent's conversation file, falling back to asking
// the user (or synthesizing an id when the agent has no files to watch).
func (m *Manager) captureID(ctx context.Context, watcher *capture.Watcher) (string, error) {
	if watcher == nil {
		return uuid.NewString(), nil
	}
	res, err := watcher.Wait(ctx)
	if err == nil {
		return res.AgentSessionID, nil
	}
	if !errors.Is(err, capture.ErrTimeout) {
		return "", err
	}

	answer, pErr := m.Prompter.Input("The agent's conversation file did not appear. Enter the conversation id", "")
	if pErr != nil {
		return "", pErr
	}
	if vErr := paths.ValidateAgentSessionID(answer); vErr != nil {
		return "", vErr
	}
	return answer, nil
}

// bindAgentSessionID writes a captured id into the active conversation in a
// locked step, enforcing global uniqueness across all sessions.
func (m *Manager) bindAgentSessionID(ctx context.Context, name, id string) error {
	taken, err := m.Store.AgentSessionIDExists(id, name)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("agent session id %q is already bound to another session", id)
	}
	return m.mutate(ctx, name, func(cur *session.Session) error {
		conv := cur.ActiveConversation()
		if conv == nil || conv.Active == nil {
			return fmt.Errorf("session %q has no active conversation", name)
		}
		conv.Active.AgentSessionID = id
		conv.Active.LastActive = m.now()
		return nil
	})
}

// refreshMessageCount recounts transcript messages for capture-capable
// agents.
func (m *Manager) refreshMessageCount(s *session.Session, ag agent.Agent) {
	conv := s.ActiveConversation()
	if conv == nil || conv.Active == nil || conv.Active.AgentSessionID == "" || !ag.SupportsCapture() {
		return
	}
	path, err := ag.ConversationFilePath(conv.Active.ProjectPath, conv.Active.AgentSessionID)
	if err != nil {
		return
	}
	if n := capture.CountMessages(path); n > 0 {
		conv.Active.MessageCount = n
	}
}

// buildPrompt assembles the launch prompt from context files, the bound
// issue, and the goal. External text is redacted.
func (m *Manager) buildPrompt(ctx context.Context, s *session.Session) string {
	in := prompt.Inputs{
		Goal:              s.Goal,
		SessionType:       s.Type,
		AgentCanReadFiles: true,
		Redact:            redact.String,
	}

	root := m.Store.Root()
	for _, name := range paths.ContextFileNames {
		path := root + string(os.PathSeparator) + name
		if _, err := os.Stat(path); err == nil {
			in.ContextFiles = append(in.ContextFiles, prompt.ContextFile{Name: name, Path: path})
		}
	}

	if s.IssueKey != "" {
		if trk, err := m.RequireTracker(); err == nil {
			if detail, err := trk.GetTicketDetailed(ctx, s.IssueKey); err == nil {
				in.Issue = detail
			}
		}
	}
	return prompt.Assemble(in)
}

func repoNameFor(absPath string) string {
	parts := strings.Split(strings.TrimRight(absPath, "/"), "/")
	return parts[len(parts)-1]
}
