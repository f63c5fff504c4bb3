package manager

import (
	"context"
	"fmt"

	"github.com/devaiflow/cli/cmd/daf/cli/logging"
	"github.com/devaiflow/cli/cmd/daf/cli/paths"
	"github.com/devaiflow/cli/cmd/daf/cli/session"
)

// Link binds a session to a tracker issue. The issue must exist: a link to a
// missing issue is fatal, unlike the best-effort fetch on creation, because
// the user named the issue explicitly.
func (m *Manager) Link(ctx context.Context, name, issueKey string) error {
	if err := m.guard("link"); err != nil {
		return err
	}
	if !paths.IsIssueKey(issueKey) {
		return fmt.Errorf("%q is not an issue key (expected PREFIX-123)", issueKey)
	}
	s, err := m.Get(name)
	if err != nil {
		return err
	}
	if s.IssueKey != "" && s.IssueKey != issueKey {
		ok, pErr := m.Prompter.Confirm(
			fmt.Sprintf("Session %s is linked to %s. Relink to %s?", name, s.IssueKey, issueKey), false)
		if pErr != nil {
			return pErr
		}
		if !ok {
			return ErrCancelled
		}
	}

	trk, err := m.RequireTracker()
	if err != nil {
		return err
	}
	ticket, err := trk.GetTicket(ctx, issueKey)
	if err != nil {
		return err
	}

	err = m.mutate(ctx, name, func(cur *session.Session) error {
		cur.IssueKey = ticket.Key
		cur.IssueSummary = ticket.Summary
		cur.IssueStatus = ticket.Status
		cur.IssueType = ticket.Type
		return nil
	})
	if err != nil {
		return err
	}
	logging.Info(ctx, "session linked", "session", name, "issue", ticket.Key)
	return nil
}

// Unlink detaches the session from its issue, clearing only the
// tracker-derived fields. Goal, notes, conversations, and time stay.
func (m *Manager) Unlink(ctx context.Context, name string) error {
	if err := m.guard("unlink"); err != nil {
		return err
	}
	return m.mutate(ctx, name, func(cur *session.Session) error {
		if cur.IssueKey == "" {
			return fmt.Errorf("session %q is not linked to an issue", name)
		}
		cur.IssueKey = ""
		cur.IssueSummary = ""
		cur.IssueStatus = ""
		cur.IssueType = ""
		return nil
	})
}
