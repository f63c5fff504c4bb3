package manager

import (
	"context"

	"github.com/devaiflow/cli/cmd/daf/cli/logging"
	"github.com/devaiflow/cli/cmd/daf/cli/session"
	"github.com/devaiflow/cli/cmd/daf/cli/tracker"
)

// SyncResult reports one issue's sync outcome.
type SyncResult struct {
	Key     string
	Created bool
	Updated bool
}

// Sync queries the tracker and creates or updates one session per matching
// issue, named by the issue key. Idempotent: an unchanged session is not
// rewritten, so a second run leaves the store byte-identical. Local-only
// fields (notes, work intervals, conversations, branch) are never touched.
func (m *Manager) Sync(ctx context.Context, filter tracker.ListFilter) ([]SyncResult, error) {
	if err := m.guard("sync"); err != nil {
		return nil, err
	}
	trk, err := m.RequireTracker()
	if err != nil {
		return nil, err
	}
	if filter.Project == "" {
		filter.Project = m.Config.Project
	}

	// Remote read outside the lock; each write below re-loads and compares,
	// so a concurrent local mutation is never clobbered.
	tickets, err := trk.ListTickets(ctx, filter)
	if err != nil {
		return nil, err
	}

	results := make([]SyncResult, 0, len(tickets))
	for _, ticket := range tickets {
		res := SyncResult{Key: ticket.Key}
		err := m.Store.WithLock(ctx, func() error {
			cur, err := m.Store.Load(ticket.Key)
			if err != nil {
				return err
			}
			if cur == nil {
				s := session.New(ticket.Key, ticket.Summary, session.TypeDevelopment, m.now())
				s.IssueKey = ticket.Key
				applyTicketFields(s, ticket)
				res.Created = true
				return m.Store.Save(s)
			}
			if !applyTicketFields(cur, ticket) {
				return nil
			}
			res.Updated = true
			cur.LastActive = m.now()
			return m.Store.Save(cur)
		})
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}

	logging.Info(ctx, "sync finished", "issues", len(results))
	return results, nil
}

// applyTicketFields copies remote fields onto the session and reports whether
// anything changed.
func applyTicketFields(s *session.Session, ticket tracker.Ticket) bool {
	changed := false
	if s.IssueSummary != ticket.Summary {
		s.IssueSummary = ticket.Summary
		changed = true
	}
	if s.IssueStatus != ticket.Status {
		s.IssueStatus = ticket.Status
		changed = true
	}
	if s.IssueType != ticket.Type {
		s.IssueType = ticket.Type
		changed = true
	}
	return changed
}
