package manager

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/devaiflow/cli/cmd/daf/cli/session"
	"github.com/devaiflow/cli/cmd/daf/cli/timetracker"
)

// Pause closes the open work interval and marks the session paused.
func (m *Manager) Pause(ctx context.Context, name string) error {
	if err := m.guard("pause"); err != nil {
		return err
	}
	return m.mutate(ctx, name, func(cur *session.Session) error {
		if cur.Status == session.StatusComplete {
			return fmt.Errorf("session %q is complete", name)
		}
		timetracker.Pause(cur, m.now())
		cur.Status = session.StatusPaused
		return nil
	})
}

// Resume reopens time tracking on a paused session.
func (m *Manager) Resume(ctx context.Context, name string) error {
	if err := m.guard("resume"); err != nil {
		return err
	}
	return m.mutate(ctx, name, func(cur *session.Session) error {
		if cur.Status == session.StatusComplete {
			return fmt.Errorf("session %q is complete", name)
		}
		timetracker.Resume(cur, m.User, m.now())
		cur.Status = session.StatusInProgress
		return nil
	})
}

// TimeEntry is one session's line in the time report.
type TimeEntry struct {
	Name     string
	IssueKey string
	Status   session.Status
	Elapsed  time.Duration
	Running  bool
}

// TimeReport aggregates tracked time per session, most time first. With a
// name it reports that one session only.
func (m *Manager) TimeReport(name string) ([]TimeEntry, error) {
	var sessions []*session.Session
	if name != "" {
		s, err := m.Get(name)
		if err != nil {
			return nil, err
		}
		sessions = []*session.Session{s}
	} else {
		all, _, err := m.Store.LoadAll()
		if err != nil {
			return nil, err
		}
		sessions = all
	}

	now := m.now()
	entries := make([]TimeEntry, 0, len(sessions))
	for _, s := range sessions {
		entries = append(entries, TimeEntry{
			Name:     s.Name,
			IssueKey: s.IssueKey,
			Status:   s.Status,
			Elapsed:  timetracker.Elapsed(s, now),
			Running:  s.TimeState == session.TimeRunning,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Elapsed != entries[j].Elapsed {
			return entries[i].Elapsed > entries[j].Elapsed
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}
