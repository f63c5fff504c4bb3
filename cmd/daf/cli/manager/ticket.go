package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/devaiflow/cli/cmd/daf/cli/config"
	"github.com/devaiflow/cli/cmd/daf/cli/logging"
	"github.com/devaiflow/cli/cmd/daf/cli/paths"
	"github.com/devaiflow/cli/cmd/daf/cli/session"
	"github.com/devaiflow/cli/cmd/daf/cli/tracker"
)

// TicketNew creates a ticket_creation session with a throwaway work
// directory and launches the agent with a read-only analysis prompt. The
// session is renamed to creation-<KEY> by RecordCreatedIssue once the user
// has created the issue.
func (m *Manager) TicketNew(ctx context.Context, name, goal string) (int, error) {
	if err := m.guard("jira new"); err != nil {
		return 0, err
	}
	if name == "" {
		name = fmt.Sprintf("creation-draft-%d", m.now().Unix())
	}
	if err := paths.ValidateSessionName(name); err != nil {
		return 0, err
	}

	tempDir, err := os.MkdirTemp("", "daf-ticket-*")
	if err != nil {
		return 0, err
	}

	now := m.now()
	s := session.New(name, goal, session.TypeTicketCreation, now)
	repoName := filepath.Base(tempDir)
	s.Conversations[repoName] = &session.Conversation{
		RepoName: repoName,
		TempDir:  tempDir,
		Active: &session.ConversationContext{
			ProjectPath: tempDir,
			CreatedAt:   now,
			LastActive:  now,
		},
	}
	s.ActiveWorkDir = repoName

	err = m.Store.WithLock(ctx, func() error {
		existing, loadErr := m.Store.Load(name)
		if loadErr != nil {
			return loadErr
		}
		if existing != nil {
			return &ConflictError{Name: name}
		}
		return m.Store.Save(s)
	})
	if err != nil {
		return 0, err
	}
	logging.Info(ctx, "ticket-creation session created", "session", name, "temp_dir", tempDir)

	return m.Open(ctx, OpenOptions{Name: name})
}

// Investigate creates an investigation session: notes and time tracking like
// development, but no branch and no git/PR steps on completion.
func (m *Manager) Investigate(ctx context.Context, opts NewOptions) (*session.Session, error) {
	if err := m.guard("investigate"); err != nil {
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

	now := m.now()
	s := session.New(opts.Name, opts.Goal, session.TypeInvestigation, now)
	repoName := filepath.Base(workDir)
	s.Conversations[repoName] = &session.Conversation{
		RepoName: repoName,
		Active: &session.ConversationContext{
			ProjectPath: workDir,
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
	return s, nil
}

// CreateIssue resolves field aliases through the backend catalog, rejects
// mixed system/custom batches, and creates the issue. When invoked from a
// ticket_creation session, the session is renamed to creation-<KEY>.
func (m *Manager) CreateIssue(ctx context.Context, kind string, fields map[string]string) (*tracker.Ticket, error) {
	trk, err := m.RequireTracker()
	if err != nil {
		return nil, err
	}
	resolved, err := m.resolveFields(fields)
	if err != nil {
		return nil, err
	}

	ticket, err := trk.CreateIssue(ctx, kind, resolved)
	if err != nil {
		return nil, err
	}
	logging.Info(ctx, "issue created", "key", ticket.Key, "kind", kind)

	if active, aErr := m.Active(); aErr == nil && active.Type == session.TypeTicketCreation {
		if rErr := m.RecordCreatedIssue(ctx, active.Name, ticket.Key); rErr != nil {
			m.warnf("issue %s created but session rename failed: %v", ticket.Key, rErr)
		}
	}
	return ticket, nil
}

// UpdateIssue resolves field aliases and applies the update.
func (m *Manager) UpdateIssue(ctx context.Context, key string, fields map[string]string) error {
	trk, err := m.RequireTracker()
	if err != nil {
		return err
	}
	resolved, err := m.resolveFields(fields)
	if err != nil {
		return err
	}
	return trk.UpdateIssue(ctx, key, resolved)
}

// RecordCreatedIssue binds a freshly created issue to a ticket_creation
// session and renames it to creation-<KEY>.
func (m *Manager) RecordCreatedIssue(ctx context.Context, name, key string) error {
	newName := "creation-" + key
	return m.Store.WithLock(ctx, func() error {
		s, err := m.Store.Load(name)
		if err != nil {
			return err
		}
		if s == nil {
			return &NotFoundError{Name: name}
		}
		s.IssueKey = key
		s.LastActive = m.now()
		if err := m.Store.Save(s); err != nil {
			return err
		}
		if name == newName {
			return nil
		}
		return m.Store.Rename(name, newName)
	})
}

// resolveFields maps user-facing aliases and display names to field ids via
// the backend catalog, and rejects batches mixing system and custom fields.
// Without a cached catalog, ids pass through untouched.
func (m *Manager) resolveFields(fields map[string]string) (map[string]any, error) {
	bc, err := config.LoadBackend(m.Store.Root(), m.BackendName())
	if err != nil {
		return nil, err
	}

	resolved := make(map[string]any, len(fields))
	var ids []string
	for alias, value := range fields {
		id := alias
		if f, ok := config.ResolveField(m.Config, bc, alias); ok {
			id = f.ID
		}
		resolved[id] = value
		ids = append(ids, id)
	}
	if bc != nil && bc.Catalog != nil {
		if err := bc.Catalog.CheckCategories(ids); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

func (m *Manager) BackendName() string {
	if m.Config.Backend != "" {
		return m.Config.Backend
	}
	return "default"
}
