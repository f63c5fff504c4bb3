package manager

import (
	"context"

	"github.com/devaiflow/cli/cmd/daf/cli/session"
)

// UpdateOptions are the editable session fields. Zero values leave the field
// untouched; Tags replaces the whole list when non-nil.
type UpdateOptions struct {
	Name      string
	Goal      string
	Workspace string
	Template  string
	Tags      []string
}

// Update edits a session's descriptive fields. Local-only; nothing is pushed
// to the tracker.
func (m *Manager) Update(ctx context.Context, opts UpdateOptions) (*session.Session, error) {
	if err := m.guard("update"); err != nil {
		return nil, err
	}

	var out *session.Session
	err := m.mutate(ctx, opts.Name, func(cur *session.Session) error {
		if opts.Goal != "" {
			cur.Goal = opts.Goal
		}
		if opts.Workspace != "" {
			cur.Workspace = opts.Workspace
		}
		if opts.Template != "" {
			cur.Template = opts.Template
		}
		if opts.Tags != nil {
			cur.Tags = opts.Tags
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
