package manager

import (
	"context"
	"strings"

	"github.com/devaiflow/cli/cmd/daf/cli/session"
	"github.com/devaiflow/cli/redact"
)

// AddNote appends a note to the session's local log and, when push is set,
// mirrors it to the issue as a comment. The local write is authoritative: a
// failed push leaves the note saved and warns.
func (m *Manager) AddNote(ctx context.Context, name, text string, push bool) error {
	if err := m.guard("note add"); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	createdAt := m.now()

	var issueKey string
	err := m.Store.WithLock(ctx, func() error {
		s, err := m.Store.Load(name)
		if err != nil {
			return err
		}
		if s == nil {
			return &NotFoundError{Name: name}
		}
		issueKey = s.IssueKey
		return m.Store.AppendNote(name, session.Note{CreatedAt: createdAt, Author: m.User, Text: text})
	})
	if err != nil {
		return err
	}

	if !push {
		return nil
	}
	if issueKey == "" {
		m.warnf("note saved locally; session has no linked issue to push to")
		return nil
	}
	trk, err := m.RequireTracker()
	if err != nil {
		m.warnf("note saved locally; push failed: %v", err)
		return nil //nolint:nilerr // local write already succeeded
	}
	if err := trk.AddComment(ctx, issueKey, redact.String(text), m.Config.CommentVisibility); err != nil {
		m.warnf("note saved locally; push to %s failed: %v", issueKey, err)
		return nil //nolint:nilerr // see above
	}

	// The pushed marker is what lets a later sync or re-push skip this note,
	// so a failure to record it is worth a warning of its own.
	if err := m.Store.WithLock(ctx, func() error {
		return m.Store.MarkNotePushed(name, createdAt)
	}); err != nil {
		m.warnf("note pushed but could not be marked as pushed: %v", err)
	}
	return nil
}

// Notes returns the parsed local note log.
func (m *Manager) Notes(name string) ([]session.Note, error) {
	if _, err := m.Get(name); err != nil {
		return nil, err
	}
	return m.Store.ReadNotes(name)
}
