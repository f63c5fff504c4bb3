package store

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/devaiflow/cli/cmd/daf/cli/paths"
	"github.com/devaiflow/cli/cmd/daf/cli/session"
)

const (
	noteTimeFormat   = "2006-01-02 15:04:05 MST"
	notePushedMarker = "[pushed]"
)

// noteHeading renders a note's metadata line: timestamp, optional author in
// parentheses, and the pushed marker once the note reached the tracker.
func noteHeading(note session.Note) string {
	h := "## " + note.CreatedAt.Format(noteTimeFormat)
	if note.Author != "" {
		h += " (" + note.Author + ")"
	}
	if note.Pushed {
		h += " " + notePushedMarker
	}
	return h
}

// parseNoteHeading inverts noteHeading. Returns false for lines that are not
// note headings, including "## " prose inside a note body.
func parseNoteHeading(line string) (session.Note, bool) {
	if !strings.HasPrefix(line, "## ") {
		return session.Note{}, false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(line, "## "))

	var n session.Note
	if strings.HasSuffix(rest, notePushedMarker) {
		n.Pushed = true
		rest = strings.TrimSpace(strings.TrimSuffix(rest, notePushedMarker))
	}
	if strings.HasSuffix(rest, ")") {
		if i := strings.LastIndex(rest, " ("); i >= 0 {
			n.Author = rest[i+2 : len(rest)-1]
			rest = rest[:i]
		}
	}
	ts, err := time.Parse(noteTimeFormat, rest)
	if err != nil {
		return session.Note{}, false
	}
	n.CreatedAt = ts
	return n, true
}

// AppendNote appends a timestamped note to the session's notes.md.
// Notes are append-only; editing happens in the user's editor, not here.
func (s *Store) AppendNote(name string, note session.Note) error {
	if err := paths.ValidateSessionName(name); err != nil {
		return fmt.Errorf("invalid session name: %w", err)
	}
	if strings.TrimSpace(note.Text) == "" {
		return fmt.Errorf("note text must not be empty")
	}

	f, err := os.OpenFile(paths.NotesFile(s.root, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // name validated above
	if err != nil {
		return fmt.Errorf("failed to open notes file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	entry := fmt.Sprintf("%s\n\n%s\n\n", noteHeading(note), strings.TrimRight(note.Text, "\n"))
	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("failed to append note: %w", err)
	}
	return nil
}

// ReadNotes parses notes.md back into notes, oldest first. A missing file
// yields an empty slice. Headings that do not parse as timestamps are folded
// into the preceding note's text.
func (s *Store) ReadNotes(name string) ([]session.Note, error) {
	if err := paths.ValidateSessionName(name); err != nil {
		return nil, fmt.Errorf("invalid session name: %w", err)
	}

	data, err := os.ReadFile(paths.NotesFile(s.root, name)) //nolint:gosec // name validated above
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read notes file: %w", err)
	}

	var notes []session.Note
	var current *session.Note
	for _, line := range strings.Split(string(data), "\n") {
		if n, ok := parseNoteHeading(line); ok {
			if current != nil {
				current.Text = strings.TrimSpace(current.Text)
				notes = append(notes, *current)
			}
			current = &n
			continue
		}
		if current != nil {
			current.Text += line + "\n"
		}
	}
	if current != nil {
		current.Text = strings.TrimSpace(current.Text)
		notes = append(notes, *current)
	}
	return notes, nil
}

// MarkNotePushed records that the note created at createdAt reached the
// tracker. A note that is already marked, or a timestamp with no matching
// note, is a no-op.
func (s *Store) MarkNotePushed(name string, createdAt time.Time) error {
	if err := paths.ValidateSessionName(name); err != nil {
		return fmt.Errorf("invalid session name: %w", err)
	}

	path := paths.NotesFile(s.root, name)
	data, err := os.ReadFile(path) //nolint:gosec // name validated above
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read notes file: %w", err)
	}

	// Headings carry second precision, so the match is on the formatted
	// timestamp rather than time.Equal.
	want := "## " + createdAt.Format(noteTimeFormat)
	lines := strings.Split(string(data), "\n")
	changed := false
	for i, line := range lines {
		if !strings.HasPrefix(line, want) || strings.HasSuffix(line, notePushedMarker) {
			continue
		}
		lines[i] = line + " " + notePushedMarker
		changed = true
	}
	if !changed {
		return nil
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600); err != nil {
		return fmt.Errorf("failed to update notes file: %w", err)
	}
	return nil
}
