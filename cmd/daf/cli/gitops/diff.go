package gitops

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// ChangePreview is shown to the user before the commit offer during
// complete: one entry per modified file with a compact line diff.
type ChangePreview struct {
	File    string
	Added   int
	Removed int
	Patch   string
}

// PreviewChange computes a line-oriented diff between two versions of a
// file's content.
func PreviewChange(file, oldContent, newContent string) ChangePreview {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	p := ChangePreview{File: file}
	var patch strings.Builder
	for _, d := range diffs {
		for _, line := range splitLines(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				p.Added++
				fmt.Fprintf(&patch, "+%s\n", line)
			case diffmatchpatch.DiffDelete:
				p.Removed++
				fmt.Fprintf(&patch, "-%s\n", line)
			case diffmatchpatch.DiffEqual:
				// context lines are elided from the preview
			}
		}
	}
	p.Patch = patch.String()
	return p
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// WorktreeDiff previews every modified file in the worktree against HEAD.
func (r *Repo) WorktreeDiff() ([]ChangePreview, error) {
	w, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	status, err := w.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	head, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}
	commit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD tree: %w", err)
	}

	var previews []ChangePreview
	for file, st := range status {
		if st.Worktree == git.Unmodified && st.Staging == git.Unmodified {
			continue
		}
		var oldContent string
		if f, err := tree.File(file); err == nil {
			if content, err := f.Contents(); err == nil {
				oldContent = content
			}
		}
		newContent := readWorktreeFile(w, file)
		previews = append(previews, PreviewChange(file, oldContent, newContent))
	}
	return previews, nil
}

func readWorktreeFile(w *git.Worktree, file string) string {
	f, err := w.Filesystem.Open(file)
	if err != nil {
		return ""
	}
	defer f.Close() //nolint:errcheck
	var b strings.Builder
	buf := make([]byte, 32*1024)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			b.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	return b.String()
}
