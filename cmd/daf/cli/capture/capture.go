// Package capture binds a freshly spawned agent conversation to its
// identifier. The agent names its conversation file only after it starts, so
// daf snapshots the conversation directory before the spawn and polls for a
// new file afterwards.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/devaiflow/cli/cmd/daf/cli/logging"
	"github.com/devaiflow/cli/cmd/daf/cli/paths"
)

const (
	// DefaultPollInterval is how often the conversation directory is re-read.
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultTimeout bounds the whole capture. On expiry the caller falls
	// back to asking the user for the id.
	DefaultTimeout = 10 * time.Second

	transcriptSuffix = ".jsonl"
)

// ErrTimeout is returned when no new conversation file appeared in time.
var ErrTimeout = errors.New("timed out waiting for the agent to create its conversation file")

// Result is a successful capture.
type Result struct {
	AgentSessionID string
	Path           string
	// Ambiguous is set when more than one new file appeared and the most
	// recently modified one was chosen.
	Ambiguous bool
}

// Watcher observes one conversation directory across an agent spawn.
type Watcher struct {
	Dir      string
	Interval time.Duration
	Timeout  time.Duration

	baseline map[string]bool
}

// NewWatcher snapshots the directory's current transcript files. Call before
// launching the agent. A missing directory is fine; the agent creates it.
func NewWatcher(dir string) (*Watcher, error) {
	w := &Watcher{Dir: dir, Interval: DefaultPollInterval, Timeout: DefaultTimeout}
	baseline, err := w.scan()
	if err != nil {
		return nil, err
	}
	w.baseline = baseline
	return w, nil
}

// scan returns the set of transcript stems currently present.
func (w *Watcher) scan() (map[string]bool, error) {
	entries, err := os.ReadDir(w.Dir)
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation directory: %w", err)
	}
	stems := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), transcriptSuffix) {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), transcriptSuffix)
		if paths.ValidateAgentSessionID(stem) != nil {
			continue
		}
		stems[stem] = true
	}
	return stems, nil
}

// Wait polls until a transcript file not present in the baseline appears,
// returning its stem as the agent session id. When several new files appear
// in one poll, the most recently modified wins and the result is flagged
// ambiguous.
func (w *Watcher) Wait(ctx context.Context) (*Result, error) {
	deadline := time.Now().Add(w.Timeout)
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		current, err := w.scan()
		if err != nil {
			return nil, err
		}
		var fresh []string
		for stem := range current {
			if !w.baseline[stem] {
				fresh = append(fresh, stem)
			}
		}
		if len(fresh) > 0 {
			return w.pick(ctx, fresh)
		}
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Watcher) pick(ctx context.Context, fresh []string) (*Result, error) {
	chosen := fresh[0]
	if len(fresh) > 1 {
		var latest time.Time
		for _, stem := range fresh {
			info, err := os.Stat(filepath.Join(w.Dir, stem+transcriptSuffix))
			if err != nil {
				continue
			}
			if info.ModTime().After(latest) {
				latest = info.ModTime()
				chosen = stem
			}
		}
		logging.Warn(ctx, "multiple new conversation files appeared, picking most recent",
			"candidates", len(fresh), "chosen", chosen)
	}
	return &Result{
		AgentSessionID: chosen,
		Path:           filepath.Join(w.Dir, chosen+transcriptSuffix),
		Ambiguous:      len(fresh) > 1,
	}, nil
}

// CopyTranscript copies a conversation file byte-for-byte. Used around
// temp-directory teardown: the file is copied aside before the old directory
// is destroyed and copied back under the new encoded path.
func CopyTranscript(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // both paths derive from validated ids
	if err != nil {
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	defer in.Close() //nolint:errcheck

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("failed to create transcript directory: %w", err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) //nolint:gosec // see above
	if err != nil {
		return fmt.Errorf("failed to create transcript copy: %w", err)
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy transcript: %w", err)
	}
	return out.Sync()
}

// CountMessages counts the JSONL lines of a transcript. Returns 0 for a
// missing file.
func CountMessages(path string) int {
	data, err := os.ReadFile(path) //nolint:gosec // path derives from a validated id
	if err != nil {
		return 0
	}
	count := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return count
}
