// Package store persists the session index and per-session metadata as JSON
// under the daf root directory. All writes are atomic (temp file, fsync,
// rename) so a crash mid-write leaves the previous state visible. Mutations
// are serialized across processes by an advisory lock on the index file.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/devaiflow/cli/cmd/daf/cli/jsonutil"
	"github.com/devaiflow/cli/cmd/daf/cli/paths"
	"github.com/devaiflow/cli/cmd/daf/cli/session"
)

// Store reads and writes session records under a root directory.
// The SessionManager is the only writer; everything else gets snapshots.
type Store struct {
	root string
}

// New creates a store rooted at the default (or DEVAIFLOW_HOME) directory.
func New() (*Store, error) {
	root, err := paths.EnsureRoot()
	if err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

// NewWithRoot creates a store rooted at a custom directory. Used in tests.
func NewWithRoot(root string) *Store {
	return &Store{root: root}
}

// Root returns the store root directory.
func (s *Store) Root() string {
	return s.root
}

// IndexEntry is the minimal descriptor kept in sessions.json for cheap
// listing without reading every metadata document.
type IndexEntry struct {
	Name       string         `json:"name"`
	IssueKey   string         `json:"issue_key,omitempty"`
	Status     session.Status `json:"status"`
	Type       session.Type   `json:"type"`
	LastActive time.Time      `json:"last_active"`
}

// Index is the content of sessions.json.
type Index struct {
	SchemaVersion int                   `json:"schema_version"`
	Sessions      map[string]IndexEntry `json:"sessions"`
}

// BrokenSession identifies a session whose metadata could not be parsed and
// was quarantined.
type BrokenSession struct {
	Name           string
	QuarantinePath string
}

// LoadIndex reads sessions.json. A missing file yields an empty index.
func (s *Store) LoadIndex() (*Index, error) {
	data, err := os.ReadFile(paths.SessionsIndexFile(s.root))
	if os.IsNotExist(err) {
		return &Index{SchemaVersion: session.SchemaVersion, Sessions: map[string]IndexEntry{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session index: %w", err)
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, &CorruptError{Path: paths.SessionsIndexFile(s.root), Err: err}
	}
	if idx.Sessions == nil {
		idx.Sessions = map[string]IndexEntry{}
	}
	return &idx, nil
}

// Load reads one session's metadata document, migrating it forward if its
// schema version is behind. Returns (nil, nil) when the session does not
// exist. Corrupt documents are quarantined and reported as a CorruptError.
func (s *Store) Load(name string) (*session.Session, error) {
	if err := paths.ValidateSessionName(name); err != nil {
		return nil, fmt.Errorf("invalid session name: %w", err)
	}

	metaFile := paths.MetadataFile(s.root, name)
	data, err := os.ReadFile(metaFile) //nolint:gosec // name validated above
	if os.IsNotExist(err) {
		return nil, nil //nolint:nilnil // nil,nil indicates session not found (expected case)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session metadata: %w", err)
	}

	migrated, changed, err := Migrate(data)
	if err != nil {
		quarantine, qErr := s.quarantine(metaFile)
		if qErr != nil {
			return nil, fmt.Errorf("failed to quarantine corrupt metadata for %q: %w", name, qErr)
		}
		return nil, &CorruptError{Path: quarantine, Err: err}
	}
	if changed {
		// Keep a backup of the unmigrated document, then rewrite in place.
		version := documentVersion(data)
		backup := metaFile + fmt.Sprintf(".v%d.bak", version)
		if err := os.WriteFile(backup, data, 0o600); err != nil {
			return nil, fmt.Errorf("failed to back up pre-migration metadata: %w", err)
		}
		if err := atomicWrite(metaFile, migrated); err != nil {
			return nil, fmt.Errorf("failed to rewrite migrated metadata: %w", err)
		}
	}

	var sess session.Session
	if err := json.Unmarshal(migrated, &sess); err != nil {
		quarantine, qErr := s.quarantine(metaFile)
		if qErr != nil {
			return nil, fmt.Errorf("failed to quarantine corrupt metadata for %q: %w", name, qErr)
		}
		return nil, &CorruptError{Path: quarantine, Err: err}
	}
	return &sess, nil
}

// LoadAll reads the index and every per-session document, reconciling the
// two: sessions on disk but missing from the index are picked up, index
// entries without a directory are dropped. Corrupt documents are quarantined
// and reported in broken, never fatal.
func (s *Store) LoadAll() (sessions []*session.Session, broken []BrokenSession, err error) {
	idx, err := s.LoadIndex()
	if err != nil {
		return nil, nil, err
	}

	names := make(map[string]bool)
	for name := range idx.Sessions {
		names[name] = true
	}

	// Reconcile with the sessions directory.
	entries, err := os.ReadDir(filepath.Join(s.root, paths.SessionsDirName))
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			names[entry.Name()] = true
		}
	}

	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	for _, name := range ordered {
		sess, loadErr := s.Load(name)
		if loadErr != nil {
			var corrupt *CorruptError
			if asCorrupt(loadErr, &corrupt) {
				broken = append(broken, BrokenSession{Name: name, QuarantinePath: corrupt.Path})
				continue
			}
			return nil, nil, loadErr
		}
		if sess == nil {
			continue // index entry without a directory
		}
		sessions = append(sessions, sess)
	}
	return sessions, broken, nil
}

// Save persists one session atomically and updates the index. The index file
// is written last so a crash between the two writes leaves a recoverable
// state (LoadAll reconciles from the sessions directory).
func (s *Store) Save(sess *session.Session) error {
	if err := sess.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid session: %w", err)
	}
	if err := paths.ValidateSessionName(sess.Name); err != nil {
		return fmt.Errorf("invalid session name: %w", err)
	}

	sess.SchemaVersion = session.SchemaVersion

	dir := paths.SessionDir(s.root, sess.Name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := jsonutil.MarshalIndentWithNewline(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session metadata: %w", err)
	}
	if err := atomicWrite(paths.MetadataFile(s.root, sess.Name), data); err != nil {
		return fmt.Errorf("failed to write session metadata: %w", err)
	}

	return s.updateIndex(func(idx *Index) {
		idx.Sessions[sess.Name] = IndexEntry{
			Name:       sess.Name,
			IssueKey:   sess.IssueKey,
			Status:     sess.Status,
			Type:       sess.Type,
			LastActive: sess.LastActive,
		}
	})
}

// Rename moves a session directory and its index entry to a new name.
// Used when a ticket-creation session acquires its issue key.
func (s *Store) Rename(oldName, newName string) error {
	if err := paths.ValidateSessionName(newName); err != nil {
		return fmt.Errorf("invalid session name: %w", err)
	}
	if _, err := os.Stat(paths.SessionDir(s.root, newName)); err == nil {
		return fmt.Errorf("session %q already exists", newName)
	}
	if err := os.Rename(paths.SessionDir(s.root, oldName), paths.SessionDir(s.root, newName)); err != nil {
		return fmt.Errorf("failed to rename session directory: %w", err)
	}

	// The metadata document still carries the old name; rewrite it.
	sess, err := s.Load(newName)
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("renamed session %q not found", newName)
	}
	sess.Name = newName
	if err := sess.Validate(); err == nil {
		data, mErr := jsonutil.MarshalIndentWithNewline(sess, "", "  ")
		if mErr != nil {
			return fmt.Errorf("failed to marshal renamed session: %w", mErr)
		}
		if wErr := atomicWrite(paths.MetadataFile(s.root, newName), data); wErr != nil {
			return fmt.Errorf("failed to rewrite renamed session: %w", wErr)
		}
	}

	return s.updateIndex(func(idx *Index) {
		entry := idx.Sessions[oldName]
		entry.Name = newName
		delete(idx.Sessions, oldName)
		idx.Sessions[newName] = entry
	})
}

// Delete removes a session's directory and its index entry.
func (s *Store) Delete(name string) error {
	if err := paths.ValidateSessionName(name); err != nil {
		return fmt.Errorf("invalid session name: %w", err)
	}
	if err := os.RemoveAll(paths.SessionDir(s.root, name)); err != nil {
		return fmt.Errorf("failed to remove session directory: %w", err)
	}
	return s.updateIndex(func(idx *Index) {
		delete(idx.Sessions, name)
	})
}

// updateIndex applies fn to the current index and writes it back atomically.
func (s *Store) updateIndex(fn func(*Index)) error {
	idx, err := s.LoadIndex()
	if err != nil {
		return err
	}
	idx.SchemaVersion = session.SchemaVersion
	fn(idx)

	data, err := jsonutil.MarshalIndentWithNewline(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session index: %w", err)
	}
	if err := atomicWrite(paths.SessionsIndexFile(s.root), data); err != nil {
		return fmt.Errorf("failed to write session index: %w", err)
	}
	return nil
}

// quarantine moves a corrupt metadata file aside so the session is reported
// broken instead of blocking every load. No automatic repair is attempted.
func (s *Store) quarantine(metaFile string) (string, error) {
	quarantine := metaFile + ".corrupt-" + time.Now().UTC().Format("20060102T150405Z")
	if err := os.Rename(metaFile, quarantine); err != nil {
		return "", err
	}
	return quarantine, nil
}

// documentVersion extracts schema_version from a raw document, defaulting to 1.
func documentVersion(data []byte) int {
	var probe struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.SchemaVersion == 0 {
		return 1
	}
	return probe.SchemaVersion
}

// AgentSessionIDExists reports whether an agent session id is already bound
// anywhere in the store. Enforces the global uniqueness invariant.
func (s *Store) AgentSessionIDExists(id string, excludeSession string) (bool, error) {
	sessions, _, err := s.LoadAll()
	if err != nil {
		return false, err
	}
	for _, sess := range sessions {
		if sess.Name == excludeSession {
			continue
		}
		for _, existing := range sess.AgentSessionIDs() {
			if existing == id {
				return true, nil
			}
		}
	}
	return false, nil
}

func asCorrupt(err error, target **CorruptError) bool {
	for err != nil {
		if c, ok := err.(*CorruptError); ok {
			*target = c
			return true
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
