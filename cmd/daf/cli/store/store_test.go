package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devaiflow/cli/cmd/daf/cli/paths"
	"github.com/devaiflow/cli/cmd/daf/cli/session"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, paths.SessionsDirName), 0o750); err != nil {
		t.Fatal(err)
	}
	return NewWithRoot(root)
}

func devSession(t *testing.T, name string) *session.Session {
	t.Helper()
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	s := session.New(name, "add the thing", session.TypeDevelopment, now)
	s.IssueKey = "PROJ-123"
	s.Conversations["api"] = &session.Conversation{
		RepoName: "api",
		Active: &session.ConversationContext{
			AgentSessionID: "abc-123",
			ProjectPath:    "/w/api",
			CreatedAt:      now,
			LastActive:     now,
		},
	}
	s.ActiveWorkDir = "api"
	return s
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := testStore(t)
	sess := devSession(t, "feat-x")

	if err := s.Save(sess); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	got, err := s.Load("feat-x")
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if got == nil {
		t.Fatal("Load() returned nil for existing session")
	}
	if got.Name != "feat-x" || got.IssueKey != "PROJ-123" {
		t.Errorf("loaded session = %q/%q", got.Name, got.IssueKey)
	}
	conv := got.ActiveConversation()
	if conv == nil || conv.Active == nil || conv.Active.AgentSessionID != "abc-123" {
		t.Error("active conversation not preserved")
	}

	idx, err := s.LoadIndex()
	if err != nil {
		t.Fatalf("LoadIndex() = %v", err)
	}
	entry, ok := idx.Sessions["feat-x"]
	if !ok {
		t.Fatal("index missing saved session")
	}
	if entry.IssueKey != "PROJ-123" || entry.Status != session.StatusCreated {
		t.Errorf("index entry = %+v", entry)
	}
}

func TestLoad_Missing(t *testing.T) {
	s := testStore(t)
	got, err := s.Load("nope")
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if got != nil {
		t.Error("Load() of missing session should return nil")
	}
}

func TestSave_NoTempLeftovers(t *testing.T) {
	s := testStore(t)
	if err := s.Save(devSession(t, "feat-x")); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	err := filepath.WalkDir(s.Root(), func(path string, _ os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.Contains(filepath.Base(path), ".tmp-") {
			t.Errorf("temp file left behind: %s", path)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSaveTwice_ByteIdentical(t *testing.T) {
	s := testStore(t)
	sess := devSession(t, "feat-x")
	if err := s.Save(sess); err != nil {
		t.Fatalf("Save() = %v", err)
	}
	first, err := os.ReadFile(paths.MetadataFile(s.Root(), "feat-x"))
	if err != nil {
		t.Fatal(err)
	}
	firstIdx, err := os.ReadFile(paths.SessionsIndexFile(s.Root()))
	if err != nil {
		t.Fatal(err)
	}

	reloaded, err := s.Load("feat-x")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(reloaded); err != nil {
		t.Fatalf("second Save() = %v", err)
	}

	second, err := os.ReadFile(paths.MetadataFile(s.Root(), "feat-x"))
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Error("load-then-save should be byte identical")
	}
	secondIdx, err := os.ReadFile(paths.SessionsIndexFile(s.Root()))
	if err != nil {
		t.Fatal(err)
	}
	if string(firstIdx) != string(secondIdx) {
		t.Error("index rewrite should be byte identical")
	}
}

func TestLoad_CorruptQuarantine(t *testing.T) {
	s := testStore(t)
	dir := paths.SessionDir(s.Root(), "broken")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(paths.MetadataFile(s.Root(), "broken"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := s.Load("broken")
	var corrupt *CorruptError
	if !errors.As(err, &corrupt) {
		t.Fatalf("Load() = %v, want CorruptError", err)
	}
	if _, statErr := os.Stat(paths.MetadataFile(s.Root(), "broken")); !os.IsNotExist(statErr) {
		t.Error("corrupt metadata should have been moved aside")
	}
	if !strings.Contains(corrupt.Path, ".corrupt-") {
		t.Errorf("quarantine path = %q", corrupt.Path)
	}

	// LoadAll reports the session as broken instead of failing.
	sessions, brokenList, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() = %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("LoadAll() sessions = %d, want 0", len(sessions))
	}
	// The metadata was already quarantined by the first Load, so the
	// session directory remains but has no document.
	_ = brokenList
}

func TestLoadAll_ReportsBroken(t *testing.T) {
	s := testStore(t)
	if err := s.Save(devSession(t, "good")); err != nil {
		t.Fatal(err)
	}
	dir := paths.SessionDir(s.Root(), "broken")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(paths.MetadataFile(s.Root(), "broken"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	sessions, broken, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() = %v", err)
	}
	if len(sessions) != 1 || sessions[0].Name != "good" {
		t.Errorf("sessions = %v", sessions)
	}
	if len(broken) != 1 || broken[0].Name != "broken" {
		t.Fatalf("broken = %+v", broken)
	}
	if broken[0].QuarantinePath == "" {
		t.Error("broken session should carry its quarantine path")
	}
}

func TestMigrate_V1Document(t *testing.T) {
	s := testStore(t)
	dir := paths.SessionDir(s.Root(), "legacy")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	v1 := `{
  "name": "legacy",
  "jira_key": "PROJ-7",
  "goal": "old work",
  "status": "in_progress",
  "type": "development",
  "created_at": "2026-01-02T10:00:00Z",
  "last_active": "2026-01-02T11:00:00Z",
  "conversation": {
    "repo_name": "api",
    "active": {
      "agent_session_id": "old-1",
      "project_path": "/w/api",
      "created_at": "2026-01-02T10:00:00Z",
      "last_active": "2026-01-02T11:00:00Z"
    }
  }
}
`
	metaFile := paths.MetadataFile(s.Root(), "legacy")
	if err := os.WriteFile(metaFile, []byte(v1), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load("legacy")
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if got.SchemaVersion != session.SchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", got.SchemaVersion, session.SchemaVersion)
	}
	if got.IssueKey != "PROJ-7" {
		t.Errorf("IssueKey = %q, want PROJ-7", got.IssueKey)
	}
	conv, ok := got.Conversations["api"]
	if !ok || conv.Active == nil || conv.Active.AgentSessionID != "old-1" {
		t.Errorf("Conversations = %+v", got.Conversations)
	}
	if got.ActiveWorkDir != "api" {
		t.Errorf("ActiveWorkDir = %q", got.ActiveWorkDir)
	}
	if got.TimeState != session.TimePaused {
		t.Errorf("TimeState = %q, want paused", got.TimeState)
	}

	if _, err := os.Stat(metaFile + ".v1.bak"); err != nil {
		t.Errorf("pre-migration backup missing: %v", err)
	}

	// Second load must not rewrite again.
	before, _ := os.ReadFile(metaFile)
	if _, err := s.Load("legacy"); err != nil {
		t.Fatal(err)
	}
	after, _ := os.ReadFile(metaFile)
	if string(before) != string(after) {
		t.Error("migrated document should be stable across loads")
	}
}

func TestMigrate_NewerSchemaRejected(t *testing.T) {
	_, _, err := Migrate([]byte(`{"schema_version": 99, "name": "x"}`))
	if err == nil {
		t.Error("newer schema version should be rejected, not silently accepted")
	}
}

func TestWithLock_Serializes(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	var order []string

	var wg sync.WaitGroup
	wg.Add(1)
	started := make(chan struct{})
	go func() {
		defer wg.Done()
		_ = s.WithLock(ctx, func() error {
			close(started)
			mu.Lock()
			order = append(order, "first-in")
			mu.Unlock()
			time.Sleep(300 * time.Millisecond)
			mu.Lock()
			order = append(order, "first-out")
			mu.Unlock()
			return nil
		})
	}()

	<-started
	err := s.WithLock(ctx, func() error {
		mu.Lock()
		order = append(order, "second-in")
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("second WithLock() = %v", err)
	}
	wg.Wait()

	want := []string{"first-in", "first-out", "second-in"}
	if len(order) != 3 || order[0] != want[0] || order[1] != want[1] || order[2] != want[2] {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestWithLock_ContextCancelled(t *testing.T) {
	s := testStore(t)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.WithLock(context.Background(), func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	err := s.WithLock(ctx, func() error { return nil })
	if !errors.Is(err, ErrInterrupted) {
		t.Errorf("WithLock() = %v, want ErrInterrupted", err)
	}
}

func TestDelete(t *testing.T) {
	s := testStore(t)
	if err := s.Save(devSession(t, "feat-x")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("feat-x"); err != nil {
		t.Fatalf("Delete() = %v", err)
	}
	if _, err := os.Stat(paths.SessionDir(s.Root(), "feat-x")); !os.IsNotExist(err) {
		t.Error("session directory should be gone")
	}
	idx, err := s.LoadIndex()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := idx.Sessions["feat-x"]; ok {
		t.Error("index entry should be gone")
	}
}

func TestRename(t *testing.T) {
	s := testStore(t)
	if err := s.Save(devSession(t, "draft-1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Rename("draft-1", "PROJ-9"); err != nil {
		t.Fatalf("Rename() = %v", err)
	}

	got, err := s.Load("PROJ-9")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Name != "PROJ-9" {
		t.Fatalf("renamed session = %+v", got)
	}
	idx, err := s.LoadIndex()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := idx.Sessions["draft-1"]; ok {
		t.Error("old index entry should be gone")
	}
	if _, ok := idx.Sessions["PROJ-9"]; !ok {
		t.Error("new index entry missing")
	}

	// Renaming onto an existing session is a conflict.
	if err := s.Save(devSession(t, "other")); err != nil {
		t.Fatal(err)
	}
	if err := s.Rename("other", "PROJ-9"); err == nil {
		t.Error("Rename() onto existing session should fail")
	}
}

func TestNotes_AppendAndRead(t *testing.T) {
	s := testStore(t)
	if err := s.Save(devSession(t, "feat-x")); err != nil {
		t.Fatal(err)
	}

	first := session.Note{CreatedAt: time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC), Author: "alice", Text: "tried the obvious fix\nit did not work"}
	second := session.Note{CreatedAt: time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC), Text: "root cause: stale cache", Pushed: true}
	for _, n := range []session.Note{first, second} {
		if err := s.AppendNote("feat-x", n); err != nil {
			t.Fatalf("AppendNote() = %v", err)
		}
	}

	notes, err := s.ReadNotes("feat-x")
	if err != nil {
		t.Fatalf("ReadNotes() = %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("len(notes) = %d, want 2", len(notes))
	}
	if notes[0].Text != first.Text {
		t.Errorf("notes[0].Text = %q", notes[0].Text)
	}
	if notes[0].Author != "alice" {
		t.Errorf("notes[0].Author = %q, want alice", notes[0].Author)
	}
	if notes[0].Pushed {
		t.Error("notes[0].Pushed = true, want false")
	}
	if !notes[1].CreatedAt.Equal(second.CreatedAt) {
		t.Errorf("notes[1].CreatedAt = %v", notes[1].CreatedAt)
	}
	if !notes[1].Pushed {
		t.Error("notes[1].Pushed = false, want true")
	}

	if err := s.AppendNote("feat-x", session.Note{CreatedAt: time.Now(), Text: "  "}); err == nil {
		t.Error("empty note should be rejected")
	}
}

func TestMarkNotePushed(t *testing.T) {
	s := testStore(t)
	if err := s.Save(devSession(t, "feat-x")); err != nil {
		t.Fatal(err)
	}

	first := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	second := time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)
	for _, n := range []session.Note{
		{CreatedAt: first, Author: "alice", Text: "tried the obvious fix"},
		{CreatedAt: second, Author: "alice", Text: "root cause: stale cache"},
	} {
		if err := s.AppendNote("feat-x", n); err != nil {
			t.Fatalf("AppendNote() = %v", err)
		}
	}

	if err := s.MarkNotePushed("feat-x", first); err != nil {
		t.Fatalf("MarkNotePushed() = %v", err)
	}
	// Marking again must not stack a second marker.
	if err := s.MarkNotePushed("feat-x", first); err != nil {
		t.Fatalf("MarkNotePushed() second call = %v", err)
	}

	notes, err := s.ReadNotes("feat-x")
	if err != nil {
		t.Fatalf("ReadNotes() = %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("len(notes) = %d, want 2", len(notes))
	}
	if !notes[0].Pushed {
		t.Error("first note should be marked pushed")
	}
	if notes[0].Author != "alice" {
		t.Errorf("notes[0].Author = %q, marker must not clobber the author", notes[0].Author)
	}
	if notes[1].Pushed {
		t.Error("second note must stay unpushed")
	}

	// Unknown timestamps and missing files are no-ops.
	if err := s.MarkNotePushed("feat-x", first.Add(time.Hour)); err != nil {
		t.Errorf("MarkNotePushed(unknown timestamp) = %v", err)
	}
	if err := s.MarkNotePushed("no-notes", first); err != nil {
		t.Errorf("MarkNotePushed(missing file) = %v", err)
	}
}

func TestAgentSessionIDExists(t *testing.T) {
	s := testStore(t)
	if err := s.Save(devSession(t, "feat-x")); err != nil {
		t.Fatal(err)
	}

	exists, err := s.AgentSessionIDExists("abc-123", "")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("abc-123 is bound to feat-x and should be reported")
	}

	exists, err = s.AgentSessionIDExists("abc-123", "feat-x")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("exclusion by owning session should not count as a duplicate")
	}

	exists, err = s.AgentSessionIDExists("never-seen", "")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("unknown id reported as existing")
	}
}
