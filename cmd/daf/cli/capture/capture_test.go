package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func fastWatcher(t *testing.T, dir string) *Watcher {
	t.Helper()
	w, err := NewWatcher(dir)
	if err != nil {
		t.Fatalf("NewWatcher() = %v", err)
	}
	w.Interval = 20 * time.Millisecond
	w.Timeout = 2 * time.Second
	return w
}

func writeTranscript(t *testing.T, dir, stem string) string {
	t.Helper()
	path := filepath.Join(dir, stem+".jsonl")
	if err := os.WriteFile(path, []byte(`{"role":"user"}`+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWait_CapturesDelayedFile(t *testing.T) {
	dir := t.TempDir()
	writeTranscript(t, dir, "preexisting")
	w := fastWatcher(t, dir)

	go func() {
		time.Sleep(100 * time.Millisecond)
		writeTranscript(t, dir, "fresh-id-1")
	}()

	res, err := w.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() = %v", err)
	}
	if res.AgentSessionID != "fresh-id-1" {
		t.Errorf("AgentSessionID = %q, want fresh-id-1 (baseline must be ignored)", res.AgentSessionID)
	}
	if res.Ambiguous {
		t.Error("single new file should not be ambiguous")
	}
}

func TestWait_MissingDirAppearsLater(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "projects", "-w-api")
	w := fastWatcher(t, dir)

	go func() {
		time.Sleep(100 * time.Millisecond)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			panic(err)
		}
		writeTranscript(t, dir, "late-dir-id")
	}()

	res, err := w.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() = %v", err)
	}
	if res.AgentSessionID != "late-dir-id" {
		t.Errorf("AgentSessionID = %q", res.AgentSessionID)
	}
}

func TestWait_MultipleNewPicksLatest(t *testing.T) {
	dir := t.TempDir()
	w := fastWatcher(t, dir)
	// Make the first poll miss so both files land in the same scan.
	w.Interval = 300 * time.Millisecond

	older := writeTranscript(t, dir, "older-id")
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, past, past); err != nil {
		t.Fatal(err)
	}
	writeTranscript(t, dir, "newer-id")

	res, err := w.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() = %v", err)
	}
	if res.AgentSessionID != "newer-id" {
		t.Errorf("AgentSessionID = %q, want newer-id", res.AgentSessionID)
	}
	if !res.Ambiguous {
		t.Error("two new files should be flagged ambiguous")
	}
}

func TestWait_Timeout(t *testing.T) {
	w := fastWatcher(t, t.TempDir())
	w.Timeout = 150 * time.Millisecond

	_, err := w.Wait(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Wait() = %v, want ErrTimeout", err)
	}
}

func TestWait_IgnoresNonTranscripts(t *testing.T) {
	dir := t.TempDir()
	w := fastWatcher(t, dir)
	w.Timeout = 200 * time.Millisecond

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad id.jsonl"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := w.Wait(context.Background()); !errors.Is(err, ErrTimeout) {
		t.Errorf("Wait() = %v, want ErrTimeout (non-transcript files must be ignored)", err)
	}
}

func TestCopyTranscript(t *testing.T) {
	dir := t.TempDir()
	src := writeTranscript(t, dir, "abc-1")
	dst := filepath.Join(dir, "nested", "abc-1.jsonl")

	if err := CopyTranscript(src, dst); err != nil {
		t.Fatalf("CopyTranscript() = %v", err)
	}
	a, _ := os.ReadFile(src)
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Error("copy should be byte identical")
	}
}

func TestCountMessages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.jsonl")
	if err := os.WriteFile(path, []byte("{\"a\":1}\n{\"b\":2}\n\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := CountMessages(path); got != 2 {
		t.Errorf("CountMessages() = %d, want 2", got)
	}
	if got := CountMessages(filepath.Join(dir, "missing.jsonl")); got != 0 {
		t.Errorf("CountMessages(missing) = %d", got)
	}
}
