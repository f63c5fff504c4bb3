package paths

import (
	"path/filepath"
	"testing"
)

func TestRoot_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(HomeEnvVar, dir)

	root, err := Root()
	if err != nil {
		t.Fatalf("Root() error = %v", err)
	}
	if root != dir {
		t.Errorf("Root() = %q, want %q", root, dir)
	}
}

func TestSessionLayout(t *testing.T) {
	root := "/store"

	if got := MetadataFile(root, "feat-x"); got != filepath.Join("/store", "sessions", "feat-x", "metadata.json") {
		t.Errorf("MetadataFile() = %q", got)
	}
	if got := NotesFile(root, "feat-x"); got != filepath.Join("/store", "sessions", "feat-x", "notes.md") {
		t.Errorf("NotesFile() = %q", got)
	}
	if got := BackendConfigFile(root, "jira"); got != filepath.Join("/store", "backends", "jira.json") {
		t.Errorf("BackendConfigFile() = %q", got)
	}
}

func TestValidateSessionName(t *testing.T) {
	valid := []string{"feat-x", "PROJ-123", "creation-ABC-9", "a.b_c"}
	for _, name := range valid {
		if err := ValidateSessionName(name); err != nil {
			t.Errorf("ValidateSessionName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "../escape", "a/b", `a\b`, ".hidden", "name with spaces"}
	for _, name := range invalid {
		if err := ValidateSessionName(name); err == nil {
			t.Errorf("ValidateSessionName(%q) = nil, want error", name)
		}
	}
}

func TestIsIssueKey(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"PROJ-1", true},
		{"AB2-123", true},
		{"proj-1", false},
		{"PROJ1", false},
		{"PROJ-", false},
		{"-1", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsIssueKey(tt.in); got != tt.want {
			t.Errorf("IsIssueKey(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEncodeWorkDir(t *testing.T) {
	got := EncodeWorkDir("/home/dev/src/api-server")
	want := "-home-dev-src-api-server"
	if got != want {
		t.Errorf("EncodeWorkDir() = %q, want %q", got, want)
	}
}
