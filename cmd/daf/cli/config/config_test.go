package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/devaiflow/cli/cmd/daf/cli/paths"
	"github.com/devaiflow/cli/cmd/daf/cli/tracker"
)

func TestMerge_Precedence(t *testing.T) {
	sessionLocal := &Config{Project: "LOCAL", Agent: "cursor"}
	user := &Config{Project: "USER", TrackerURL: "https://user.example.com"}
	team := &Config{Project: "TEAM"}
	enterprise := &Config{TrackerURL: "https://corp.example.com"}

	merged := Merge(sessionLocal, user, team, nil, enterprise)

	if merged.Project != "TEAM" {
		t.Errorf("Project = %q, want TEAM (team overrides user and session-local)", merged.Project)
	}
	if merged.TrackerURL != "https://corp.example.com" {
		t.Errorf("TrackerURL = %q, want enterprise value", merged.TrackerURL)
	}
	if merged.Agent != "cursor" {
		t.Errorf("Agent = %q, want session-local value to survive unset higher layers", merged.Agent)
	}
}

func TestMerge_MapsMergeKeywise(t *testing.T) {
	low := &Config{
		FieldAliases: map[string]string{"workstream": "customfield_10010", "sprint": "customfield_1"},
		Prompts:      map[string]PromptPolicy{"commit": PromptAlways},
	}
	high := &Config{
		FieldAliases: map[string]string{"sprint": "customfield_2"},
		Prompts:      map[string]PromptPolicy{"transition": PromptNever},
	}
	merged := Merge(low, high)

	if merged.FieldAliases["workstream"] != "customfield_10010" {
		t.Error("lower-layer alias lost")
	}
	if merged.FieldAliases["sprint"] != "customfield_2" {
		t.Error("higher layer should win per key")
	}
	if merged.PromptFor("commit") != PromptAlways || merged.PromptFor("transition") != PromptNever {
		t.Errorf("Prompts = %v", merged.Prompts)
	}
	if merged.PromptFor("unset-prompt") != PromptAsk {
		t.Error("unset prompt should default to ask")
	}
}

func TestLoad_Layers(t *testing.T) {
	root := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write(paths.UserConfigFileName, `{"project":"USER","agent":"claude"}`)
	write(paths.OrganizationConfigFileName, `{"project":"ORG","transitions":{"reopen_from":["Done","Archived"]}}`)

	cfg, err := Load(root, &Config{Workstream: "payments"})
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Project != "ORG" {
		t.Errorf("Project = %q, want ORG", cfg.Project)
	}
	if cfg.Agent != "claude" {
		t.Errorf("Agent = %q", cfg.Agent)
	}
	if cfg.Workstream != "payments" {
		t.Errorf("Workstream = %q, session-local layer missing", cfg.Workstream)
	}
	got := cfg.ReopenFrom()
	if len(got) != 2 || got[1] != "Archived" {
		t.Errorf("ReopenFrom() = %v", got)
	}
}

func TestReopenFrom_Default(t *testing.T) {
	cfg := &Config{}
	got := cfg.ReopenFrom()
	if len(got) == 0 {
		t.Fatal("default closed-state set must not be empty")
	}
	found := false
	for _, s := range got {
		if s == "Done" {
			found = true
		}
	}
	if !found {
		t.Errorf("default set %v should include Done", got)
	}
}

func TestBackendCache_RefreshAndResolve(t *testing.T) {
	root := t.TempDir()
	mock := tracker.NewMock()

	bc, err := RefreshCatalog(context.Background(), root, "jira", mock, "PROJ", "Story")
	if err != nil {
		t.Fatalf("RefreshCatalog() = %v", err)
	}
	if bc.Catalog == nil || len(bc.Catalog.Fields) == 0 {
		t.Fatal("catalog not populated")
	}
	if bc.FetchedAt.IsZero() {
		t.Error("FetchedAt not set")
	}

	// Round trip through disk.
	loaded, err := LoadBackend(root, "jira")
	if err != nil {
		t.Fatalf("LoadBackend() = %v", err)
	}
	if loaded.Project != "PROJ" || loaded.Catalog == nil {
		t.Errorf("loaded = %+v", loaded)
	}

	cfg := &Config{FieldAliases: map[string]string{"ws": "customfield_10010"}}
	f, ok := ResolveField(cfg, loaded, "ws")
	if !ok || f.ID != "customfield_10010" {
		t.Errorf("ResolveField(ws) = %+v, %v", f, ok)
	}
	f, ok = ResolveField(cfg, loaded, "Workstream")
	if !ok || f.ID != "customfield_10010" {
		t.Errorf("ResolveField(display name) = %+v, %v", f, ok)
	}
	if _, ok := ResolveField(cfg, loaded, "nope"); ok {
		t.Error("unknown alias should not resolve")
	}
}
