package summarize

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/devaiflow/cli/cmd/daf/cli/config"
)

func TestForMode(t *testing.T) {
	if g := ForMode(config.SummaryNone); g != nil {
		t.Error("mode none should return nil")
	}
	if _, ok := ForMode(config.SummaryLocal).(*LocalGenerator); !ok {
		t.Error("mode local should return LocalGenerator")
	}
	if _, ok := ForMode(config.SummaryAI).(*ClaudeGenerator); !ok {
		t.Error("mode ai should return ClaudeGenerator")
	}
	if _, ok := ForMode("").(*LocalGenerator); !ok {
		t.Error("unset mode should default to local")
	}
}

func TestLocalGenerator(t *testing.T) {
	g := &LocalGenerator{}
	out, err := g.Generate(context.Background(), Input{Goal: "fix login", MessageCount: 12})
	if err != nil {
		t.Fatalf("Generate() = %v", err)
	}
	if !strings.Contains(out, "fix login") || !strings.Contains(out, "12 messages") {
		t.Errorf("summary = %q", out)
	}

	if _, err := g.Generate(context.Background(), Input{}); err == nil {
		t.Error("empty input should error")
	}
}

func TestClaudeGenerator_ParsesCLIOutput(t *testing.T) {
	g := &ClaudeGenerator{
		CommandRunner: func(ctx context.Context, _ string, _ ...string) *exec.Cmd {
			return exec.CommandContext(ctx, "sh", "-c", `cat >/dev/null; printf '{"result":"Fixed the login flow."}'`)
		},
	}
	out, err := g.Generate(context.Background(), Input{Transcript: []byte(`{"role":"user"}`)})
	if err != nil {
		t.Fatalf("Generate() = %v", err)
	}
	if out != "Fixed the login flow." {
		t.Errorf("summary = %q", out)
	}
}

func TestClaudeGenerator_EmptyTranscript(t *testing.T) {
	g := &ClaudeGenerator{}
	if _, err := g.Generate(context.Background(), Input{}); err == nil {
		t.Error("empty transcript should error before invoking the CLI")
	}
}

func TestFallbackGenerator(t *testing.T) {
	g := ForMode(config.SummaryBoth)
	fb, ok := g.(*fallbackGenerator)
	if !ok {
		t.Fatalf("mode both = %T", g)
	}
	// Force the primary to fail by pointing it at a missing binary.
	fb.primary = &ClaudeGenerator{ClaudePath: "/nonexistent/claude"}

	out, err := fb.Generate(context.Background(), Input{Goal: "migrate db", Transcript: []byte("x")})
	if err != nil {
		t.Fatalf("Generate() = %v", err)
	}
	if !strings.Contains(out, "migrate db") {
		t.Errorf("fallback summary = %q", out)
	}
}
