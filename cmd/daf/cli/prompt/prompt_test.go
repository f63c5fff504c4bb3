package prompt

import (
	"strings"
	"testing"

	"github.com/devaiflow/cli/cmd/daf/cli/session"
	"github.com/devaiflow/cli/cmd/daf/cli/tracker"
)

func TestAssemble_Deterministic(t *testing.T) {
	in := Inputs{
		ContextFiles:      []ContextFile{{Name: "TEAM.md", Path: "/root/.daf-sessions/TEAM.md"}},
		Issue:             &tracker.TicketDetail{Ticket: tracker.Ticket{Key: "PROJ-1", Summary: "fix login", Type: "Bug", Status: "To Do"}},
		Goal:              "make login work",
		SessionType:       session.TypeDevelopment,
		AgentCanReadFiles: true,
	}
	a := Assemble(in)
	b := Assemble(in)
	if a != b {
		t.Error("same inputs must produce identical text")
	}
	for _, want := range []string{"PROJ-1", "fix login", "make login work", "/root/.daf-sessions/TEAM.md"} {
		if !strings.Contains(a, want) {
			t.Errorf("prompt missing %q:\n%s", want, a)
		}
	}
}

func TestAssemble_FileInstructionsVsInline(t *testing.T) {
	cf := ContextFile{Name: "USER.md", Path: "/x/USER.md", Content: "prefer table-driven tests"}

	readable := Assemble(Inputs{ContextFiles: []ContextFile{cf}, AgentCanReadFiles: true})
	if !strings.Contains(readable, "/x/USER.md") || strings.Contains(readable, "table-driven") {
		t.Errorf("capable agent should get a read instruction, not inlined content:\n%s", readable)
	}

	inlined := Assemble(Inputs{ContextFiles: []ContextFile{cf}, AgentCanReadFiles: false})
	if !strings.Contains(inlined, "table-driven") {
		t.Errorf("incapable agent should get inlined content:\n%s", inlined)
	}
}

func TestAssemble_TicketCreationPolicy(t *testing.T) {
	out := Assemble(Inputs{Goal: "draft a ticket", SessionType: session.TypeTicketCreation})
	if !strings.Contains(out, "Do not create branches") {
		t.Errorf("ticket-creation prompt missing read-only policy:\n%s", out)
	}
}

func TestAssemble_Redaction(t *testing.T) {
	out := Assemble(Inputs{
		Goal:   "use token sk-secret-123",
		Redact: func(s string) string { return strings.ReplaceAll(s, "sk-secret-123", "[REDACTED]") },
	})
	if strings.Contains(out, "sk-secret-123") {
		t.Error("redactor not applied to goal")
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Error("redacted marker missing")
	}
}
