// Package prompt builds the initial text handed to the agent at launch. The
// assembler is purely functional: the same inputs always produce the same
// text, which keeps launches reproducible and testable.
package prompt

import (
	"fmt"
	"strings"

	"github.com/devaiflow/cli/cmd/daf/cli/session"
	"github.com/devaiflow/cli/cmd/daf/cli/tracker"
)

// ContextFile is one of the enterprise/organization/team/user context
// documents, in precedence order. Content is only used when the agent
// cannot read files itself.
type ContextFile struct {
	Name    string
	Path    string
	Content string
}

// Inputs is everything the assembler consumes.
type Inputs struct {
	ContextFiles []ContextFile
	Issue        *tracker.TicketDetail
	Goal         string
	SessionType  session.Type

	// AgentCanReadFiles switches context files between read-instructions
	// and inlined content.
	AgentCanReadFiles bool

	// Redact is applied to externally sourced text (issue body, goal)
	// before it enters the prompt. Nil means no redaction.
	Redact func(string) string
}

// Assemble composes the launch prompt: context files, issue, goal, policy.
func Assemble(in Inputs) string {
	redact := in.Redact
	if redact == nil {
		redact = func(s string) string { return s }
	}

	var b strings.Builder

	if len(in.ContextFiles) > 0 {
		if in.AgentCanReadFiles {
			b.WriteString("Before starting, read these context files in order:\n")
			for _, cf := range in.ContextFiles {
				fmt.Fprintf(&b, "- %s\n", cf.Path)
			}
		} else {
			for _, cf := range in.ContextFiles {
				fmt.Fprintf(&b, "# Context: %s\n\n%s\n\n", cf.Name, strings.TrimSpace(cf.Content))
			}
		}
		b.WriteString("\n")
	}

	if in.Issue != nil {
		fmt.Fprintf(&b, "# Issue %s: %s\n\n", in.Issue.Key, redact(in.Issue.Summary))
		fmt.Fprintf(&b, "Type: %s | Status: %s\n\n", in.Issue.Type, in.Issue.Status)
		if in.Issue.Description != "" {
			b.WriteString(redact(in.Issue.Description))
			b.WriteString("\n\n")
		}
	}

	if in.Goal != "" {
		fmt.Fprintf(&b, "# Goal\n\n%s\n\n", redact(in.Goal))
	}

	switch in.SessionType {
	case session.TypeTicketCreation:
		b.WriteString("This is a ticket-creation session: analyze only. " +
			"Do not create branches, do not commit, do not modify files. " +
			"Your output is the material for a new tracker issue.\n")
	case session.TypeInvestigation:
		b.WriteString("This is an investigation session: prefer reading and explaining over changing code.\n")
	case session.TypeDevelopment:
		// no extra policy text
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}
