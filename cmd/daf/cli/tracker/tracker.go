// Package tracker abstracts the remote issue tracker behind a single
// interface with two implementations: a JIRA-style REST client and an
// in-memory mock. Remote failures are always typed errors, never zero
// values.
package tracker

import (
	"context"
	"time"
)

// Ticket is the summary view of a tracker issue.
type Ticket struct {
	Key      string    `json:"key"`
	Summary  string    `json:"summary"`
	Status   string    `json:"status"`
	Type     string    `json:"type"`
	Assignee string    `json:"assignee,omitempty"`
	Priority string    `json:"priority,omitempty"`
	Labels   []string  `json:"labels,omitempty"`
	Updated  time.Time `json:"updated,omitempty"`
}

// TicketDetail adds the heavyweight parts skipped by list views.
type TicketDetail struct {
	Ticket
	Description string       `json:"description,omitempty"`
	Comments    []Comment    `json:"comments,omitempty"`
	Links       []IssueLink  `json:"links,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Comment is a tracker comment on an issue.
type Comment struct {
	Author  string    `json:"author"`
	Body    string    `json:"body"`
	Created time.Time `json:"created"`
}

// IssueLink relates two issues (e.g. "blocks", "relates to").
type IssueLink struct {
	Type     string `json:"type"`
	Inward   bool   `json:"inward"`
	OtherKey string `json:"other_key"`
}

// Attachment describes a file attached to an issue.
type Attachment struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// TransitionOption is one workflow transition currently available on an issue.
type TransitionOption struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ToStatus string `json:"to_status"`
}

// Visibility restricts who can see a comment. Type is "group" or "role";
// Value is passed to the tracker verbatim.
type Visibility struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ListFilter selects issues for ListTickets. Custom maps custom-field ids to
// required values.
type ListFilter struct {
	Project    string
	Sprint     string
	Type       string
	Parent     string
	Assignee   string
	Custom     map[string]string
	MaxResults int
}

// Tracker is the issue-tracker surface the rest of daf programs against.
type Tracker interface {
	GetTicket(ctx context.Context, key string) (*Ticket, error)
	GetTicketDetailed(ctx context.Context, key string) (*TicketDetail, error)
	ListTickets(ctx context.Context, filter ListFilter) ([]Ticket, error)
	CreateIssue(ctx context.Context, kind string, fields map[string]any) (*Ticket, error)
	UpdateIssue(ctx context.Context, key string, fields map[string]any) error
	Transition(ctx context.Context, key, targetState string) error
	AvailableTransitions(ctx context.Context, key string) ([]TransitionOption, error)
	AddComment(ctx context.Context, key, text string, visibility *Visibility) error
	AttachFile(ctx context.Context, key, path string) error
	LinkIssues(ctx context.Context, key, linkType, otherKey string) error
	EditableFields(ctx context.Context, key string) (*FieldCatalog, error)
	CreatableFields(ctx context.Context, project, kind string) (*FieldCatalog, error)
}
