package tracker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// EnvMockMode substitutes the mock tracker (and suppresses agent spawn)
// across the whole process when set to 1.
const EnvMockMode = "DAF_MOCK_MODE"

// Mock serves the Tracker interface from an in-memory map. Used in tests and
// under DAF_MOCK_MODE=1. Failures are scripted per operation through Fail.
type Mock struct {
	mu sync.Mutex

	// Tickets holds the current remote state, keyed by issue key.
	Tickets map[string]*TicketDetail

	// Transitions lists what AvailableTransitions returns for every issue.
	Transitions []TransitionOption

	// Fail maps an operation name ("transition", "add_comment", ...) to an
	// error that operation will return instead of doing its work.
	Fail map[string]error

	// Catalog backs EditableFields and CreatableFields.
	Catalog *FieldCatalog

	// Calls records operation invocations in order, for assertions.
	Calls []string

	nextID int
}

// NewMock creates an empty mock with a default workflow and field catalog.
func NewMock() *Mock {
	return &Mock{
		Tickets: map[string]*TicketDetail{},
		Transitions: []TransitionOption{
			{ID: "11", Name: "Start Progress", ToStatus: "In Progress"},
			{ID: "21", Name: "Done", ToStatus: "Done"},
		},
		Catalog: &FieldCatalog{Fields: []Field{
			{ID: "summary", DisplayName: "Summary", Type: "string", Required: true},
			{ID: "description", DisplayName: "Description", Type: "string"},
			{ID: "labels", DisplayName: "Labels", Type: "array"},
			{ID: "customfield_10010", DisplayName: "Workstream", Type: "option"},
		}},
		Fail: map[string]error{},
	}
}

// Add seeds an issue into the mock's remote state.
func (m *Mock) Add(t TicketDetail) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := t
	m.Tickets[t.Key] = &copied
}

func (m *Mock) record(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, op)
	return m.Fail[op]
}

func (m *Mock) lookup(key string) (*TicketDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tickets[key]
	if !ok {
		return nil, &NotFoundError{Kind: "issue", ID: key}
	}
	return t, nil
}

// GetTicket returns the summary view of a seeded issue.
func (m *Mock) GetTicket(_ context.Context, key string) (*Ticket, error) {
	if err := m.record("get_ticket"); err != nil {
		return nil, err
	}
	t, err := m.lookup(key)
	if err != nil {
		return nil, err
	}
	ticket := t.Ticket
	return &ticket, nil
}

// GetTicketDetailed returns the full seeded issue.
func (m *Mock) GetTicketDetailed(_ context.Context, key string) (*TicketDetail, error) {
	if err := m.record("get_ticket_detailed"); err != nil {
		return nil, err
	}
	t, err := m.lookup(key)
	if err != nil {
		return nil, err
	}
	copied := *t
	return &copied, nil
}

// ListTickets returns seeded issues matching the filter, ordered by key.
func (m *Mock) ListTickets(_ context.Context, filter ListFilter) ([]Ticket, error) {
	if err := m.record("list_tickets"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.Tickets))
	for key := range m.Tickets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []Ticket
	for _, key := range keys {
		t := m.Tickets[key]
		if filter.Project != "" && !strings.HasPrefix(key, filter.Project+"-") {
			continue
		}
		if filter.Type != "" && !strings.EqualFold(t.Type, filter.Type) {
			continue
		}
		if filter.Assignee != "" && !strings.EqualFold(t.Assignee, filter.Assignee) {
			continue
		}
		out = append(out, t.Ticket)
	}
	return out, nil
}

// CreateIssue mints a new key in the MOCK project (or the provided project
// field) and stores the issue.
func (m *Mock) CreateIssue(_ context.Context, kind string, fields map[string]any) (*Ticket, error) {
	if err := m.record("create_issue"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	project := "MOCK"
	if p, ok := fields["project"].(map[string]string); ok && p["key"] != "" {
		project = p["key"]
	} else if p, ok := fields["project"].(string); ok && p != "" {
		project = p
	}
	m.nextID++
	key := fmt.Sprintf("%s-%d", project, m.nextID)

	summary, _ := fields["summary"].(string)
	description, _ := fields["description"].(string)
	t := &TicketDetail{
		Ticket: Ticket{
			Key:     key,
			Summary: summary,
			Status:  "To Do",
			Type:    kind,
			Updated: time.Now().UTC(),
		},
		Description: description,
	}
	m.Tickets[key] = t
	ticket := t.Ticket
	return &ticket, nil
}

// UpdateIssue overwrites the supported summary/description fields.
func (m *Mock) UpdateIssue(_ context.Context, key string, fields map[string]any) error {
	if err := m.record("update_issue"); err != nil {
		return err
	}
	t, err := m.lookup(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := fields["summary"].(string); ok {
		t.Summary = s
	}
	if d, ok := fields["description"].(string); ok {
		t.Description = d
	}
	t.Updated = time.Now().UTC()
	return nil
}

// Transition moves an issue to the matching transition's destination status.
func (m *Mock) Transition(_ context.Context, key, targetState string) error {
	if err := m.record("transition"); err != nil {
		return err
	}
	t, err := m.lookup(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, opt := range m.Transitions {
		if strings.EqualFold(opt.Name, targetState) || strings.EqualFold(opt.ToStatus, targetState) {
			t.Status = opt.ToStatus
			return nil
		}
	}
	return &NotFoundError{Kind: "transition", ID: targetState}
}

// AvailableTransitions returns the scripted workflow options.
func (m *Mock) AvailableTransitions(_ context.Context, key string) ([]TransitionOption, error) {
	if err := m.record("available_transitions"); err != nil {
		return nil, err
	}
	if _, err := m.lookup(key); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TransitionOption(nil), m.Transitions...), nil
}

// AddComment appends a comment to the seeded issue.
func (m *Mock) AddComment(_ context.Context, key, text string, visibility *Visibility) error {
	if err := m.record("add_comment"); err != nil {
		return err
	}
	t, err := m.lookup(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	body := text
	if visibility != nil {
		body = fmt.Sprintf("[%s:%s] %s", visibility.Type, visibility.Value, text)
	}
	t.Comments = append(t.Comments, Comment{Author: "mock", Body: body, Created: time.Now().UTC()})
	return nil
}

// AttachFile records the attachment by filename only.
func (m *Mock) AttachFile(_ context.Context, key, path string) error {
	if err := m.record("attach_file"); err != nil {
		return err
	}
	t, err := m.lookup(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t.Attachments = append(t.Attachments, Attachment{Filename: path})
	return nil
}

// LinkIssues records a typed link on both issues.
func (m *Mock) LinkIssues(_ context.Context, key, linkType, otherKey string) error {
	if err := m.record("link_issues"); err != nil {
		return err
	}
	t, err := m.lookup(key)
	if err != nil {
		return err
	}
	other, err := m.lookup(otherKey)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t.Links = append(t.Links, IssueLink{Type: linkType, OtherKey: otherKey})
	other.Links = append(other.Links, IssueLink{Type: linkType, Inward: true, OtherKey: key})
	return nil
}

// EditableFields returns the scripted catalog.
func (m *Mock) EditableFields(_ context.Context, key string) (*FieldCatalog, error) {
	if err := m.record("get_editable_fields"); err != nil {
		return nil, err
	}
	if _, err := m.lookup(key); err != nil {
		return nil, err
	}
	return m.Catalog, nil
}

// CreatableFields returns the scripted catalog.
func (m *Mock) CreatableFields(_ context.Context, _, _ string) (*FieldCatalog, error) {
	if err := m.record("get_creatable_fields"); err != nil {
		return nil, err
	}
	return m.Catalog, nil
}

var _ Tracker = (*Mock)(nil)
var _ Tracker = (*Jira)(nil)
