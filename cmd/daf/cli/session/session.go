// Package session defines the durable data model: a Session is the top-level
// unit of work, holding one Conversation per repository it touches, a log of
// work intervals, and an optional binding to a tracker issue.
package session

import (
	"fmt"
	"time"
)

// SchemaVersion is the current version of persisted session documents.
// The store migrates older documents forward on load.
const SchemaVersion = 2

// Status is the session lifecycle state.
type Status string

const (
	StatusCreated    Status = "created"
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusComplete   Status = "complete"
)

// Type classifies what kind of work a session represents. Ticket-creation and
// investigation sessions have no branch and skip git/PR steps on completion.
type Type string

const (
	TypeDevelopment    Type = "development"
	TypeTicketCreation Type = "ticket_creation"
	TypeInvestigation  Type = "investigation"
)

// TimeState is the time-tracking state within a session.
type TimeState string

const (
	TimeRunning TimeState = "running"
	TimePaused  TimeState = "paused"
)

// Session is the primary work record, persisted as
// sessions/<name>/metadata.json.
type Session struct {
	SchemaVersion int `json:"schema_version"`

	// Name is the unique session identifier across the store.
	Name string `json:"name"`

	// IssueKey is the bound tracker issue (PREFIX-INTEGER), empty when unlinked.
	IssueKey string `json:"issue_key,omitempty"`

	Goal   string `json:"goal"`
	Status Status `json:"status"`
	Type   Type   `json:"type"`

	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`

	// WorkSessions is the ordered list of work intervals. At most one may be
	// open, and only while TimeState is running.
	WorkSessions []WorkSession `json:"work_sessions,omitempty"`
	TimeState    TimeState     `json:"time_tracking_state"`

	// Conversations maps a working-directory identifier (the repo name) to
	// its conversation. ActiveWorkDir keys into this map when non-empty.
	Conversations map[string]*Conversation `json:"conversations,omitempty"`
	ActiveWorkDir string                   `json:"active_working_directory,omitempty"`

	Workspace string   `json:"workspace,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Template  string   `json:"template,omitempty"`

	// Tracker-derived fields pulled forward by sync; cleared by unlink.
	IssueSummary string `json:"issue_summary,omitempty"`
	IssueStatus  string `json:"issue_status,omitempty"`
	IssueType    string `json:"issue_type,omitempty"`
}

// Conversation is the per-repository subordinate of a session.
type Conversation struct {
	// Active is the one non-archived context; Archived holds prior ones.
	Active   *ConversationContext  `json:"active"`
	Archived []ConversationContext `json:"archived,omitempty"`

	RepoName string `json:"repo_name"`

	// RelPath is the path under the workspace root.
	RelPath string `json:"rel_path,omitempty"`

	// TempDir is the throwaway work directory for ticket_creation sessions.
	TempDir string `json:"temp_dir,omitempty"`
}

// ConversationContext is the agent-bound state of one conversation. The
// AgentSessionID is bound once by capture and immutable afterwards.
type ConversationContext struct {
	AgentSessionID string `json:"agent_session_id,omitempty"`

	ProjectPath string `json:"project_path"`
	Branch      string `json:"branch,omitempty"`
	BaseBranch  string `json:"base_branch,omitempty"`
	RemoteURL   string `json:"remote_url,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`

	// MessageCount is observed from the transcript, not canonical.
	MessageCount int `json:"message_count,omitempty"`

	PullRequests []string `json:"pull_requests,omitempty"`

	Archived bool   `json:"archived"`
	Summary  string `json:"summary,omitempty"`

	// History chains prior agent session ids through archival, oldest first.
	History []string `json:"conversation_history,omitempty"`
}

// WorkSession is one contiguous stretch of tracked work.
type WorkSession struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`

	// User is the OS user who owned the interval, for multi-user machines.
	User string `json:"user,omitempty"`
}

// Duration returns the interval length; open intervals measure to now.
func (w WorkSession) Duration(now time.Time) time.Duration {
	if w.End != nil {
		return w.End.Sub(w.Start)
	}
	return now.Sub(w.Start)
}

// Note is one entry in the append-only notes log.
type Note struct {
	CreatedAt time.Time `json:"created_at"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Pushed    bool      `json:"pushed"`
}

// New creates a session in its initial state: status created, time paused.
func New(name, goal string, typ Type, now time.Time) *Session {
	return &Session{
		SchemaVersion: SchemaVersion,
		Name:          name,
		Goal:          goal,
		Status:        StatusCreated,
		Type:          typ,
		TimeState:     TimePaused,
		CreatedAt:     now,
		LastActive:    now,
		Conversations: make(map[string]*Conversation),
	}
}

// ActiveConversation returns the conversation keyed by ActiveWorkDir, or nil.
func (s *Session) ActiveConversation() *Conversation {
	if s.ActiveWorkDir == "" {
		return nil
	}
	return s.Conversations[s.ActiveWorkDir]
}

// OpenInterval returns the work interval with no end, or nil.
func (s *Session) OpenInterval() *WorkSession {
	for i := range s.WorkSessions {
		if s.WorkSessions[i].End == nil {
			return &s.WorkSessions[i]
		}
	}
	return nil
}

// AgentSessionIDs returns every agent session id the session has ever bound,
// active and archived, across all conversations.
func (s *Session) AgentSessionIDs() []string {
	var ids []string
	for _, conv := range s.Conversations {
		if conv.Active != nil && conv.Active.AgentSessionID != "" {
			ids = append(ids, conv.Active.AgentSessionID)
		}
		for _, ctx := range conv.Archived {
			if ctx.AgentSessionID != "" {
				ids = append(ids, ctx.AgentSessionID)
			}
		}
	}
	return ids
}

// Archive moves the conversation's active context into the archived list and
// installs a fresh active context chaining the prior agent session id into
// its history. The summary for the outgoing context is supplied by the caller
// (empty when the summarizer mode is none).
func (c *Conversation) Archive(summary string, now time.Time) *ConversationContext {
	prev := c.Active
	var history []string
	if prev != nil {
		prev.Archived = true
		prev.Summary = summary
		c.Archived = append(c.Archived, *prev)
		history = append(append([]string{}, prev.History...), prev.AgentSessionID)
	}

	next := &ConversationContext{
		CreatedAt:  now,
		LastActive: now,
		History:    history,
	}
	if prev != nil {
		next.ProjectPath = prev.ProjectPath
		next.Branch = prev.Branch
		next.BaseBranch = prev.BaseBranch
		next.RemoteURL = prev.RemoteURL
	}
	c.Active = next
	return next
}

// Validate enforces the per-session invariants. Cross-session invariants
// (unique names, globally unique agent session ids) are the store's job.
func (s *Session) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("session has no name")
	}

	// Sessions minted by sync have no conversation until first opened.
	if len(s.Conversations) == 0 && s.Type == TypeDevelopment && s.Status != StatusCreated {
		return fmt.Errorf("session %q: development sessions require a conversation once work starts", s.Name)
	}

	if s.ActiveWorkDir != "" {
		if _, ok := s.Conversations[s.ActiveWorkDir]; !ok {
			return fmt.Errorf("session %q: active working directory %q has no conversation", s.Name, s.ActiveWorkDir)
		}
	}

	seen := make(map[string]bool)
	for key, conv := range s.Conversations {
		if conv.Active == nil {
			return fmt.Errorf("session %q: conversation %q has no active context", s.Name, key)
		}
		if conv.Active.Archived {
			return fmt.Errorf("session %q: conversation %q active context is marked archived", s.Name, key)
		}
		for _, ctx := range conv.Archived {
			if !ctx.Archived {
				return fmt.Errorf("session %q: conversation %q holds a non-archived context in its archive", s.Name, key)
			}
		}
		for _, id := range append([]string{conv.Active.AgentSessionID}, archivedIDs(conv)...) {
			if id == "" {
				continue
			}
			if seen[id] {
				return fmt.Errorf("session %q: duplicate agent session id %q", s.Name, id)
			}
			seen[id] = true
		}
	}

	open := 0
	var lastEnd time.Time
	for i, w := range s.WorkSessions {
		if w.End == nil {
			open++
			continue
		}
		if w.End.Before(w.Start) {
			return fmt.Errorf("session %q: work interval %d ends before it starts", s.Name, i)
		}
		if w.Start.Before(lastEnd) {
			return fmt.Errorf("session %q: work intervals overlap at index %d", s.Name, i)
		}
		lastEnd = *w.End
	}
	if open > 1 {
		return fmt.Errorf("session %q: %d open work intervals, at most one allowed", s.Name, open)
	}
	if open == 1 && s.TimeState != TimeRunning {
		return fmt.Errorf("session %q: open work interval while time tracking is %s", s.Name, s.TimeState)
	}
	if s.Status == StatusComplete && open != 0 {
		return fmt.Errorf("session %q: complete sessions cannot have an open work interval", s.Name)
	}

	return nil
}

func archivedIDs(c *Conversation) []string {
	ids := make([]string, 0, len(c.Archived))
	for _, ctx := range c.Archived {
		ids = append(ids, ctx.AgentSessionID)
	}
	return ids
}
