package session

import (
	"testing"
	"time"
)

func devSession(t *testing.T) *Session {
	t.Helper()
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	s := New("feat-x", "add the thing", TypeDevelopment, now)
	s.Conversations["api"] = &Conversation{
		RepoName: "api",
		Active: &ConversationContext{
			AgentSessionID: "abc-123",
			ProjectPath:    "/w/api",
			CreatedAt:      now,
			LastActive:     now,
		},
	}
	s.ActiveWorkDir = "api"
	return s
}

func TestValidate_OK(t *testing.T) {
	s := devSession(t)
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidate_DevelopmentRequiresConversation(t *testing.T) {
	now := time.Now()
	s := New("empty", "g", TypeDevelopment, now)
	if err := s.Validate(); err == nil {
		t.Error("development session without conversations should fail validation")
	}

	// ticket_creation and investigation sessions may have none
	for _, typ := range []Type{TypeTicketCreation, TypeInvestigation} {
		s := New("n", "g", typ, now)
		if err := s.Validate(); err != nil {
			t.Errorf("%s session without conversations: Validate() = %v, want nil", typ, err)
		}
	}
}

func TestValidate_ActiveWorkDirMustExist(t *testing.T) {
	s := devSession(t)
	s.ActiveWorkDir = "missing"
	if err := s.Validate(); err == nil {
		t.Error("dangling active working directory should fail validation")
	}
}

func TestValidate_DuplicateAgentSessionIDs(t *testing.T) {
	s := devSession(t)
	s.Conversations["web"] = &Conversation{
		RepoName: "web",
		Active:   &ConversationContext{AgentSessionID: "abc-123", ProjectPath: "/w/web"},
	}
	if err := s.Validate(); err == nil {
		t.Error("duplicate agent session ids should fail validation")
	}
}

func TestValidate_WorkIntervals(t *testing.T) {
	s := devSession(t)
	start := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)

	// Two open intervals: invalid.
	s.WorkSessions = []WorkSession{{Start: start}, {Start: start.Add(time.Hour)}}
	s.TimeState = TimeRunning
	if err := s.Validate(); err == nil {
		t.Error("two open intervals should fail validation")
	}

	// One open interval while paused: invalid.
	s.WorkSessions = []WorkSession{{Start: start}}
	s.TimeState = TimePaused
	if err := s.Validate(); err == nil {
		t.Error("open interval while paused should fail validation")
	}

	// Overlapping closed intervals: invalid.
	e1 := start.Add(time.Hour)
	e2 := start.Add(2 * time.Hour)
	s.WorkSessions = []WorkSession{
		{Start: start, End: &e2},
		{Start: e1, End: &e2},
	}
	s.TimeState = TimePaused
	if err := s.Validate(); err == nil {
		t.Error("overlapping intervals should fail validation")
	}

	// Complete session with an open interval: invalid.
	s.WorkSessions = []WorkSession{{Start: start}}
	s.TimeState = TimeRunning
	s.Status = StatusComplete
	if err := s.Validate(); err == nil {
		t.Error("complete session with open interval should fail validation")
	}
}

func TestArchive_ChainsHistory(t *testing.T) {
	s := devSession(t)
	conv := s.ActiveConversation()
	now := time.Now()

	next := conv.Archive("did the thing", now)

	if len(conv.Archived) != 1 {
		t.Fatalf("Archived length = %d, want 1", len(conv.Archived))
	}
	prev := conv.Archived[0]
	if !prev.Archived {
		t.Error("archived context should have Archived=true")
	}
	if prev.Summary != "did the thing" {
		t.Errorf("archived summary = %q", prev.Summary)
	}
	if next.AgentSessionID != "" {
		t.Error("new active context should start unbound")
	}
	if len(next.History) != 1 || next.History[0] != "abc-123" {
		t.Errorf("History = %v, want [abc-123]", next.History)
	}
	if next.ProjectPath != "/w/api" {
		t.Errorf("ProjectPath not carried over: %q", next.ProjectPath)
	}

	// Second archival chains both ids, oldest first.
	next.AgentSessionID = "def-456"
	third := conv.Archive("", now)
	if len(third.History) != 2 || third.History[0] != "abc-123" || third.History[1] != "def-456" {
		t.Errorf("History = %v, want [abc-123 def-456]", third.History)
	}
}

func TestOpenInterval(t *testing.T) {
	s := devSession(t)
	if s.OpenInterval() != nil {
		t.Error("fresh session should have no open interval")
	}
	start := time.Now()
	end := start.Add(time.Minute)
	s.WorkSessions = []WorkSession{{Start: start.Add(-time.Hour), End: &start}, {Start: end}}
	got := s.OpenInterval()
	if got == nil || !got.Start.Equal(end) {
		t.Errorf("OpenInterval() = %+v, want the interval starting at %v", got, end)
	}
}
