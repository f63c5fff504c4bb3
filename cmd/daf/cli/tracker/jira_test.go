package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func issueJSON(key, summary, status string) string {
	return `{"key":"` + key + `","fields":{"summary":"` + summary + `","status":{"name":"` + status + `"},"issuetype":{"name":"Story"}}}`
}

func newTestJira(t *testing.T, handler http.Handler, authType AuthType) (*Jira, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	j, err := NewJira(JiraConfig{BaseURL: srv.URL, Token: "tok", Email: "dev@example.com", AuthType: authType, Client: srv.Client()})
	if err != nil {
		t.Fatalf("NewJira() = %v", err)
	}
	return j, srv
}

func TestJira_AuthAutoDetect(t *testing.T) {
	var bearerAttempts, basicAttempts int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		switch {
		case strings.HasPrefix(auth, "Bearer "):
			bearerAttempts++
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"errorMessages":["bearer not accepted"]}`))
		case strings.HasPrefix(auth, "Basic "):
			basicAttempts++
			_, _ = w.Write([]byte(issueJSON("PROJ-1", "first", "To Do")))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	})
	j, _ := newTestJira(t, handler, AuthAuto)

	ctx := context.Background()
	ticket, err := j.GetTicket(ctx, "PROJ-1")
	if err != nil {
		t.Fatalf("GetTicket() = %v", err)
	}
	if ticket.Summary != "first" {
		t.Errorf("Summary = %q", ticket.Summary)
	}
	if bearerAttempts != 1 || basicAttempts != 1 {
		t.Errorf("attempts bearer=%d basic=%d, want 1/1", bearerAttempts, basicAttempts)
	}

	// The winner is cached: no second bearer probe.
	if _, err := j.GetTicket(ctx, "PROJ-1"); err != nil {
		t.Fatalf("second GetTicket() = %v", err)
	}
	if bearerAttempts != 1 || basicAttempts != 2 {
		t.Errorf("attempts after cache bearer=%d basic=%d, want 1/2", bearerAttempts, basicAttempts)
	}
}

func TestJira_AuthFailureBothModes(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errorMessages":["token expired"]}`))
	})
	j, _ := newTestJira(t, handler, AuthAuto)

	_, err := j.GetTicket(context.Background(), "PROJ-1")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("GetTicket() = %v, want AuthError", err)
	}
	if authErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d", authErr.StatusCode)
	}
	if !strings.Contains(authErr.Message, "token expired") {
		t.Errorf("Message = %q", authErr.Message)
	}
}

func TestJira_APIVersionAutoDetect(t *testing.T) {
	var v2Hits, v3Hits int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/rest/api/2/"):
			v2Hits++
			w.WriteHeader(http.StatusGone)
		case strings.HasPrefix(r.URL.Path, "/rest/api/3/"):
			v3Hits++
			_, _ = w.Write([]byte(issueJSON("PROJ-2", "on v3", "To Do")))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	j, _ := newTestJira(t, handler, AuthBearer)

	ctx := context.Background()
	if _, err := j.GetTicket(ctx, "PROJ-2"); err != nil {
		t.Fatalf("GetTicket() = %v", err)
	}
	if _, err := j.GetTicket(ctx, "PROJ-2"); err != nil {
		t.Fatalf("second GetTicket() = %v", err)
	}
	if v2Hits != 1 {
		t.Errorf("v2 hits = %d, want 1 (decision should be cached)", v2Hits)
	}
	if v3Hits != 2 {
		t.Errorf("v3 hits = %d, want 2", v3Hits)
	}
}

func TestJira_NotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	j, _ := newTestJira(t, handler, AuthBearer)

	_, err := j.GetTicket(context.Background(), "PROJ-404")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("GetTicket() = %v, want NotFoundError", err)
	}
	if nf.Kind != "issue" || nf.ID != "PROJ-404" {
		t.Errorf("NotFoundError = %+v", nf)
	}
}

func TestJira_ValidationFieldErrors(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":{"customfield_10010":"required"}}`))
	})
	j, _ := newTestJira(t, handler, AuthBearer)

	_, err := j.CreateIssue(context.Background(), "Story", map[string]any{"summary": "x"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("CreateIssue() = %v, want ValidationError", err)
	}
	if ve.FieldErrors["customfield_10010"] != "required" {
		t.Errorf("FieldErrors = %v", ve.FieldErrors)
	}
}

func TestJira_APIError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"errorMessages":["db down"]}`))
	})
	j, _ := newTestJira(t, handler, AuthBearer)

	err := j.UpdateIssue(context.Background(), "PROJ-1", map[string]any{"summary": "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("UpdateIssue() = %v, want APIError", err)
	}
	if apiErr.StatusCode != 500 || len(apiErr.Messages) != 1 || apiErr.Messages[0] != "db down" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestJira_ConnectionError(t *testing.T) {
	j, err := NewJira(JiraConfig{BaseURL: "http://127.0.0.1:1", Token: "tok", AuthType: AuthBearer})
	if err != nil {
		t.Fatal(err)
	}
	_, err = j.GetTicket(context.Background(), "PROJ-1")
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("GetTicket() = %v, want ConnectionError", err)
	}
}

func TestJira_Transition(t *testing.T) {
	var posted string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"transitions":[{"id":"11","name":"Start Progress","to":{"name":"In Progress"}},{"id":"21","name":"Done","to":{"name":"Done"}}]}`))
			return
		}
		var body struct {
			Transition struct {
				ID string `json:"id"`
			} `json:"transition"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		posted = body.Transition.ID
		w.WriteHeader(http.StatusNoContent)
	})
	j, _ := newTestJira(t, handler, AuthBearer)

	ctx := context.Background()
	if err := j.Transition(ctx, "PROJ-1", "in progress"); err != nil {
		t.Fatalf("Transition() = %v", err)
	}
	if posted != "11" {
		t.Errorf("posted transition id = %q, want 11", posted)
	}

	err := j.Transition(ctx, "PROJ-1", "Archived")
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "transition" {
		t.Errorf("Transition() = %v, want transition NotFoundError", err)
	}
}

func TestJira_MissingConfig(t *testing.T) {
	var authErr *AuthError
	if _, err := NewJira(JiraConfig{Token: "tok"}); !errors.As(err, &authErr) {
		t.Errorf("missing URL: err = %v, want AuthError", err)
	}
	if _, err := NewJira(JiraConfig{BaseURL: "http://x"}); !errors.As(err, &authErr) {
		t.Errorf("missing token: err = %v, want AuthError", err)
	}
}

func TestBuildJQL(t *testing.T) {
	got := buildJQL(ListFilter{
		Project: "PROJ",
		Type:    "Bug",
		Custom:  map[string]string{"cf[10011]": "beta", "cf[10010]": "alpha"},
	})
	want := `project = "PROJ" AND issuetype = "Bug" AND cf[10010] = "alpha" AND cf[10011] = "beta" order by updated desc`
	if got != want {
		t.Errorf("buildJQL() = %q, want %q", got, want)
	}
	if got := buildJQL(ListFilter{}); got != "order by updated desc" {
		t.Errorf("empty filter JQL = %q", got)
	}
}

func TestTextBody_RichText(t *testing.T) {
	adf := `{"type":"doc","version":1,"content":[{"type":"paragraph","content":[{"type":"text","text":"line one"}]},{"type":"paragraph","content":[{"type":"text","text":"line two"}]}]}`
	if got := textBody([]byte(adf)); got != "line one\nline two" {
		t.Errorf("textBody(doc) = %q", got)
	}
	if got := textBody([]byte(`"plain"`)); got != "plain" {
		t.Errorf("textBody(string) = %q", got)
	}
}
