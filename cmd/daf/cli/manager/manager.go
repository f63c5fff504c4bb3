// Package manager is the orchestration core: it composes the store, the
// issue tracker, the agent lifecycle, capture, and time tracking into the
// operations the CLI exposes. It owns the locking discipline: the store lock
// brackets local state transitions only, remote calls happen before or after
// the lock, and remote-derived fields are written in a second locked step.
package manager

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/devaiflow/cli/cmd/daf/cli/agent"
	"github.com/devaiflow/cli/cmd/daf/cli/config"
	"github.com/devaiflow/cli/cmd/daf/cli/safety"
	"github.com/devaiflow/cli/cmd/daf/cli/session"
	"github.com/devaiflow/cli/cmd/daf/cli/store"
	"github.com/devaiflow/cli/cmd/daf/cli/tracker"
)

// Prompter abstracts interactive questions so --json runs can refuse them
// deterministically instead of hanging on stdin.
type Prompter interface {
	// Confirm asks a yes/no question.
	Confirm(title string, def bool) (bool, error)
	// Input asks for a free-form line.
	Input(title, placeholder string) (string, error)
	// Select asks the user to pick one option.
	Select(title string, options []string) (string, error)
}

// NonInteractivePrompter fails every question with NeedsInteractiveError.
// Installed under --json and when stdin is not a TTY.
type NonInteractivePrompter struct{}

func (NonInteractivePrompter) Confirm(title string, _ bool) (bool, error) {
	return false, &NeedsInteractiveError{Reason: title}
}

func (NonInteractivePrompter) Input(title, _ string) (string, error) {
	return "", &NeedsInteractiveError{Reason: title}
}

func (NonInteractivePrompter) Select(title string, _ []string) (string, error) {
	return "", &NeedsInteractiveError{Reason: title}
}

// Manager wires the collaborators together. All CLI operations go through
// it.
type Manager struct {
	Store    *store.Store
	Tracker  tracker.Tracker
	Config   *config.Config
	Prompter Prompter

	// AgentName overrides the configured agent.
	AgentName string

	// Agent, when set, bypasses the registry entirely. Used by tests that
	// need a pre-configured instance.
	Agent agent.Agent

	// MockMode suppresses agent spawn (DAF_MOCK_MODE=1).
	MockMode bool

	// Now is the clock; replaced in tests.
	Now func() time.Time

	// User is recorded on work intervals and notes.
	User string

	// Warnings receives best-effort failure notices (defaults to stderr).
	Warnings io.Writer
}

// New builds a Manager with production defaults: real store, tracker chosen
// by DAF_MOCK_MODE, merged config.
func New(prompter Prompter) (*Manager, error) {
	st, err := store.New()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(st.Root(), nil)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		Store:    st,
		Config:   cfg,
		Prompter: prompter,
		MockMode: os.Getenv(tracker.EnvMockMode) == "1",
		Now:      time.Now,
		User:     currentUser(),
		Warnings: os.Stderr,
	}
	if m.MockMode {
		m.Tracker = tracker.NewMock()
	} else {
		trk, err := trackerFromConfig(cfg)
		if err == nil {
			m.Tracker = trk
		}
		// A missing tracker config is not fatal: purely local operations
		// still work, remote-bound ones fail when they reach for it.
	}
	return m, nil
}

func trackerFromConfig(cfg *config.Config) (tracker.Tracker, error) { //nolint:ireturn // construction site for the interface
	jc := tracker.JiraConfig{
		BaseURL:  cfg.TrackerURL,
		Token:    os.Getenv(tracker.EnvAPIToken),
		Email:    os.Getenv(tracker.EnvEmail),
		AuthType: tracker.AuthType(cfg.AuthType),
	}
	if envURL := os.Getenv(tracker.EnvURL); envURL != "" {
		jc.BaseURL = envURL
	}
	if envAuth := os.Getenv(tracker.EnvAuthType); envAuth != "" {
		jc.AuthType = tracker.AuthType(envAuth)
	}
	return tracker.NewJira(jc)
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

func (m *Manager) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func (m *Manager) warnf(format string, args ...any) {
	w := m.Warnings
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintf(w, "warning: "+format+"\n", args...)
}

// RequireTracker returns the tracker or an auth error naming the missing
// configuration.
func (m *Manager) RequireTracker() (tracker.Tracker, error) { //nolint:ireturn // accessor for the interface field
	if m.Tracker == nil {
		return nil, &tracker.AuthError{Message: "no tracker configured (set " + tracker.EnvURL + " and " + tracker.EnvAPIToken + ")"}
	}
	return m.Tracker, nil
}

// agentFor resolves the agent to use for a session.
func (m *Manager) agentFor() (agent.Agent, error) { //nolint:ireturn // registry lookup returns the interface
	if m.Agent != nil {
		return m.Agent, nil
	}
	name := m.AgentName
	if name == "" {
		name = m.Config.Agent
	}
	if m.MockMode {
		name = agent.MockName
	}
	if name == "" {
		name = agent.DefaultAgentName
	}
	return agent.Get(name)
}

// guard refuses mutating operations invoked from inside a spawned agent.
func (m *Manager) guard(op string) error {
	return safety.Guard(op)
}

// mutate runs fn on a loaded session under the store lock and persists the
// result. fn must not perform remote calls.
func (m *Manager) mutate(ctx context.Context, name string, fn func(*session.Session) error) error {
	return m.Store.WithLock(ctx, func() error {
		s, err := m.Store.Load(name)
		if err != nil {
			return err
		}
		if s == nil {
			return &NotFoundError{Name: name}
		}
		if err := fn(s); err != nil {
			return err
		}
		s.LastActive = m.now()
		return m.Store.Save(s)
	})
}

// Get returns a session snapshot without taking the lock.
func (m *Manager) Get(name string) (*session.Session, error) {
	s, err := m.Store.Load(name)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, &NotFoundError{Name: name}
	}
	return s, nil
}

// List returns all sessions plus the quarantined ones.
func (m *Manager) List() ([]*session.Session, []store.BrokenSession, error) {
	return m.Store.LoadAll()
}

// Active returns the session bound to the current agent invocation, when
// daf runs inside one.
func (m *Manager) Active() (*session.Session, error) {
	id := safety.ActiveSessionID()
	if id == "" {
		return nil, &NotFoundError{Name: "(no active session)"}
	}
	return m.Get(id)
}
