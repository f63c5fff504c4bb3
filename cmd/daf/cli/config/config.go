// Package config loads the layered daf configuration. Precedence, highest
// wins: session-local overrides < user < team < organization < enterprise.
// Every layer is an optional JSON file; a field set in a higher layer
// overrides the same field from lower layers.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/devaiflow/cli/cmd/daf/cli/paths"
	"github.com/devaiflow/cli/cmd/daf/cli/tracker"
)

// PromptPolicy is the tri-state answer policy for one interactive prompt.
type PromptPolicy string

const (
	PromptAlways PromptPolicy = "always"
	PromptNever  PromptPolicy = "never"
	PromptAsk    PromptPolicy = "ask"
)

// OnFail says what a failed best-effort remote action does.
type OnFail string

const (
	// FailWarn logs a warning and keeps going; local state stays authoritative.
	FailWarn OnFail = "warn"
	// FailBlock aborts the operation.
	FailBlock OnFail = "block"
)

// TransitionRule configures one automatic tracker transition.
type TransitionRule struct {
	// Prompt asks the user instead of applying To directly. Nil means the
	// layer does not override the setting.
	Prompt *bool  `json:"prompt,omitempty"`
	To     string `json:"to,omitempty"`
	OnFail OnFail `json:"on_fail,omitempty"`
}

// Transitions is the tracker state-machine policy.
type Transitions struct {
	// ReopenFrom lists the issue states treated as closed: opening a
	// session whose issue is in one of them proposes a transition back to
	// in-progress.
	ReopenFrom []string        `json:"reopen_from,omitempty"`
	OnOpen     *TransitionRule `json:"on_open,omitempty"`
	OnComplete *TransitionRule `json:"on_complete,omitempty"`
}

// SummaryMode selects the conversation summary generator.
type SummaryMode string

const (
	SummaryAI    SummaryMode = "ai"
	SummaryLocal SummaryMode = "local"
	SummaryBoth  SummaryMode = "both"
	SummaryNone  SummaryMode = "none"
)

// Config is one configuration layer, and also the merged result.
type Config struct {
	TrackerURL        string                  `json:"tracker_url,omitempty"`
	AuthType          string                  `json:"auth_type,omitempty"`
	Project           string                  `json:"project,omitempty"`
	Workstream        string                  `json:"workstream,omitempty"`
	Backend           string                  `json:"backend,omitempty"`
	FieldAliases      map[string]string       `json:"field_aliases,omitempty"`
	Transitions       *Transitions            `json:"transitions,omitempty"`
	CommentVisibility *tracker.Visibility     `json:"comment_visibility,omitempty"`
	WorkspaceRoots    []string                `json:"workspace_roots,omitempty"`
	RepoKeywords      map[string][]string     `json:"repo_keywords,omitempty"`
	Prompts           map[string]PromptPolicy `json:"prompts,omitempty"`
	Agent             string                  `json:"agent,omitempty"`
	SummaryMode       SummaryMode             `json:"summary_mode,omitempty"`
	TelemetryEnabled  *bool                   `json:"telemetry_enabled,omitempty"`
}

// DefaultReopenFrom is used when no layer configures the closed-state set.
var DefaultReopenFrom = []string{"Done", "Closed", "Resolved", "Review", "Release Pending"}

// Load reads and merges every layer under root. sessionLocal may be nil.
func Load(root string, sessionLocal *Config) (*Config, error) {
	layerFiles := []string{
		paths.UserConfigFileName,
		paths.TeamConfigFileName,
		paths.OrganizationConfigFileName,
		paths.EnterpriseConfigFileName,
	}

	layers := make([]*Config, 0, len(layerFiles)+1)
	if sessionLocal != nil {
		layers = append(layers, sessionLocal)
	}
	for _, name := range layerFiles {
		layer, err := loadFile(filepath.Join(root, name))
		if err != nil {
			return nil, err
		}
		if layer != nil {
			layers = append(layers, layer)
		}
	}
	return Merge(layers...), nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is under the store root
	if os.IsNotExist(err) {
		return nil, nil //nolint:nilnil // absent layer
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", filepath.Base(path), err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(path), err)
	}
	return &c, nil
}

// Merge folds layers lowest-precedence first: each subsequent layer
// overrides the fields it sets. Map-typed fields merge key-wise.
func Merge(layers ...*Config) *Config {
	merged := &Config{}
	for _, layer := range layers {
		if layer == nil {
			continue
		}
		overrideString(&merged.TrackerURL, layer.TrackerURL)
		overrideString(&merged.AuthType, layer.AuthType)
		overrideString(&merged.Project, layer.Project)
		overrideString(&merged.Workstream, layer.Workstream)
		overrideString(&merged.Backend, layer.Backend)
		overrideString(&merged.Agent, layer.Agent)
		if layer.SummaryMode != "" {
			merged.SummaryMode = layer.SummaryMode
		}
		if layer.CommentVisibility != nil {
			merged.CommentVisibility = layer.CommentVisibility
		}
		if layer.TelemetryEnabled != nil {
			merged.TelemetryEnabled = layer.TelemetryEnabled
		}
		if len(layer.WorkspaceRoots) > 0 {
			merged.WorkspaceRoots = layer.WorkspaceRoots
		}
		mergeStringMap(&merged.FieldAliases, layer.FieldAliases)
		mergeKeywordMap(&merged.RepoKeywords, layer.RepoKeywords)
		mergePrompts(&merged.Prompts, layer.Prompts)
		mergeTransitions(&merged.Transitions, layer.Transitions)
	}
	return merged
}

func overrideString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func mergeStringMap(dst *map[string]string, src map[string]string) {
	if len(src) == 0 {
		return
	}
	if *dst == nil {
		*dst = map[string]string{}
	}
	for k, v := range src {
		(*dst)[k] = v
	}
}

func mergeKeywordMap(dst *map[string][]string, src map[string][]string) {
	if len(src) == 0 {
		return
	}
	if *dst == nil {
		*dst = map[string][]string{}
	}
	for k, v := range src {
		(*dst)[k] = v
	}
}

func mergePrompts(dst *map[string]PromptPolicy, src map[string]PromptPolicy) {
	if len(src) == 0 {
		return
	}
	if *dst == nil {
		*dst = map[string]PromptPolicy{}
	}
	for k, v := range src {
		(*dst)[k] = v
	}
}

func mergeTransitions(dst **Transitions, src *Transitions) {
	if src == nil {
		return
	}
	if *dst == nil {
		*dst = &Transitions{}
	}
	if len(src.ReopenFrom) > 0 {
		(*dst).ReopenFrom = src.ReopenFrom
	}
	if src.OnOpen != nil {
		(*dst).OnOpen = src.OnOpen
	}
	if src.OnComplete != nil {
		(*dst).OnComplete = src.OnComplete
	}
}

// ReopenFrom returns the configured closed-state set, falling back to the
// default.
func (c *Config) ReopenFrom() []string {
	if c.Transitions != nil && len(c.Transitions.ReopenFrom) > 0 {
		return c.Transitions.ReopenFrom
	}
	return DefaultReopenFrom
}

// PromptFor returns the policy for a named prompt, defaulting to ask.
func (c *Config) PromptFor(name string) PromptPolicy {
	if p, ok := c.Prompts[name]; ok {
		return p
	}
	return PromptAsk
}

// Summary returns the configured summary mode, defaulting to local.
func (c *Config) Summary() SummaryMode {
	if c.SummaryMode == "" {
		return SummaryLocal
	}
	return c.SummaryMode
}

// LoadUser reads the user layer alone, for read-modify-write updates.
// A missing file yields an empty layer.
func LoadUser(root string) (*Config, error) {
	c, err := loadFile(filepath.Join(root, paths.UserConfigFileName))
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = &Config{}
	}
	return c, nil
}

// SaveUser writes the user layer back to config.json.
func SaveUser(root string, c *Config) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(root, paths.UserConfigFileName), data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
