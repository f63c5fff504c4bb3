package agent

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Factory creates a new agent instance.
type Factory func() Agent

// Register adds an agent factory to the registry.
// Called from init() in each agent implementation.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Get retrieves an agent by name.
//
//nolint:ireturn // Factory pattern requires returning the interface
func Get(name string) (Agent, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown agent: %s (available: %v)", name, List())
	}
	return factory(), nil
}

// List returns all registered agent names in sorted order.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Detect returns the first registered agent whose binary is installed,
// preferring the default.
//
//nolint:ireturn // Factory pattern requires returning the interface
func Detect() (Agent, error) {
	if a, err := Get(DefaultAgentName); err == nil {
		if present, err := a.DetectPresence(); err == nil && present {
			return a, nil
		}
	}
	for _, name := range List() {
		a, err := Get(name)
		if err != nil {
			continue
		}
		if present, err := a.DetectPresence(); err == nil && present {
			return a, nil
		}
	}
	return nil, fmt.Errorf("no agent detected (available: %v)", List())
}

// Agent name constants.
const (
	AgentNameClaude   = "claude"
	AgentNameCursor   = "cursor"
	AgentNameWindsurf = "windsurf"
	AgentNameVSCode   = "vscode"
)

// DefaultAgentName is the default when none is configured.
const DefaultAgentName = AgentNameClaude
