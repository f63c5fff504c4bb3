package logging

import (
	"context"
	"log/slog"
)

// Context keys for logging values.
// Using private types to avoid key collisions.
type contextKey int

const (
	operationKey contextKey = iota
	componentKey
	agentKey
	issueKeyKey
)

// WithOperation adds the running operation name to the context (e.g., "open").
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey, op)
}

// WithComponent adds a component name to the context.
// Component names identify the subsystem generating logs (e.g., "store", "capture", "tracker").
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// WithAgent adds an agent name to the context (e.g., "claude", "cursor").
func WithAgent(ctx context.Context, agent string) context.Context {
	return context.WithValue(ctx, agentKey, agent)
}

// WithIssueKey adds the bound tracker issue key to the context.
func WithIssueKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, issueKeyKey, key)
}

func attrsFromContext(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	var attrs []slog.Attr
	for _, kv := range []struct {
		key  contextKey
		name string
	}{
		{operationKey, "operation"},
		{componentKey, "component"},
		{agentKey, "agent"},
		{issueKeyKey, "issue_key"},
	} {
		if v := ctx.Value(kv.key); v != nil {
			if s, ok := v.(string); ok && s != "" {
				attrs = append(attrs, slog.String(kv.name, s))
			}
		}
	}
	return attrs
}
