// Package summarize produces the short summary stored on a
// ConversationContext when it is archived or the session completes. The
// engine itself never generates language; it invokes an external generator
// chosen by the configured summary mode.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/devaiflow/cli/cmd/daf/cli/config"
)

// Input is everything a generator may use.
type Input struct {
	// Transcript is the raw JSONL conversation, already redacted.
	Transcript []byte
	// Goal is the session goal, for generators that cannot read transcripts.
	Goal string
	// MessageCount is the transcript length in messages.
	MessageCount int
}

// Generator turns a conversation into a one-paragraph summary.
type Generator interface {
	Generate(ctx context.Context, in Input) (string, error)
}

// ForMode returns the generator for a configured summary mode. Mode none
// returns nil: the caller stores no summary.
//
//nolint:ireturn // dispatch over modes has no single concrete type
func ForMode(mode config.SummaryMode) Generator {
	switch mode {
	case config.SummaryAI:
		return &ClaudeGenerator{}
	case config.SummaryBoth:
		return &fallbackGenerator{primary: &ClaudeGenerator{}, fallback: &LocalGenerator{}}
	case config.SummaryNone:
		return nil
	case config.SummaryLocal:
		return &LocalGenerator{}
	default:
		return &LocalGenerator{}
	}
}

// fallbackGenerator tries the primary and falls back on any error.
type fallbackGenerator struct {
	primary  Generator
	fallback Generator
}

func (g *fallbackGenerator) Generate(ctx context.Context, in Input) (string, error) {
	out, err := g.primary.Generate(ctx, in)
	if err == nil {
		return out, nil
	}
	return g.fallback.Generate(ctx, in)
}

// LocalGenerator builds a summary without any external call: the goal plus
// what can be counted from the transcript.
type LocalGenerator struct{}

func (g *LocalGenerator) Generate(_ context.Context, in Input) (string, error) {
	var parts []string
	if in.Goal != "" {
		parts = append(parts, "Worked on: "+in.Goal)
	}
	if in.MessageCount > 0 {
		parts = append(parts, fmt.Sprintf("%d messages exchanged", in.MessageCount))
	}
	if len(parts) == 0 {
		return "", errors.New("nothing to summarize")
	}
	return strings.Join(parts, ". ") + ".", nil
}
