package store

import (
	"encoding/json"
	"fmt"

	"github.com/devaiflow/cli/cmd/daf/cli/jsonutil"
	"github.com/devaiflow/cli/cmd/daf/cli/session"
)

// A migration rewrites a raw metadata document from one schema version to the
// next. Migrations are pure: document in, document out, no I/O.
type migration struct {
	from int
	fn   func(doc map[string]any) error
}

// migrations must form an unbroken chain from 1 to session.SchemaVersion.
var migrations = []migration{
	{from: 1, fn: migrateV1toV2},
}

// Migrate brings a raw metadata document up to the current schema version.
// Returns the (possibly rewritten) document and whether anything changed.
func Migrate(data []byte) ([]byte, bool, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false, fmt.Errorf("failed to parse metadata document: %w", err)
	}

	version := intField(doc, "schema_version", 1)
	if version > session.SchemaVersion {
		return nil, false, fmt.Errorf("metadata schema version %d is newer than supported version %d", version, session.SchemaVersion)
	}
	if version == session.SchemaVersion {
		return data, false, nil
	}

	for _, m := range migrations {
		if m.from < version {
			continue
		}
		if err := m.fn(doc); err != nil {
			return nil, false, fmt.Errorf("failed to migrate metadata from v%d: %w", m.from, err)
		}
		doc["schema_version"] = m.from + 1
	}

	out, err := jsonutil.MarshalIndentWithNewline(doc, "", "  ")
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal migrated document: %w", err)
	}
	return out, true, nil
}

// migrateV1toV2 handles three v1 quirks: the issue key field was named
// jira_key, a session carried a single top-level conversation instead of the
// per-repo map, and time tracking state did not exist yet.
func migrateV1toV2(doc map[string]any) error {
	if key, ok := doc["jira_key"]; ok {
		if _, exists := doc["issue_key"]; !exists {
			doc["issue_key"] = key
		}
		delete(doc, "jira_key")
	}

	if conv, ok := doc["conversation"]; ok {
		if _, exists := doc["conversations"]; !exists {
			repo := "default"
			if m, ok := conv.(map[string]any); ok {
				if name, ok := m["repo_name"].(string); ok && name != "" {
					repo = name
				}
			}
			doc["conversations"] = map[string]any{repo: conv}
			if _, exists := doc["active_working_directory"]; !exists {
				doc["active_working_directory"] = repo
			}
		}
		delete(doc, "conversation")
	}

	if _, ok := doc["time_tracking_state"]; !ok {
		doc["time_tracking_state"] = string(session.TimePaused)
	}
	return nil
}

func intField(doc map[string]any, key string, fallback int) int {
	v, ok := doc[key]
	if !ok {
		return fallback
	}
	f, ok := v.(float64)
	if !ok || f == 0 {
		return fallback
	}
	return int(f)
}
