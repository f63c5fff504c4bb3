package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/devaiflow/cli/cmd/daf/cli/paths"
	"github.com/devaiflow/cli/cmd/daf/cli/tracker"
)

// BackendCache is the per-backend file under backends/<name>.json: the
// tracker endpoint plus the cached field catalog with display aliases.
// The catalog is only ever refreshed explicitly; tracker schemas change
// rarely and the fetch is expensive.
type BackendCache struct {
	TrackerURL string                `json:"tracker_url,omitempty"`
	Project    string                `json:"project,omitempty"`
	FetchedAt  time.Time             `json:"fetched_at"`
	Catalog    *tracker.FieldCatalog `json:"catalog,omitempty"`
}

// LoadBackend reads the cache for a named backend. Missing file yields an
// empty cache.
func LoadBackend(root, name string) (*BackendCache, error) {
	data, err := os.ReadFile(paths.BackendConfigFile(root, name)) //nolint:gosec // fixed layout under root
	if os.IsNotExist(err) {
		return &BackendCache{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backend config: %w", err)
	}
	var bc BackendCache
	if err := json.Unmarshal(data, &bc); err != nil {
		return nil, fmt.Errorf("failed to parse backend config: %w", err)
	}
	return &bc, nil
}

// SaveBackend writes the cache for a named backend.
func SaveBackend(root, name string, bc *BackendCache) error {
	if err := os.MkdirAll(filepath.Join(root, paths.BackendsDirName), 0o750); err != nil {
		return fmt.Errorf("failed to create backends directory: %w", err)
	}
	data, err := json.MarshalIndent(bc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal backend config: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(paths.BackendConfigFile(root, name), data, 0o600); err != nil {
		return fmt.Errorf("failed to write backend config: %w", err)
	}
	return nil
}

// RefreshCatalog refetches the creatable-field catalog from the tracker and
// persists it.
func RefreshCatalog(ctx context.Context, root, name string, trk tracker.Tracker, project, kind string) (*BackendCache, error) {
	catalog, err := trk.CreatableFields(ctx, project, kind)
	if err != nil {
		return nil, err
	}
	bc, err := LoadBackend(root, name)
	if err != nil {
		return nil, err
	}
	bc.Project = project
	bc.Catalog = catalog
	bc.FetchedAt = time.Now().UTC()
	if err := SaveBackend(root, name, bc); err != nil {
		return nil, err
	}
	return bc, nil
}

// ResolveField maps a user-supplied alias to a catalog field, consulting the
// config's explicit alias map first and the catalog's display names second.
func ResolveField(cfg *Config, bc *BackendCache, alias string) (tracker.Field, bool) {
	if id, ok := cfg.FieldAliases[alias]; ok {
		alias = id
	}
	if bc == nil || bc.Catalog == nil {
		return tracker.Field{}, false
	}
	return bc.Catalog.Lookup(alias)
}
