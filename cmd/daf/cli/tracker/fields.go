package tracker

import (
	"sort"
	"strings"
)

// Field describes one tracker field from the dynamic catalog.
type Field struct {
	ID            string   `json:"field_id"`
	DisplayName   string   `json:"display_name"`
	Type          string   `json:"type"`
	Required      bool     `json:"required"`
	AllowedValues []string `json:"allowed_values,omitempty"`
}

// systemFieldIDs are the standard fields every tracker workflow has.
// Everything else is a custom field with an opaque id.
var systemFieldIDs = map[string]bool{
	"reporter":    true,
	"assignee":    true,
	"components":  true,
	"labels":      true,
	"security":    true,
	"priority":    true,
	"summary":     true,
	"description": true,
}

// IsCustom reports whether the field has an opaque tracker-assigned id.
func (f Field) IsCustom() bool {
	return !systemFieldIDs[f.ID]
}

// FieldCatalog is an ordered catalog of tracker fields, discovered at
// runtime from the tracker's metadata endpoints. Field ids are never
// hard-coded; callers resolve display names through Lookup.
type FieldCatalog struct {
	Fields []Field `json:"fields"`
}

// Lookup resolves a field by exact id or by case-insensitive display name.
func (c *FieldCatalog) Lookup(aliasOrID string) (Field, bool) {
	for _, f := range c.Fields {
		if f.ID == aliasOrID {
			return f, true
		}
	}
	for _, f := range c.Fields {
		if strings.EqualFold(f.DisplayName, aliasOrID) {
			return f, true
		}
	}
	return Field{}, false
}

// Partition splits the catalog into system and custom fields, each sorted by
// display name.
func (c *FieldCatalog) Partition() (system, custom []Field) {
	for _, f := range c.Fields {
		if f.IsCustom() {
			custom = append(custom, f)
		} else {
			system = append(system, f)
		}
	}
	byName := func(fields []Field) func(i, j int) bool {
		return func(i, j int) bool { return fields[i].DisplayName < fields[j].DisplayName }
	}
	sort.Slice(system, byName(system))
	sort.Slice(custom, byName(custom))
	return system, custom
}

// CheckCategories rejects a single assignment that mixes system and custom
// fields, which trackers apply through different update paths.
func (c *FieldCatalog) CheckCategories(fieldIDs []string) error {
	var hasSystem, hasCustom bool
	for _, id := range fieldIDs {
		if systemFieldIDs[id] {
			hasSystem = true
		} else {
			hasCustom = true
		}
	}
	if hasSystem && hasCustom {
		errs := make(map[string]string, len(fieldIDs))
		for _, id := range fieldIDs {
			errs[id] = "cannot mix system and custom fields in one update"
		}
		return &ValidationError{FieldErrors: errs}
	}
	return nil
}
