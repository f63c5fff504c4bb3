package tracker

import (
	"context"
	"errors"
	"testing"
)

func TestFieldCatalog_Lookup(t *testing.T) {
	c := &FieldCatalog{Fields: []Field{
		{ID: "summary", DisplayName: "Summary"},
		{ID: "customfield_10010", DisplayName: "Workstream"},
	}}

	if f, ok := c.Lookup("customfield_10010"); !ok || f.DisplayName != "Workstream" {
		t.Errorf("Lookup by id = %+v, %v", f, ok)
	}
	if f, ok := c.Lookup("workstream"); !ok || f.ID != "customfield_10010" {
		t.Errorf("Lookup by alias = %+v, %v", f, ok)
	}
	if _, ok := c.Lookup("nope"); ok {
		t.Error("Lookup of unknown field should fail")
	}
}

func TestFieldCatalog_Partition(t *testing.T) {
	c := &FieldCatalog{Fields: []Field{
		{ID: "customfield_10010", DisplayName: "Workstream"},
		{ID: "summary", DisplayName: "Summary"},
		{ID: "assignee", DisplayName: "Assignee"},
	}}
	system, custom := c.Partition()
	if len(system) != 2 || system[0].ID != "assignee" || system[1].ID != "summary" {
		t.Errorf("system = %+v", system)
	}
	if len(custom) != 1 || custom[0].ID != "customfield_10010" {
		t.Errorf("custom = %+v", custom)
	}
}

func TestFieldCatalog_CheckCategories(t *testing.T) {
	c := &FieldCatalog{}
	if err := c.CheckCategories([]string{"summary", "description"}); err != nil {
		t.Errorf("system-only = %v", err)
	}
	if err := c.CheckCategories([]string{"customfield_1", "customfield_2"}); err != nil {
		t.Errorf("custom-only = %v", err)
	}
	err := c.CheckCategories([]string{"summary", "customfield_1"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("mixed = %v, want ValidationError", err)
	}
	if len(ve.FieldErrors) != 2 {
		t.Errorf("FieldErrors = %v", ve.FieldErrors)
	}
}

func TestMock_CreateAndFail(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	created, err := m.CreateIssue(ctx, "Bug", map[string]any{"summary": "it breaks", "project": "PROJ"})
	if err != nil {
		t.Fatalf("CreateIssue() = %v", err)
	}
	if created.Key != "PROJ-1" || created.Type != "Bug" {
		t.Errorf("created = %+v", created)
	}

	m.Fail["transition"] = &APIError{StatusCode: 500}
	err = m.Transition(ctx, created.Key, "Done")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 500 {
		t.Errorf("scripted failure = %v", err)
	}

	// The failed call is still recorded.
	found := false
	for _, call := range m.Calls {
		if call == "transition" {
			found = true
		}
	}
	if !found {
		t.Error("transition call not recorded")
	}
}
