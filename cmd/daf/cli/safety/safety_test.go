package safety

import (
	"errors"
	"strings"
	"testing"
)

func TestGuard_RefusesMutatingInsideAgent(t *testing.T) {
	t.Setenv(EnvInsideAgent, "1")

	err := Guard("new")
	if err == nil {
		t.Fatal("Guard(new) = nil, want RefusedError")
	}

	var refused *RefusedError
	if !errors.As(err, &refused) {
		t.Fatalf("Guard(new) error type = %T, want *RefusedError", err)
	}
	if !strings.Contains(err.Error(), EnvInsideAgent) {
		t.Errorf("error %q should name the triggering variable", err)
	}
	if !strings.Contains(err.Error(), "inside agent") {
		t.Errorf("error %q should mention running inside agent", err)
	}
}

func TestGuard_AllowsReadOnlyInsideAgent(t *testing.T) {
	t.Setenv(EnvInsideAgent, "1")

	for _, op := range []string{"list", "info", "status", "active", "note view", "jira view", "time", "config show"} {
		if err := Guard(op); err != nil {
			t.Errorf("Guard(%q) = %v, want nil", op, err)
		}
	}
}

func TestGuard_AllowsMutatingOutsideAgent(t *testing.T) {
	t.Setenv(EnvInsideAgent, "")

	if err := Guard("complete"); err != nil {
		t.Errorf("Guard(complete) = %v, want nil", err)
	}
}

func TestIsMutating(t *testing.T) {
	if !IsMutating("delete") {
		t.Error("delete should be mutating")
	}
	if IsMutating("list") {
		t.Error("list should not be mutating")
	}
}
