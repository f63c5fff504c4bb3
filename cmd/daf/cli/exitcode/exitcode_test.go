package exitcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/charmbracelet/huh"

	"github.com/devaiflow/cli/cmd/daf/cli/manager"
	"github.com/devaiflow/cli/cmd/daf/cli/safety"
	"github.com/devaiflow/cli/cmd/daf/cli/tracker"
)

func TestFromError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, OK},
		{"generic", errors.New("boom"), Failure},
		{"wrapped generic", fmt.Errorf("context: %w", errors.New("boom")), Failure},
		{"cancelled", manager.ErrCancelled, Cancelled},
		{"huh aborted", huh.ErrUserAborted, Cancelled},
		{"safety", &safety.RefusedError{Operation: "new"}, SafetyRefused},
		{"auth", &tracker.AuthError{StatusCode: 401}, AuthFailed},
		{"remote not found", &tracker.NotFoundError{Kind: "issue", ID: "X-1"}, NotFound},
		{"local not found", &manager.NotFoundError{Name: "feat-x"}, NotFound},
		{"validation", &tracker.ValidationError{FieldErrors: map[string]string{"f": "bad"}}, Validation},
		{"wrapped validation", fmt.Errorf("create: %w", &tracker.ValidationError{}), Validation},
	}
	for _, tc := range cases {
		if got := FromError(tc.err); got != tc.want {
			t.Errorf("%s: FromError() = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestCode(t *testing.T) {
	if got := Code(&tracker.ValidationError{}); got != "VALIDATION_ERROR" {
		t.Errorf("Code(validation) = %q", got)
	}
	if got := Code(&manager.ConflictError{Name: "x"}); got != "CONFLICT" {
		t.Errorf("Code(conflict) = %q", got)
	}
	if got := Code(&manager.NeedsInteractiveError{Reason: "r"}); got != "NEEDS_INTERACTIVE" {
		t.Errorf("Code(needs interactive) = %q", got)
	}
}

func TestDetails_FieldErrors(t *testing.T) {
	err := fmt.Errorf("jira create: %w", &tracker.ValidationError{
		FieldErrors: map[string]string{"customfield_10010": "required"},
	})
	details := Details(err)
	fe, ok := details["field_errors"].(map[string]string)
	if !ok || fe["customfield_10010"] != "required" {
		t.Errorf("Details() = %v", details)
	}
}
