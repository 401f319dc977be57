package tui

import (
	"errors"
	"strings"
	"testing"

	"github.com/xonecas/tally/internal/nav"
)

func validateResult(t *testing.T, s *validateScreen) actionResultMsg {
	t.Helper()
	for _, msg := range runCmd(s.Init()) {
		if result, ok := msg.(actionResultMsg); ok {
			return result
		}
	}
	t.Fatal("expected a validation result")
	return actionResultMsg{}
}

func TestValidateScreenGoesHome(t *testing.T) {
	env, actions := newTestEnv(t)
	s := newValidateScreen(env, "7", "abc")
	if !strings.Contains(s.View(60, 10), "Validating") {
		t.Error("expected the pending message")
	}

	result := validateResult(t, s)
	if result.err != nil || result.next != nav.PathHome {
		t.Fatalf("result = %#v", result)
	}
	if len(actions.validated) != 1 || actions.validated[0] != "7/abc" {
		t.Errorf("validated = %v", actions.validated)
	}

	_, cmd := s.Update(result)
	if msg, ok := cmd().(navigateMsg); !ok || msg.path != nav.PathHome {
		t.Errorf("expected navigation home, got %#v", msg)
	}
}

func TestValidateScreenShowsFailure(t *testing.T) {
	env, actions := newTestEnv(t)
	actions.err = errors.New("expired")
	s := newValidateScreen(env, "7", "old")

	_, cmd := s.Update(validateResult(t, s))
	if cmd != nil {
		t.Error("failed validation must stay on the screen")
	}
	view := s.View(60, 10)
	if !strings.Contains(view, "could not be validated") || !strings.Contains(view, "expired") {
		t.Errorf("view = %q", view)
	}
}
