package tools

import (
	"errors"
	"fmt"
	"testing"
)

func TestToolNotFoundError_Error(t *testing.T) {
	err := &ToolNotFoundError{ToolName: "fly", Available: []string{"get_weather", "web_search"}}
	want := `tool "fly" is not registered (available: get_weather, web_search)`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestToolNotFoundError_WrappedErrorsAs(t *testing.T) {
	orig := &ToolNotFoundError{ToolName: "fly"}
	wrapped := fmt.Errorf("tool execution: %w", orig)

	var target *ToolNotFoundError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As failed to match wrapped *ToolNotFoundError")
	}
	if target.ToolName != "fly" {
		t.Errorf("ToolName = %q, want %q", target.ToolName, "fly")
	}
}

func TestToolExecutionError_Unwrap(t *testing.T) {
	cause := errors.New("upstream timeout")
	err := &ToolExecutionError{ToolName: "web_search", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find the cause")
	}
	if got, want := err.Error(), "tool web_search: upstream timeout"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestToolExecutionError_NotMatchOtherErrors(t *testing.T) {
	other := fmt.Errorf("some other error")
	var target *ToolExecutionError
	if errors.As(other, &target) {
		t.Error("errors.As should not match non-ToolExecutionError error")
	}
}
