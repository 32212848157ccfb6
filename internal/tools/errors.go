package tools

import (
	"fmt"
	"strings"
)

// ToolNotFoundError is returned when a call targets a name that is not
// registered. Available lists the registered names so the caller can
// tell the model what it may use instead.
type ToolNotFoundError struct {
	ToolName  string
	Available []string
}

// Error implements the error interface.
func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool %q is not registered (available: %s)", e.ToolName, strings.Join(e.Available, ", "))
}

// ToolExecutionError wraps a failure inside a registered tool: invalid
// input, a handler error, or a recovered panic.
type ToolExecutionError struct {
	ToolName string
	Cause    error
}

// Error implements the error interface.
func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.ToolName, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ToolExecutionError) Unwrap() error { return e.Cause }
