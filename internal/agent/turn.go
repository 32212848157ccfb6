// Package agent runs conversation turns: a reasoning step that asks the
// model what to do, a tool step that does it, and a scheduler that
// alternates the two until the model answers or a guardrail trips.
package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/nugget/helion/internal/conversation"
	"github.com/nugget/helion/internal/react"
)

// NextAction is the transition chosen at the end of a step.
type NextAction int

const (
	// Respond ends the turn after a reasoning step, or returns to
	// reasoning after a tool step.
	Respond NextAction = iota
	// CallTool sends the pending actions to the tool step.
	CallTool
)

func (n NextAction) String() string {
	switch n {
	case Respond:
		return "respond"
	case CallTool:
		return "call_tool"
	default:
		return "unknown"
	}
}

// TurnState is the working state of one turn. It is built from the
// thread's latest checkpoint plus the new user message and discarded
// when the turn ends.
type TurnState struct {
	ThreadID  string
	UserID    string
	RequestID string

	Messages []conversation.Message
	Next     NextAction
	Pending  []react.Action

	// consumer is closed when the reader of the token stream goes
	// away. Nil means the step context governs delivery.
	consumer <-chan struct{}
}

// StepResult is what a step contributes to the turn.
type StepResult struct {
	// Messages are appended to the log in order.
	Messages []conversation.Message
	Next     NextAction
	Pending  []react.Action

	// Streamed is set when the answer was forwarded token by token.
	Streamed bool
}

// Turn is one user message to process.
type Turn struct {
	ThreadID string
	UserID   string
	Input    string
}

// Result describes a finished turn.
type Result struct {
	ThreadID     string                 `json:"thread_id"`
	RequestID    string                 `json:"request_id"`
	Answer       string                 `json:"answer"`
	Steps        int                    `json:"steps"`
	Guardrail    string                 `json:"guardrail,omitempty"`
	CheckpointID uuid.UUID              `json:"checkpoint_id"`
	Elapsed      time.Duration          `json:"elapsed"`
	Messages     []conversation.Message `json:"-"`
}

// generateRequestID returns a short id for correlating the log lines
// and events of one turn.
func generateRequestID() string {
	return "r_" + uuid.NewString()[:8]
}
