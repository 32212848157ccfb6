package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nugget/helion/internal/conversation"
	"github.com/nugget/helion/internal/events"
	"github.com/nugget/helion/internal/react"
	"github.com/nugget/helion/internal/tools"
)

// DefaultMaxParallelTools bounds concurrent tool calls when the
// configured value is not positive.
const DefaultMaxParallelTools = 4

// Executor runs a named tool. *tools.Registry implements it.
type Executor interface {
	Execute(ctx context.Context, name, input string) (string, error)
}

// ToolStep runs the actions parsed by the reasoning step and turns
// their results into observations. Tool failures never escape the
// step; they become error observations the model can react to.
type ToolStep struct {
	exec        Executor
	maxParallel int
	logger      *slog.Logger
	bus         *events.Bus
}

// NewToolStep creates a tool step backed by exec.
func NewToolStep(exec Executor, maxParallel int, logger *slog.Logger) *ToolStep {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallelTools
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolStep{exec: exec, maxParallel: maxParallel, logger: logger}
}

// SetEventBus enables tool_call and tool_done events.
func (s *ToolStep) SetEventBus(bus *events.Bus) { s.bus = bus }

// Run executes state.Pending. Actions run concurrently up to the
// parallel limit; observations come back in the order the actions were
// parsed. The next transition is always back to reasoning.
func (s *ToolStep) Run(ctx context.Context, state *TurnState) StepResult {
	ctx = tools.WithUserID(ctx, state.UserID)
	ctx = tools.WithThreadID(ctx, state.ThreadID)

	obs := make([]conversation.Message, len(state.Pending))
	sem := make(chan struct{}, s.maxParallel)
	var wg sync.WaitGroup

	for i, action := range state.Pending {
		wg.Add(1)
		go func(idx int, a react.Action) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			obs[idx] = s.execute(ctx, state.RequestID, a)
		}(i, action)
	}
	wg.Wait()

	return StepResult{Messages: obs, Next: Respond}
}

func (s *ToolStep) execute(ctx context.Context, requestID string, a react.Action) conversation.ToolObservation {
	name := strings.TrimSpace(a.ToolName)
	input := strings.TrimSpace(a.RawInput)
	if name == "" || input == "" {
		s.logger.Debug("malformed tool call", "request_id", requestID, "action", a)
		tag := name
		if tag == "" {
			tag = "unknown"
		}
		return conversation.ToolObservation{ToolName: tag, Content: "Error: Malformed tool call received."}
	}

	s.bus.Emit(events.SourceAgent, events.KindToolCall, map[string]any{
		"request_id": requestID,
		"thread_id":  tools.ThreadIDFromContext(ctx),
		"tool":       name,
	})
	start := time.Now()

	out, err := s.exec.Execute(ctx, name, input)
	elapsed := time.Since(start)

	s.bus.Emit(events.SourceAgent, events.KindToolDone, map[string]any{
		"request_id":  requestID,
		"thread_id":   tools.ThreadIDFromContext(ctx),
		"tool":        name,
		"ok":          err == nil,
		"duration_ms": elapsed.Milliseconds(),
	})

	if err != nil {
		s.logger.Warn("tool failed",
			"request_id", requestID,
			"tool", name,
			"error", err,
			"elapsed", elapsed.Round(time.Millisecond),
		)
		return conversation.ToolObservation{ToolName: name, Content: errorObservation(name, err)}
	}

	s.logger.Debug("tool done",
		"request_id", requestID,
		"tool", name,
		"output_len", len(out),
		"elapsed", elapsed.Round(time.Millisecond),
	)
	return conversation.ToolObservation{ToolName: name, Content: out}
}

// errorObservation renders a tool failure for the model.
func errorObservation(name string, err error) string {
	var nf *tools.ToolNotFoundError
	if errors.As(err, &nf) {
		return fmt.Sprintf("Error: Tool %s is not available. Valid tools are: %s",
			name, strings.Join(nf.Available, ", "))
	}
	cause := err
	var ee *tools.ToolExecutionError
	if errors.As(err, &ee) && ee.Cause != nil {
		cause = ee.Cause
	}
	return fmt.Sprintf("Error: Failed to execute tool %s: %v", name, cause)
}
