package agent

import (
	"context"
	"log/slog"

	"github.com/nugget/helion/internal/conversation"
	"github.com/nugget/helion/internal/llm"
	"github.com/nugget/helion/internal/prompts"
	"github.com/nugget/helion/internal/react"
)

// ReasoningStep asks the bound model what to do next.
type ReasoningStep struct {
	gen    llm.Generator
	opts   prompts.Options
	logger *slog.Logger
}

// NewReasoningStep creates a reasoning step for gen. opts selects the
// prompt template and history bound.
func NewReasoningStep(gen llm.Generator, opts prompts.Options, logger *slog.Logger) *ReasoningStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReasoningStep{gen: gen, opts: opts, logger: logger}
}

// Model returns the name of the bound model.
func (r *ReasoningStep) Model() string { return r.gen.Model() }

// Run assembles the prompt from state, streams the model's reply and
// classifies it. Tokens after "Final Answer:" are forwarded to out as
// they arrive; everything before the marker stays internal. When the
// reader of out goes away forwarding stops, but the step still runs to
// completion so the turn can be checkpointed.
func (r *ReasoningStep) Run(ctx context.Context, state *TurnState, out chan<- string) (StepResult, error) {
	prompt, err := prompts.Assemble(state.Messages, r.gen.Tools(), r.opts)
	if err != nil {
		return StepResult{}, err
	}
	r.logger.Log(ctx, slog.Level(-8), "prompt assembled", // config.LevelTrace
		"request_id", state.RequestID,
		"system", prompt.System,
		"user", prompt.User,
	)

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := r.gen.GenerateStream(genCtx, prompt)
	if err != nil {
		return StepResult{}, &ModelInvocationError{Model: r.gen.Model(), Err: err}
	}

	done := state.consumer
	if done == nil {
		done = ctx.Done()
	}
	forwarding := out != nil

	var filter react.AnswerFilter
	for c := range ch {
		if c.Err != nil {
			return StepResult{}, &ModelInvocationError{Model: r.gen.Model(), Err: c.Err}
		}
		fwd := filter.Feed(c.Text)
		if fwd == "" || !forwarding {
			continue
		}
		if !deliver(out, done, fwd) {
			forwarding = false
			r.logger.Debug("stream consumer gone, continuing without forwarding",
				"request_id", state.RequestID)
		}
	}
	if err := ctx.Err(); err != nil {
		return StepResult{}, &ModelInvocationError{Model: r.gen.Model(), Err: err}
	}

	text := filter.Text()
	r.logger.Log(ctx, slog.Level(-8), "model output", // config.LevelTrace
		"request_id", state.RequestID,
		"text", text,
	)

	if action, ok := react.Parse(text); ok {
		r.logger.Debug("action parsed",
			"request_id", state.RequestID,
			"tool", action.ToolName,
		)
		return StepResult{
			Messages: []conversation.Message{conversation.AgentMessage{Content: text}},
			Next:     CallTool,
			Pending:  []react.Action{action},
		}, nil
	}

	if !filter.Open() {
		r.logger.Debug("no action and no final answer marker, treating output as answer",
			"request_id", state.RequestID)
	}
	return StepResult{
		Messages: []conversation.Message{conversation.AgentMessage{
			Content: react.ExtractFinalAnswer(text),
			Final:   true,
		}},
		Next:     Respond,
		Streamed: filter.Open(),
	}, nil
}

// deliver sends s to out unless done closes first.
func deliver(out chan<- string, done <-chan struct{}, s string) bool {
	select {
	case out <- s:
		return true
	case <-done:
		return false
	}
}
