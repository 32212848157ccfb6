package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/helion/internal/checkpoint"
	"github.com/nugget/helion/internal/conversation"
	"github.com/nugget/helion/internal/events"
)

// FallbackAnswer is the reply given when a turn hits a guardrail.
const FallbackAnswer = "I'm sorry, I could not complete that request in time. Please try again or rephrase your question."

// Guardrail reasons reported in [Result.Guardrail].
const (
	GuardrailIterations = "max_iterations"
	GuardrailDuration   = "max_duration"
)

// Checkpointer persists thread state. *checkpoint.Store implements it.
type Checkpointer interface {
	LoadLatest(ctx context.Context, threadID string) (*checkpoint.Checkpoint, bool, error)
	Save(ctx context.Context, threadID string, msgs []conversation.Message, meta checkpoint.Metadata) (uuid.UUID, error)
}

// Config bounds a turn.
type Config struct {
	// MaxIterations is the number of reasoning steps allowed per turn.
	MaxIterations int
	// MaxDuration is the wall-clock budget for a turn.
	MaxDuration time.Duration
}

// Scheduler runs turns, alternating reasoning and tool execution until
// the model answers or a guardrail trips. Every step is checkpointed
// before the next one starts.
type Scheduler struct {
	reasoning *ReasoningStep
	tools     *ToolStep
	store     Checkpointer
	locks     *ThreadLocks
	cfg       Config
	logger    *slog.Logger
	bus       *events.Bus
	now       func() time.Time
}

// NewScheduler wires the two steps to a checkpoint store.
func NewScheduler(reasoning *ReasoningStep, toolStep *ToolStep, store Checkpointer, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 8
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		reasoning: reasoning,
		tools:     toolStep,
		store:     store,
		locks:     NewThreadLocks(),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// SetEventBus enables lifecycle events for turns and tool calls.
func (s *Scheduler) SetEventBus(bus *events.Bus) {
	s.bus = bus
	s.tools.SetEventBus(bus)
}

// Locks exposes the per-thread lock table.
func (s *Scheduler) Locks() *ThreadLocks { return s.locks }

// Run processes one user message on a thread. Answer text is written
// to out as it is produced; out may be nil. Run never closes out.
//
// ctx bounds the whole turn. If the reader of out stops early, pass a
// consumer-scoped context with [WithConsumer]: forwarding stops when it
// is done but the turn finishes and is checkpointed.
func (s *Scheduler) Run(ctx context.Context, turn Turn, out chan<- string) (*Result, error) {
	if turn.ThreadID == "" {
		return nil, fmt.Errorf("thread id is required")
	}

	unlock, err := s.locks.Lock(ctx, turn.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("wait for thread %s: %w", turn.ThreadID, err)
	}
	defer unlock()

	start := s.now()
	requestID := generateRequestID()
	log := s.logger.With("request_id", requestID, "thread_id", turn.ThreadID)

	prev, _, err := s.store.LoadLatest(ctx, turn.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", turn.ThreadID, err)
	}
	var history []conversation.Message
	if prev != nil {
		history = prev.Messages
	}

	state := &TurnState{
		ThreadID:  turn.ThreadID,
		UserID:    turn.UserID,
		RequestID: requestID,
		Messages:  conversation.Append(history, conversation.UserMessage{Content: turn.Input}),
		Next:      Respond,
		consumer:  consumerFrom(ctx),
	}

	// Saves outlive the caller's cancellation so the thread never
	// stops between a step and its checkpoint.
	saveCtx := context.WithoutCancel(ctx)
	step := 0
	save := func(src checkpoint.Source) (uuid.UUID, error) {
		id, err := s.store.Save(saveCtx, turn.ThreadID, state.Messages, checkpoint.Metadata{
			UserID: turn.UserID,
			Source: src,
			Step:   step,
		})
		if err != nil {
			werr := &CheckpointWriteError{ThreadID: turn.ThreadID, Source: src, Err: err}
			s.fail(log, requestID, turn.ThreadID, werr)
			return uuid.Nil, werr
		}
		return id, nil
	}

	log.Info("turn started",
		"user_id", turn.UserID,
		"history", len(history),
		"input_len", len(turn.Input),
	)
	s.bus.Emit(events.SourceAgent, events.KindTurnStart, map[string]any{
		"request_id": requestID,
		"thread_id":  turn.ThreadID,
		"user_id":    turn.UserID,
	})

	if _, err := save(checkpoint.SourceInput); err != nil {
		return nil, err
	}

	turnCtx, cancel := context.WithTimeout(ctx, s.cfg.MaxDuration)
	defer cancel()

	iterations := 0
	for {
		if iterations >= s.cfg.MaxIterations {
			return s.guardrail(ctx, state, out, save, log, start, iterations, GuardrailIterations)
		}
		if s.now().Sub(start) >= s.cfg.MaxDuration {
			return s.guardrail(ctx, state, out, save, log, start, iterations, GuardrailDuration)
		}

		iterations++
		step++
		s.bus.Emit(events.SourceAgent, events.KindLLMCall, map[string]any{
			"request_id": requestID,
			"thread_id":  turn.ThreadID,
			"step":       step,
			"model":      s.reasoning.Model(),
		})
		llmStart := s.now()

		res, err := s.reasoning.Run(turnCtx, state, out)
		if err != nil {
			if errors.Is(turnCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return s.guardrail(ctx, state, out, save, log, start, iterations, GuardrailDuration)
			}
			s.fail(log, requestID, turn.ThreadID, err)
			return nil, err
		}

		s.bus.Emit(events.SourceAgent, events.KindLLMResponse, map[string]any{
			"request_id": requestID,
			"thread_id":  turn.ThreadID,
			"step":       step,
			"next":       res.Next.String(),
			"elapsed_ms": s.now().Sub(llmStart).Milliseconds(),
		})

		state.Messages = conversation.Append(state.Messages, res.Messages...)
		state.Next = res.Next
		state.Pending = res.Pending
		id, err := save(checkpoint.SourceAgent)
		if err != nil {
			return nil, err
		}

		switch state.Next {
		case Respond:
			answer := finalAnswer(res.Messages)
			if !res.Streamed && out != nil && answer != "" {
				deliver(out, state.consumerOr(ctx), answer)
			}
			elapsed := s.now().Sub(start)
			log.Info("turn complete",
				"steps", iterations,
				"answer_len", len(answer),
				"elapsed", elapsed.Round(time.Millisecond),
			)
			s.bus.Emit(events.SourceAgent, events.KindTurnComplete, map[string]any{
				"request_id": requestID,
				"thread_id":  turn.ThreadID,
				"steps":      iterations,
				"elapsed_ms": elapsed.Milliseconds(),
			})
			return &Result{
				ThreadID:     turn.ThreadID,
				RequestID:    requestID,
				Answer:       answer,
				Steps:        iterations,
				CheckpointID: id,
				Elapsed:      elapsed,
				Messages:     state.Messages,
			}, nil

		case CallTool:
			// No reasoning step is left to read an observation.
			if iterations >= s.cfg.MaxIterations {
				return s.guardrail(ctx, state, out, save, log, start, iterations, GuardrailIterations)
			}
			step++
			tres := s.tools.Run(turnCtx, state)
			state.Messages = conversation.Append(state.Messages, tres.Messages...)
			state.Next = tres.Next
			state.Pending = nil
			if _, err := save(checkpoint.SourceTools); err != nil {
				return nil, err
			}
		}
	}
}

// guardrail ends the turn with the fallback answer.
func (s *Scheduler) guardrail(
	ctx context.Context,
	state *TurnState,
	out chan<- string,
	save func(checkpoint.Source) (uuid.UUID, error),
	log *slog.Logger,
	start time.Time,
	iterations int,
	reason string,
) (*Result, error) {
	log.Warn("turn guardrail tripped",
		"reason", reason,
		"steps", iterations,
		"elapsed", s.now().Sub(start).Round(time.Millisecond),
	)
	s.bus.Emit(events.SourceAgent, events.KindGuardrail, map[string]any{
		"request_id": state.RequestID,
		"thread_id":  state.ThreadID,
		"reason":     reason,
		"steps":      iterations,
	})

	state.Messages = conversation.Append(state.Messages, conversation.AgentMessage{Content: FallbackAnswer, Final: true})
	state.Next = Respond
	state.Pending = nil
	id, err := save(checkpoint.SourceGuardrail)
	if err != nil {
		return nil, err
	}
	if out != nil {
		deliver(out, state.consumerOr(ctx), FallbackAnswer)
	}

	return &Result{
		ThreadID:     state.ThreadID,
		RequestID:    state.RequestID,
		Answer:       FallbackAnswer,
		Steps:        iterations,
		Guardrail:    reason,
		CheckpointID: id,
		Elapsed:      s.now().Sub(start),
		Messages:     state.Messages,
	}, nil
}

func (s *Scheduler) fail(log *slog.Logger, requestID, threadID string, err error) {
	log.Error("turn failed", "error", err)
	s.bus.Emit(events.SourceAgent, events.KindTurnError, map[string]any{
		"request_id": requestID,
		"thread_id":  threadID,
		"error":      err.Error(),
	})
}

func finalAnswer(msgs []conversation.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if m, ok := msgs[i].(conversation.AgentMessage); ok && m.Final {
			return m.Content
		}
	}
	return ""
}

type consumerKey struct{}

// WithConsumer attaches the lifetime of the token stream's reader to
// ctx. When consumer is done the scheduler stops forwarding tokens but
// keeps running the turn.
func WithConsumer(ctx, consumer context.Context) context.Context {
	return context.WithValue(ctx, consumerKey{}, consumer)
}

func consumerFrom(ctx context.Context) <-chan struct{} {
	if c, ok := ctx.Value(consumerKey{}).(context.Context); ok {
		return c.Done()
	}
	return nil
}

// consumerOr returns the consumer's done channel, or ctx's when no
// consumer was attached.
func (st *TurnState) consumerOr(ctx context.Context) <-chan struct{} {
	if st.consumer != nil {
		return st.consumer
	}
	return ctx.Done()
}
