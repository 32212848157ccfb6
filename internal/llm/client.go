// Package llm provides streaming text-generation clients for Ollama,
// OpenAI-compatible endpoints, Anthropic and Gemini.
package llm

import (
	"context"
	"strings"
)

// Client is the interface that all LLM providers implement.
type Client interface {
	// GenerateStream starts a generation and returns a channel of text
	// chunks in generation order. Errors before the first byte are
	// returned directly; later failures arrive as a final Chunk with
	// Err set. The channel is closed when generation ends or ctx is
	// cancelled.
	GenerateStream(ctx context.Context, req Request) (<-chan Chunk, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// Generator is a model bound to a tool catalog: the capability the
// reasoning step calls once per step.
type Generator interface {
	GenerateStream(ctx context.Context, p Prompt) (<-chan Chunk, error)
	Tools() []ToolSpec
	Model() string
}

// DefaultStop keeps a ReAct model from inventing its own observation
// after writing an action.
var DefaultStop = []string{"\nObservation:"}

// Bound is a [Generator] produced by [BindTools].
type Bound struct {
	client      Client
	model       string
	tools       []ToolSpec
	stop        []string
	temperature float64
	maxTokens   int
}

// BindOption adjusts a Bound generator.
type BindOption func(*Bound)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) BindOption {
	return func(b *Bound) { b.temperature = t }
}

// WithMaxTokens caps generated tokens per step.
func WithMaxTokens(n int) BindOption {
	return func(b *Bound) { b.maxTokens = n }
}

// WithStop replaces the default stop sequences.
func WithStop(stop ...string) BindOption {
	return func(b *Bound) { b.stop = stop }
}

// BindTools attaches a tool catalog to a model on client. The catalog
// is rendered into the prompt by the caller; the bound generator adds
// the ReAct stop sequence to every request.
func BindTools(client Client, model string, tools []ToolSpec, opts ...BindOption) *Bound {
	b := &Bound{
		client: client,
		model:  model,
		tools:  append([]ToolSpec(nil), tools...),
		stop:   DefaultStop,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// GenerateStream implements [Generator].
func (b *Bound) GenerateStream(ctx context.Context, p Prompt) (<-chan Chunk, error) {
	return b.client.GenerateStream(ctx, Request{
		Model:       b.model,
		Prompt:      p,
		Stop:        b.stop,
		Temperature: b.temperature,
		MaxTokens:   b.maxTokens,
	})
}

// Tools returns the bound catalog.
func (b *Bound) Tools() []ToolSpec { return b.tools }

// Model returns the bound model name.
func (b *Bound) Model() string { return b.model }

// Collect drains ch and returns the concatenated text, or the first
// stream error.
func Collect(ch <-chan Chunk) (string, error) {
	var sb strings.Builder
	for c := range ch {
		if c.Err != nil {
			return sb.String(), c.Err
		}
		sb.WriteString(c.Text)
	}
	return sb.String(), nil
}
