package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nugget/helion/internal/httpkit"
)

// AnthropicClient streams from the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	logger *slog.Logger
}

// NewAnthropicClient creates a new Anthropic client. baseURL may be
// empty to use the public API.
func NewAnthropicClient(apiKey, baseURL string, logger *slog.Logger) *AnthropicClient {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpkit.NewClient(httpkit.WithTimeout(0))),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
		logger: logger.With("provider", "anthropic"),
	}
}

func buildAnthropicParams(req Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt.User)),
		},
	}
	if req.Prompt.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Prompt.System}}
	}
	if req.Temperature != 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	// The API rejects stop sequences that are only whitespace.
	for _, s := range req.Stop {
		if strings.TrimSpace(s) != "" {
			params.StopSequences = append(params.StopSequences, s)
		}
	}
	return params
}

// GenerateStream implements [Client].
func (c *AnthropicClient) GenerateStream(ctx context.Context, req Request) (<-chan Chunk, error) {
	stream := c.client.Messages.NewStreaming(ctx, buildAnthropicParams(req))

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
					if !send(ctx, out, Chunk{Text: delta.Text}) {
						return
					}
				}
			case anthropic.MessageDeltaEvent:
				c.logger.Debug("anthropic stream complete",
					"stop_reason", ev.Delta.StopReason,
					"tokens_out", ev.Usage.OutputTokens,
				)
			}
		}
		if err := stream.Err(); err != nil {
			send(ctx, out, Chunk{Err: fmt.Errorf("anthropic stream: %w", err)})
		}
	}()
	return out, nil
}

// Ping lists models to confirm the key works.
func (c *AnthropicClient) Ping(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return fmt.Errorf("anthropic ping: %w", err)
	}
	return nil
}
