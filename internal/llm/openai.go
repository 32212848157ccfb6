package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/nugget/helion/internal/httpkit"
)

// OpenAIClient streams chat completions from OpenAI or any endpoint
// that speaks the same API (vLLM, LM Studio, OpenRouter).
type OpenAIClient struct {
	client openai.Client
	logger *slog.Logger
}

// NewOpenAIClient creates a client. An empty baseURL uses api.openai.com.
func NewOpenAIClient(apiKey, baseURL string, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpkit.NewClient(httpkit.WithTimeout(0))),
		// Retries belong to the caller; a failed step is reported, not replayed.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{
		client: openai.NewClient(opts...),
		logger: logger.With("provider", "openai"),
	}
}

func buildOpenAIParams(req Request) openai.ChatCompletionNewParams {
	var msgs []openai.ChatCompletionMessageParamUnion
	if req.Prompt.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.Prompt.System))
	}
	msgs = append(msgs, openai.UserMessage(req.Prompt.User))

	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    req.Model,
	}
	if req.Temperature != 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	return params
}

// GenerateStream implements [Client]. Stop sequences are not sent;
// the action parser only reads the first Action and Action Input so
// trailing text after them is harmless.
func (c *OpenAIClient) GenerateStream(ctx context.Context, req Request) (<-chan Chunk, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, buildOpenAIParams(req))

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !send(ctx, out, Chunk{Text: choice.Delta.Content}) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			send(ctx, out, Chunk{Err: fmt.Errorf("openai stream: %w", err)})
		}
	}()
	return out, nil
}

// Ping lists models to confirm the key and endpoint work.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx); err != nil {
		return fmt.Errorf("openai ping: %w", err)
	}
	return nil
}
