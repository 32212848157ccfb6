package llm

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/nugget/helion/internal/httpkit"
)

// GeminiClient streams from the Gemini API.
type GeminiClient struct {
	client *genai.Client
	logger *slog.Logger
}

// NewGeminiClient creates a Gemini client for the public Gemini API
// backend.
func NewGeminiClient(ctx context.Context, apiKey string, logger *slog.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpkit.NewClient(httpkit.WithTimeout(0)),
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{
		client: client,
		logger: logger.With("provider", "gemini"),
	}, nil
}

func buildGeminiConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		StopSequences: req.Stop,
	}
	if req.Prompt.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.Prompt.System, genai.RoleUser)
	}
	if req.Temperature != 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	return cfg
}

// GenerateStream implements [Client].
func (c *GeminiClient) GenerateStream(ctx context.Context, req Request) (<-chan Chunk, error) {
	cfg := buildGeminiConfig(req)

	out := make(chan Chunk)
	go func() {
		defer close(out)

		for resp, err := range c.client.Models.GenerateContentStream(ctx, req.Model, genai.Text(req.Prompt.User), cfg) {
			if err != nil {
				send(ctx, out, Chunk{Err: fmt.Errorf("gemini stream: %w", err)})
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !send(ctx, out, Chunk{Text: text}) {
				return
			}
		}
		c.logger.Debug("gemini stream complete", "model", req.Model)
	}()
	return out, nil
}

// Ping lists one model to confirm the key works.
func (c *GeminiClient) Ping(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx, &genai.ListModelsConfig{PageSize: 1}); err != nil {
		return fmt.Errorf("gemini ping: %w", err)
	}
	return nil
}
