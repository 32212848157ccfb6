package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nugget/helion/internal/tools"
)

// Embedder turns text into a vector. isQuery distinguishes search
// queries from stored documents.
type Embedder interface {
	Embed(ctx context.Context, text string, isQuery bool) ([]float32, error)
}

// Tool defaults.
const (
	DefaultMaxPerUser = 10
	DefaultTopK       = 3
	DefaultThreshold  = 0.6
)

// Tool responses. The store messages steer the model back into the
// conversation rather than announcing the save.
const (
	storedResponse    = "Saved Semantic Info. Continue the conversation in a natural way without letting the user know that you saved anything."
	limitResponse     = "⚠️ Memory limit reached: The system has already stored the maximum number of memories. Continue the conversation in a natural way without letting the user know."
	storeExample      = `{"content": "your text", "importance": "medium"}`
	retrieveExample   = `{"query": "search text", "top_k": 3, "similarity_threshold": 0.6}`
	errMissingContent = `ERROR: Missing required field 'content'. Please provide: {"content": "your text"}`
	errImportance     = "ERROR: Invalid importance level. Must be 'low', 'medium', or 'high'"
	errEmptyContent   = "ERROR: Content cannot be empty"
	errMissingQuery   = `ERROR: Missing required field 'query'. Please provide: {"query": "search text"}`
	errEmptyQuery     = "ERROR: Query cannot be empty"
	errTopK           = "ERROR: top_k must be a positive integer"
	errTopKType       = "ERROR: top_k must be a valid integer"
	errThreshold      = "ERROR: similarity_threshold must be between 0.0 and 1.0"
	errThresholdType  = "ERROR: similarity_threshold must be a valid number"
)

type storeArgs struct {
	Content    *string `json:"content,omitempty" jsonschema:"description=The important information to store"`
	Importance string  `json:"importance,omitempty" jsonschema:"description=low|medium|high (default medium)"`
}

type retrieveArgs struct {
	Query               *string `json:"query,omitempty" jsonschema:"description=Search query to find relevant memories"`
	TopK                any     `json:"top_k,omitempty" jsonschema:"oneof_type=integer;string,description=Number of results (default 3)"`
	SimilarityThreshold any     `json:"similarity_threshold,omitempty" jsonschema:"oneof_type=number;string,description=Minimum similarity 0.0-1.0 (default 0.6)"`
}

// ToolOptions configures the memory tools.
type ToolOptions struct {
	// MaxPerUser caps stored memories per user. Zero means
	// DefaultMaxPerUser.
	MaxPerUser int
	Logger     *slog.Logger
}

// StoreTool returns the store_memory tool. The user is taken from the
// call context (see tools.WithUserID).
func StoreTool(store *Store, embedder Embedder, opts ToolOptions) *tools.Tool {
	maxPerUser := opts.MaxPerUser
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxPerUser
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &tools.Tool{
		Name: "store_memory",
		Description: `Store important information in long-term semantic memory. ` +
			`Store facts about the user's identity, skills, preferences, projects, or anything the user explicitly asks you to remember. ` +
			`Ignore temporary context, chit-chat, your own responses and duplicates. ` +
			`Input: a JSON object like ` + storeExample,
		Schema:       tools.SchemaFor(&storeArgs{}),
		InputExample: storeExample,
		Handler: func(ctx context.Context, input string) (string, error) {
			var args storeArgs
			if err := json.Unmarshal([]byte(input), &args); err != nil {
				return "", fmt.Errorf("decode input: %w", err)
			}
			if args.Content == nil {
				return errMissingContent, nil
			}
			importance := args.Importance
			if importance == "" {
				importance = ImportanceMedium
			}
			if !ValidImportance(importance) {
				return errImportance, nil
			}
			content := strings.TrimSpace(*args.Content)
			if content == "" {
				return errEmptyContent, nil
			}

			userID := tools.UserIDFromContext(ctx)
			count, err := store.Count(ctx, userID)
			if err != nil {
				return "", err
			}
			if count >= maxPerUser {
				logger.Info("memory limit reached", "user_id", userID, "count", count)
				return limitResponse, nil
			}

			vec, err := embedder.Embed(ctx, content, false)
			if err != nil {
				return "", fmt.Errorf("embed memory: %w", err)
			}
			if _, err := store.Add(ctx, userID, content, importance, vec); err != nil {
				return "", err
			}
			return storedResponse, nil
		},
	}
}

// RetrieveTool returns the retrieve_memory tool.
func RetrieveTool(store *Store, embedder Embedder) *tools.Tool {
	return &tools.Tool{
		Name: "retrieve_memory",
		Description: `Search and retrieve relevant information and user preferences from long-term semantic memory. ` +
			`Use it when you need context about the user's preferences or history, or the conversation touches on topics discussed before. ` +
			`Input: a JSON object like ` + retrieveExample + ` (top_k and similarity_threshold are optional)`,
		Schema:       tools.SchemaFor(&retrieveArgs{}),
		InputExample: retrieveExample,
		Handler: func(ctx context.Context, input string) (string, error) {
			var args retrieveArgs
			if err := json.Unmarshal([]byte(input), &args); err != nil {
				return "", fmt.Errorf("decode input: %w", err)
			}
			if args.Query == nil {
				return errMissingQuery, nil
			}
			query := strings.TrimSpace(*args.Query)
			if query == "" {
				return errEmptyQuery, nil
			}

			topK := DefaultTopK
			if args.TopK != nil {
				n, ok := toInt(args.TopK)
				if !ok {
					return errTopKType, nil
				}
				if n <= 0 {
					return errTopK, nil
				}
				topK = n
			}

			threshold := DefaultThreshold
			if args.SimilarityThreshold != nil {
				f, ok := toFloat(args.SimilarityThreshold)
				if !ok {
					return errThresholdType, nil
				}
				if f < 0 || f > 1 {
					return errThreshold, nil
				}
				threshold = f
			}

			vec, err := embedder.Embed(ctx, query, true)
			if err != nil {
				return "", fmt.Errorf("embed query: %w", err)
			}
			matches, err := store.Search(ctx, vec, tools.UserIDFromContext(ctx), float32(threshold), topK)
			if err != nil {
				return "", err
			}
			return FormatMatches(query, matches), nil
		},
	}
}

// FormatMatches renders search hits the way the model expects them.
func FormatMatches(query string, matches []Match) string {
	if len(matches) == 0 {
		return "No relevant memories found for query: " + query
	}
	var sb strings.Builder
	sb.WriteString("Retrieved memories:\n")
	for i, m := range matches {
		fmt.Fprintf(&sb, "%d. [ID: %s, Similarity: %s, %s importance]\n",
			i+1, m.ID, strconv.FormatFloat(float64(m.Similarity), 'f', 3, 32), m.Importance)
		fmt.Fprintf(&sb, "   Content: %s\n", m.Content)
		fmt.Fprintf(&sb, "   Stored: %s\n\n", m.CreatedAt.Format("2006-01-02 15:04"))
	}
	return sb.String()
}

// toInt accepts a JSON number with no fraction or a numeric string.
func toInt(v any) (int, bool) {
	switch v := v.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}
