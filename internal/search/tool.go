package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nugget/helion/internal/tools"
)

// Tool returns the web_search tool backed by mgr. count is the number
// of results handed to the model; zero means DefaultCount.
func Tool(mgr *Manager, count int) *tools.Tool {
	return &tools.Tool{
		Name:        "web_search",
		Description: "Search the web for current information and external facts. Input: the search query as plain text.",
		Handler: func(ctx context.Context, input string) (string, error) {
			query := queryFromInput(input)
			if query == "" {
				return "", fmt.Errorf("web_search: query is required")
			}
			results, err := mgr.Search(ctx, query, Options{Count: count})
			if err != nil {
				return "", err
			}
			return FormatResults(results), nil
		},
	}
}

// queryFromInput accepts either a bare query or a JSON object with a
// "query" field, which some models emit despite the instructions.
func queryFromInput(input string) string {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "{") {
		var args struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal([]byte(input), &args); err == nil && args.Query != "" {
			return strings.TrimSpace(args.Query)
		}
	}
	return strings.Trim(input, `"`)
}
