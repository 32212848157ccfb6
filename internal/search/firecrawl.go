package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/helion/internal/httpkit"
)

const firecrawlBaseURL = "https://api.firecrawl.dev"

// Firecrawl implements the Provider interface for the Firecrawl search
// API.
type Firecrawl struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewFirecrawl creates a Firecrawl provider. An empty baseURL uses the
// hosted API.
func NewFirecrawl(apiKey, baseURL string) *Firecrawl {
	if baseURL == "" {
		baseURL = firecrawlBaseURL
	}
	return &Firecrawl{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(30 * time.Second),
		),
	}
}

// Name implements [Provider].
func (f *Firecrawl) Name() string { return "firecrawl" }

type firecrawlRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
	Lang  string `json:"lang,omitempty"`
}

type firecrawlResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
	} `json:"data"`
}

// Search implements [Provider].
func (f *Firecrawl) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	body, err := json.Marshal(firecrawlRequest{Query: query, Limit: opts.count(), Lang: opts.Language})
	if err != nil {
		return nil, fmt.Errorf("firecrawl: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("firecrawl: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.apiKey)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("firecrawl: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("firecrawl: HTTP %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}

	var fr firecrawlResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("firecrawl: decode response: %w", err)
	}
	if !fr.Success {
		return nil, fmt.Errorf("firecrawl search failed: %s", fr.Error)
	}

	results := make([]Result, 0, len(fr.Data))
	for _, d := range fr.Data {
		results = append(results, Result{
			Title:   d.Title,
			URL:     d.URL,
			Snippet: d.Description,
		})
	}
	return results, nil
}
