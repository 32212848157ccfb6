package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// mockProvider is a simple test provider.
type mockProvider struct {
	name    string
	results []Result
	err     error
	query   string
}

func (m *mockProvider) Name() string { return m.name }
func (m *mockProvider) Search(_ context.Context, q string, _ Options) ([]Result, error) {
	m.query = q
	return m.results, m.err
}

func TestManagerSearch(t *testing.T) {
	mgr := NewManager("mock")
	mgr.Register(&mockProvider{
		name: "mock",
		results: []Result{
			{Title: "Test", URL: "https://example.com", Snippet: "A <b>test</b> result"},
			{Title: "Two", URL: "https://example.com/2"},
			{Title: "Three", URL: "https://example.com/3"},
		},
	})

	results, err := mgr.Search(context.Background(), "test", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != DefaultCount {
		t.Fatalf("expected %d results, got %d", DefaultCount, len(results))
	}
	if results[0].Snippet != "A test result" {
		t.Errorf("snippet = %q, want tags stripped", results[0].Snippet)
	}
}

func TestManagerSearchWith(t *testing.T) {
	mgr := NewManager("primary")
	mgr.Register(&mockProvider{name: "primary", results: []Result{{Title: "Primary"}}})
	mgr.Register(&mockProvider{name: "secondary", results: []Result{{Title: "Secondary"}}})

	results, err := mgr.SearchWith(context.Background(), "secondary", "test", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Title != "Secondary" {
		t.Errorf("expected 'Secondary', got %q", results[0].Title)
	}
	if got := strings.Join(mgr.Providers(), ","); got != "primary,secondary" {
		t.Errorf("Providers() = %s", got)
	}
}

func TestManagerPrimaryDefaultsToFirst(t *testing.T) {
	mgr := NewManager("")
	mgr.Register(&mockProvider{name: "brave"})
	mgr.Register(&mockProvider{name: "searxng"})
	if mgr.Primary() != "brave" {
		t.Errorf("Primary() = %q, want brave", mgr.Primary())
	}
}

func TestManagerUnconfigured(t *testing.T) {
	mgr := NewManager("missing")
	if mgr.Configured() {
		t.Error("Configured() = true with no providers")
	}
	if _, err := mgr.Search(context.Background(), "test", Options{}); err == nil {
		t.Fatal("expected error for missing provider")
	}
}

func TestCleanSnippet(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"plain text", "plain text"},
		{"<strong>Paris</strong> weather &amp; forecast", "Paris weather & forecast"},
		{"line\n\n  breaks\tand   spaces", "line breaks and spaces"},
		{strings.Repeat("a", maxSnippet+10), strings.Repeat("a", maxSnippet) + "…"},
	}
	for _, tt := range tests {
		if got := CleanSnippet(tt.in); got != tt.want {
			t.Errorf("CleanSnippet(%.30q) = %.40q, want %.40q", tt.in, got, tt.want)
		}
	}
}

func TestFormatResults(t *testing.T) {
	if got := FormatResults(nil); got != "No results found." {
		t.Errorf("FormatResults(nil) = %q", got)
	}
	got := FormatResults([]Result{
		{Title: "A", URL: "https://a", Snippet: "about a"},
		{Title: "B", URL: "https://b"},
	})
	want := "1. A\n   https://a\n   about a\n\n2. B\n   https://b"
	if got != want {
		t.Errorf("FormatResults() =\n%q\nwant\n%q", got, want)
	}
}

func TestBrave(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/res/v1/web/search" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Subscription-Token") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("q") != "store hours" || r.URL.Query().Get("count") != "2" {
			t.Errorf("query = %v", r.URL.Query())
		}
		w.Write([]byte(`{"web":{"results":[{"title":"Hours","url":"https://shop","description":"Open <b>9-7</b>"}]}}`))
	}))
	defer srv.Close()

	results, err := NewBrave("key", srv.URL).Search(context.Background(), "store hours", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Title != "Hours" {
		t.Errorf("results = %+v", results)
	}

	if _, err := NewBrave("wrong", srv.URL).Search(context.Background(), "x", Options{}); err == nil {
		t.Error("expected error for bad key")
	}
}

func TestSearXNG(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "json" {
			t.Errorf("format = %q", r.URL.Query().Get("format"))
		}
		w.Write([]byte(`{"results":[
			{"title":"One","url":"https://1","content":"first"},
			{"title":"Two","url":"https://2","content":"second"},
			{"title":"Three","url":"https://3","content":"third"}]}`))
	}))
	defer srv.Close()

	results, err := NewSearXNG(srv.URL+"/").Search(context.Background(), "q", Options{Count: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("len(results) = %d, want 2", len(results))
	}
}

func TestFirecrawl(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/search" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer fc-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		var req firecrawlRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Query == "fail" {
			w.Write([]byte(`{"success":false,"error":"quota exceeded"}`))
			return
		}
		if req.Limit != 2 {
			t.Errorf("limit = %d, want 2", req.Limit)
		}
		w.Write([]byte(`{"success":true,"data":[{"title":"Doc","description":"desc","url":"https://doc"}]}`))
	}))
	defer srv.Close()

	fc := NewFirecrawl("fc-key", srv.URL)
	results, err := fc.Search(context.Background(), "latest phone", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].URL != "https://doc" {
		t.Errorf("results = %+v", results)
	}

	_, err = fc.Search(context.Background(), "fail", Options{})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("err = %v, want quota failure", err)
	}
}

func TestTool(t *testing.T) {
	mock := &mockProvider{name: "mock", results: []Result{{Title: "Hours", URL: "https://shop"}}}
	mgr := NewManager("mock")
	mgr.Register(mock)
	tool := Tool(mgr, 2)

	tests := []struct {
		input     string
		wantQuery string
	}{
		{"store hours", "store hours"},
		{`"store hours"`, "store hours"},
		{`{"query": "store hours"}`, "store hours"},
	}
	for _, tt := range tests {
		out, err := tool.Handler(context.Background(), tt.input)
		if err != nil {
			t.Fatalf("Handler(%q): %v", tt.input, err)
		}
		if mock.query != tt.wantQuery {
			t.Errorf("Handler(%q) searched %q, want %q", tt.input, mock.query, tt.wantQuery)
		}
		if !strings.HasPrefix(out, "1. Hours") {
			t.Errorf("output = %q", out)
		}
	}

	if _, err := tool.Handler(context.Background(), "  "); err == nil {
		t.Error("expected error for empty query")
	}

	mock.err = errors.New("backend down")
	if _, err := tool.Handler(context.Background(), "x"); err == nil {
		t.Error("expected provider error to propagate")
	}
}
