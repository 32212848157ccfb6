package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/nugget/helion/internal/config"
	"github.com/nugget/helion/internal/memory"
)

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"-h"}, {"--help"}} {
		var stdout, stderr bytes.Buffer
		if err := run(context.Background(), &stdout, &stderr, args); err != nil {
			t.Fatalf("run(%v) = %v", args, err)
		}
		if !strings.Contains(stdout.String(), "Usage: helion") {
			t.Errorf("run(%v) output = %q", args, stdout.String())
		}
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown command", []string{"launch"}, "unknown command: launch"},
		{"unknown flag", []string{"-verbose"}, "unknown flag: -verbose"},
		{"bad output format", []string{"-o", "xml", "version"}, "unknown output format"},
		{"ask without message", []string{"ask"}, "usage: helion ask"},
		{"missing config", []string{"-config", "/nonexistent/helion.yaml", "ask", "hi"}, "config file not found"},
		{"prune bad keep", []string{"prune", "t1", "-keep", "0"}, "-keep must be a positive integer"},
		{"prune unknown flag", []string{"prune", "-all"}, "usage: helion prune"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), &stdout, &stderr, tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("run(%v) = %v, want error containing %q", tt.args, err, tt.want)
			}
		})
	}
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), &stdout, &stderr, []string{"-o", "json", "version"}); err != nil {
		t.Fatal(err)
	}
	var info map[string]string
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		t.Fatalf("version JSON: %v\n%s", err, stdout.String())
	}
	if info["go_version"] == "" {
		t.Errorf("version info = %v", info)
	}
}

func TestRun_Init(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), &stdout, &stderr, []string{"init", dir}); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "config.yaml")
	if _, err := config.Load(path); err != nil {
		t.Errorf("generated config does not load: %v", err)
	}
	if fi, err := os.Stat(filepath.Join(dir, "db")); err != nil || !fi.IsDir() {
		t.Errorf("db dir not created: %v", err)
	}

	// A second init leaves the edited file alone.
	if err := os.WriteFile(path, []byte("# mine\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	stdout.Reset()
	if err := run(context.Background(), &stdout, &stderr, []string{"init", dir}); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "# mine\n" {
		t.Errorf("config overwritten: %q", data)
	}
	if !strings.Contains(stdout.String(), "left alone") {
		t.Errorf("output = %q", stdout.String())
	}
}

// fakeOllama serves /api/chat, replaying one scripted generation per
// call as an NDJSON stream.
func fakeOllama(t *testing.T, replies ...string) *httptest.Server {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		i := int(calls.Add(1)) - 1
		if i >= len(replies) {
			i = len(replies) - 1
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		enc.Encode(map[string]any{"model": "test-model", "message": map[string]string{"role": "assistant", "content": replies[i]}, "done": false})
		enc.Encode(map[string]any{"model": "test-model", "message": map[string]string{"role": "assistant", "content": ""}, "done": true})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeTestConfig(t *testing.T, ollamaURL string) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`data_dir: %s
database:
  driver: sqlite
models:
  default: test-model
ollama:
  url: %s
weather:
  provider: canned
memory:
  enabled: false
logging:
  level: error
`, filepath.Join(dir, "db"), ollamaURL)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_AskAndHistory(t *testing.T) {
	srv := fakeOllama(t,
		"Thought: I should check.\nAction: get_weather\nAction Input: Paris",
		"Thought: Done.\nFinal Answer: It is lovely in Paris.",
	)
	cfgPath := writeTestConfig(t, srv.URL)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), &stdout, &stderr, []string{"-config", cfgPath, "-thread", "paris", "ask", "Weather", "in", "Paris?"})
	if err != nil {
		t.Fatalf("ask: %v\nstderr: %s", err, stderr.String())
	}
	if got := stdout.String(); got != "It is lovely in Paris.\n" {
		t.Errorf("ask stdout = %q", got)
	}

	stdout.Reset()
	if err := run(context.Background(), &stdout, &stderr, []string{"-config", cfgPath, "history", "paris"}); err != nil {
		t.Fatalf("history: %v", err)
	}
	out := stdout.String()
	if !strings.Contains(out, "Thread paris (4 most recent)") {
		t.Errorf("history output:\n%s", out)
	}
	for _, src := range []string{"input", "agent", "tools"} {
		if !strings.Contains(out, src) {
			t.Errorf("history missing %s checkpoint:\n%s", src, out)
		}
	}

	stdout.Reset()
	if err := run(context.Background(), &stdout, &stderr, []string{"-config", cfgPath, "prune", "paris", "-keep", "2"}); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if !strings.Contains(stdout.String(), "Removed 2 checkpoints from thread paris") {
		t.Errorf("prune output = %q", stdout.String())
	}
	stdout.Reset()
	if err := run(context.Background(), &stdout, &stderr, []string{"-config", cfgPath, "-o", "json", "history", "paris"}); err != nil {
		t.Fatal(err)
	}
	var rows []map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &rows); err != nil {
		t.Fatalf("history JSON: %v", err)
	}
	if len(rows) != 2 || rows[0]["source"] != "agent" {
		t.Errorf("after prune history = %v", rows)
	}

	stdout.Reset()
	if err := run(context.Background(), &stdout, &stderr, []string{"-config", cfgPath, "history", "empty"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout.String(), "No checkpoints for thread empty") {
		t.Errorf("history output = %q", stdout.String())
	}
}

type nopEmbedder struct{}

func (nopEmbedder) Embed(context.Context, string, bool) ([]float32, error) {
	return []float32{1}, nil
}

func TestBuildRegistry(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		memory bool
		want   []string
	}{
		{
			name: "minimal",
			want: []string{"get_date_and_time", "get_weather"},
		},
		{
			name:   "search configured",
			mutate: func(c *config.Config) { c.Search.SearXNG.URL = "http://searx.local" },
			want:   []string{"web_search", "get_date_and_time", "get_weather"},
		},
		{
			name:   "everything",
			mutate: func(c *config.Config) { c.Search.Brave.APIKey = "key" },
			memory: true,
			want:   []string{"store_memory", "retrieve_memory", "web_search", "get_date_and_time", "get_weather"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			var mem *memory.Store
			if tt.memory {
				mem = &memory.Store{}
			}
			reg, err := buildRegistry(cfg, mem, nopEmbedder{}, nil)
			if err != nil {
				t.Fatal(err)
			}
			if got := reg.Names(); strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("tools = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildRegistry_WeatherProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Weather.Provider = "canned"
	reg, err := buildRegistry(cfg, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := reg.Execute(context.Background(), "get_weather", "Oslo")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Oslo") {
		t.Errorf("canned weather = %q", out)
	}
}
