package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func echoTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: "echo " + name,
		Handler: func(_ context.Context, input string) (string, error) {
			return name + ":" + input, nil
		},
	}
}

func TestRegistry_OrderAndReplace(t *testing.T) {
	r := NewRegistry(nil)
	for _, name := range []string{"b", "a", "c"} {
		if err := r.Register(echoTool(name)); err != nil {
			t.Fatal(err)
		}
	}
	replacement := echoTool("a")
	replacement.Description = "second a"
	if err := r.Register(replacement); err != nil {
		t.Fatal(err)
	}

	if got := strings.Join(r.Names(), ","); got != "b,a,c" {
		t.Errorf("Names() = %s, want b,a,c", got)
	}
	cat := r.Catalog()
	if len(cat) != 3 || cat[1].Description != "second a" {
		t.Errorf("Catalog() = %+v, want replacement in original position", cat)
	}
	if got, ok := r.Get("a"); !ok || got != replacement {
		t.Error("Get(a) did not return the replacement")
	}
	if _, ok := r.Get("zzz"); ok {
		t.Error("Get(zzz) ok = true")
	}
	if len(r.List()) != 3 {
		t.Errorf("len(List()) = %d, want 3", len(r.List()))
	}
}

func TestRegistry_RegisterRejects(t *testing.T) {
	r := NewRegistry(nil)
	tests := []struct {
		name string
		tool *Tool
	}{
		{"nil", nil},
		{"no name", &Tool{Handler: echoTool("x").Handler}},
		{"no handler", &Tool{Name: "x"}},
		{"bad schema", &Tool{Name: "x", Handler: echoTool("x").Handler, Schema: []byte(`{"type": 12}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Register(tt.tool); err == nil {
				t.Error("Register() error = nil")
			}
		})
	}
}

func TestRegistry_Execute(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(echoTool("echo"))

	got, err := r.Execute(context.Background(), "echo", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if got != "echo:hello" {
		t.Errorf("Execute() = %q", got)
	}
}

func TestRegistry_ExecuteUnknown(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(echoTool("get_weather"))

	_, err := r.Execute(context.Background(), "fly", "x")
	var nf *ToolNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want *ToolNotFoundError", err)
	}
	if len(nf.Available) != 1 || nf.Available[0] != "get_weather" {
		t.Errorf("Available = %v", nf.Available)
	}
}

func TestRegistry_ExecuteHandlerFailure(t *testing.T) {
	r := NewRegistry(nil)
	boom := errors.New("boom")
	r.Register(&Tool{Name: "fails", Handler: func(context.Context, string) (string, error) {
		return "partial", boom
	}})
	r.Register(&Tool{Name: "panics", Handler: func(context.Context, string) (string, error) {
		panic("kaboom")
	}})

	out, err := r.Execute(context.Background(), "fails", "x")
	var te *ToolExecutionError
	if !errors.As(err, &te) || !errors.Is(err, boom) {
		t.Errorf("err = %v, want ToolExecutionError wrapping boom", err)
	}
	if out != "" {
		t.Errorf("out = %q, want empty on failure", out)
	}

	_, err = r.Execute(context.Background(), "panics", "x")
	if !errors.As(err, &te) || !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("err = %v, want recovered panic", err)
	}
}

type lookupArgs struct {
	Query string `json:"query" jsonschema:"required,description=What to look up"`
	Limit int    `json:"limit,omitempty"`
}

func TestRegistry_ExecuteValidatesSchema(t *testing.T) {
	r := NewRegistry(nil)
	err := r.Register(&Tool{
		Name:         "lookup",
		Schema:       SchemaFor(&lookupArgs{}),
		InputExample: `{"query": "returns"}`,
		Handler: func(_ context.Context, input string) (string, error) {
			return "ok", nil
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"valid", `{"query": "returns", "limit": 2}`, ""},
		{"extra fields allowed", `{"query": "x", "verbose": true}`, ""},
		{"not json", `returns policy`, "not valid JSON"},
		{"missing required", `{"limit": 2}`, "expected input like"},
		{"wrong type", `{"query": "x", "limit": "two"}`, "expected input like"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Execute(context.Background(), "lookup", tt.input)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Execute() error = %v", err)
				}
				return
			}
			var te *ToolExecutionError
			if !errors.As(err, &te) || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Execute() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDateTimeTool(t *testing.T) {
	fixed := time.Date(2026, time.October, 16, 15, 4, 0, 0, time.UTC)
	tool := DateTimeTool(func() time.Time { return fixed })

	got, err := tool.Handler(context.Background(), "now")
	if err != nil {
		t.Fatal(err)
	}
	if want := "Friday, October 16, 2026, 03:04 PM"; got != want {
		t.Errorf("get_date_and_time = %q, want %q", got, want)
	}
}
