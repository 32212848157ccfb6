// Package tools defines the tools available to the agent.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nugget/helion/internal/llm"
)

// Handler runs a tool. The input is the raw Action Input text; the
// returned string becomes the observation the model sees next.
type Handler func(ctx context.Context, input string) (string, error)

// Tool represents a callable tool.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema,omitempty"`
	Handler     Handler         `json:"-"`

	// InputExample is shown to the model when its input fails schema
	// validation.
	InputExample string `json:"input_example,omitempty"`

	compiled *jsonschema.Schema
}

// Registry holds available tools. Tools are registered at startup and
// the registry is read-only afterwards, so lookups take no lock.
type Registry struct {
	order  []string
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger,
	}
}

// Register adds a tool to the registry. Registering a name again
// replaces the tool but keeps its original position in [Registry.List].
func (r *Registry) Register(t *Tool) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("tool has no name")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s has no handler", t.Name)
	}
	if len(t.Schema) > 0 {
		sch, err := compileSchema(t.Name, t.Schema)
		if err != nil {
			return fmt.Errorf("tool %s: %w", t.Name, err)
		}
		t.compiled = sch
	}

	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	} else {
		r.logger.Debug("replacing tool", "tool", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns all tools in registration order.
func (r *Registry) List() []*Tool {
	out := make([]*Tool, len(r.order))
	for i, name := range r.order {
		out[i] = r.tools[name]
	}
	return out
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Catalog returns the name and description of every tool for the
// prompt.
func (r *Registry) Catalog() []llm.ToolSpec {
	out := make([]llm.ToolSpec, len(r.order))
	for i, name := range r.order {
		t := r.tools[name]
		out[i] = llm.ToolSpec{Name: t.Name, Description: t.Description}
	}
	return out
}

// Execute runs a tool by name with the raw input string. Unknown names
// return [*ToolNotFoundError]; invalid input, handler errors and
// handler panics return [*ToolExecutionError].
func (r *Registry) Execute(ctx context.Context, name string, input string) (out string, err error) {
	t, ok := r.tools[name]
	if !ok {
		return "", &ToolNotFoundError{ToolName: name, Available: r.Names()}
	}

	if t.compiled != nil {
		if verr := validateInput(t, input); verr != nil {
			return "", &ToolExecutionError{ToolName: name, Cause: verr}
		}
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", p)
			out = ""
			err = &ToolExecutionError{ToolName: name, Cause: fmt.Errorf("panic: %v", p)}
		}
	}()

	out, err = t.Handler(ctx, input)
	if err != nil {
		return "", &ToolExecutionError{ToolName: name, Cause: err}
	}
	return out, nil
}

func compileSchema(name string, schema json.RawMessage) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	url := name + ".schema.json"
	if err := c.AddResource(url, strings.NewReader(string(schema))); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return sch, nil
}

func validateInput(t *Tool, input string) error {
	var v any
	if err := json.Unmarshal([]byte(input), &v); err != nil {
		return inputError(t, fmt.Errorf("input is not valid JSON: %w", err))
	}
	if err := t.compiled.Validate(v); err != nil {
		return inputError(t, err)
	}
	return nil
}

func inputError(t *Tool, err error) error {
	if t.InputExample == "" {
		return err
	}
	return fmt.Errorf("%w (expected input like %s)", err, t.InputExample)
}
