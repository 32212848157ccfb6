package llm

import (
	"context"
	"errors"
	"testing"
)

type recordingClient struct {
	name    string
	last    Request
	pingErr error
}

func (r *recordingClient) GenerateStream(_ context.Context, req Request) (<-chan Chunk, error) {
	r.last = req
	ch := make(chan Chunk, 1)
	ch <- Chunk{Text: r.name}
	close(ch)
	return ch, nil
}

func (r *recordingClient) Ping(context.Context) error { return r.pingErr }

func TestBindTools(t *testing.T) {
	rc := &recordingClient{name: "rc"}
	specs := []ToolSpec{{Name: "get_weather", Description: "weather"}}
	b := BindTools(rc, "m1", specs, WithTemperature(0.3), WithMaxTokens(64))

	specs[0].Name = "mutated"
	if b.Tools()[0].Name != "get_weather" {
		t.Error("BindTools aliased the caller's slice")
	}
	if b.Model() != "m1" {
		t.Errorf("Model() = %q, want m1", b.Model())
	}

	ch, err := b.GenerateStream(context.Background(), Prompt{User: "u"})
	if err != nil {
		t.Fatal(err)
	}
	Collect(ch)

	if rc.last.Model != "m1" || rc.last.Temperature != 0.3 || rc.last.MaxTokens != 64 {
		t.Errorf("request = %+v", rc.last)
	}
	if len(rc.last.Stop) != 1 || rc.last.Stop[0] != "\nObservation:" {
		t.Errorf("Stop = %q, want default observation stop", rc.last.Stop)
	}
}

func TestBindTools_WithStop(t *testing.T) {
	rc := &recordingClient{}
	b := BindTools(rc, "m", nil, WithStop())
	ch, _ := b.GenerateStream(context.Background(), Prompt{})
	Collect(ch)
	if len(rc.last.Stop) != 0 {
		t.Errorf("Stop = %q, want none", rc.last.Stop)
	}
}

func TestCollect(t *testing.T) {
	ch := make(chan Chunk, 3)
	ch <- Chunk{Text: "a"}
	ch <- Chunk{Text: "b"}
	ch <- Chunk{Err: errors.New("boom")}
	close(ch)

	text, err := Collect(ch)
	if text != "ab" {
		t.Errorf("text = %q, want ab", text)
	}
	if err == nil || err.Error() != "boom" {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestMultiClient_Routing(t *testing.T) {
	fallback := &recordingClient{name: "fallback"}
	claude := &recordingClient{name: "anthropic"}

	m := NewMultiClient(fallback)
	m.AddProvider("anthropic", claude)
	m.AddModel("claude-sonnet", "anthropic")
	m.AddModel("orphan", "missing")

	tests := []struct {
		model string
		want  string
	}{
		{"claude-sonnet", "anthropic"},
		{"llama3.1:8b", "fallback"},
		{"orphan", "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			ch, err := m.GenerateStream(context.Background(), Request{Model: tt.model})
			if err != nil {
				t.Fatal(err)
			}
			got, _ := Collect(ch)
			if got != tt.want {
				t.Errorf("routed to %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMultiClient_NoProvider(t *testing.T) {
	m := NewMultiClient(nil)
	if _, err := m.GenerateStream(context.Background(), Request{Model: "x"}); err == nil {
		t.Error("GenerateStream error = nil, want no provider")
	}
	if err := m.Ping(context.Background()); err == nil {
		t.Error("Ping error = nil, want no providers")
	}
}

func TestMultiClient_PingJoinsErrors(t *testing.T) {
	m := NewMultiClient(&recordingClient{})
	m.AddProvider("openai", &recordingClient{pingErr: errors.New("down")})
	if err := m.Ping(context.Background()); err == nil {
		t.Error("Ping error = nil, want provider failure")
	}
}
