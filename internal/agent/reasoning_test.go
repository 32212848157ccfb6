package agent

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/nugget/helion/internal/conversation"
	"github.com/nugget/helion/internal/llm"
	"github.com/nugget/helion/internal/prompts"
	"github.com/nugget/helion/internal/react"
)

var testCatalog = []llm.ToolSpec{
	{Name: "get_weather", Description: "Retrieves the current weather for a given city."},
	{Name: "get_date_and_time", Description: "Returns the current date and time."},
}

func newReasoning(client llm.Client) *ReasoningStep {
	return NewReasoningStep(llm.BindTools(client, "test-model", testCatalog), prompts.Options{}, nil)
}

func userState(input string) *TurnState {
	return &TurnState{
		ThreadID:  "t1",
		RequestID: "r_test",
		Messages:  []conversation.Message{conversation.UserMessage{Content: input}},
	}
}

func TestReasoningStep_FinalAnswerStreamed(t *testing.T) {
	client := &scriptedClient{replies: []reply{{
		chunks: []string{"Thought: I know this.\n", "Final ", "Answer: It is ", "sunny", "."},
	}}}
	out := make(chan string, 16)

	res, err := newReasoning(client).Run(context.Background(), userState("weather?"), out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	close(out)

	if got := drain(out); got != "It is sunny." {
		t.Errorf("forwarded %q, want %q", got, "It is sunny.")
	}
	if res.Next != Respond || !res.Streamed {
		t.Errorf("Next = %v, Streamed = %v", res.Next, res.Streamed)
	}
	want := []conversation.Message{conversation.AgentMessage{Content: "It is sunny.", Final: true}}
	if !reflect.DeepEqual(res.Messages, want) {
		t.Errorf("Messages = %#v, want %#v", res.Messages, want)
	}
}

func TestReasoningStep_MarkerOwnToken(t *testing.T) {
	client := &scriptedClient{replies: []reply{{
		chunks: []string{"Thought: no\nFinal Answer:", " Sunny", " today."},
	}}}
	out := make(chan string, 16)

	res, err := newReasoning(client).Run(context.Background(), userState("weather?"), out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	close(out)

	streamed := drain(out)
	answer := res.Messages[0].(conversation.AgentMessage).Content
	if streamed != "Sunny today." || streamed != answer {
		t.Errorf("streamed %q, answer %q, want both %q", streamed, answer, "Sunny today.")
	}
}

func TestReasoningStep_ActionSuppressed(t *testing.T) {
	text := "Thought: I need the weather.\nAction: get_weather\nAction Input: Paris"
	client := &scriptedClient{replies: []reply{{chunks: []string{text[:20], text[20:]}}}}
	out := make(chan string, 16)

	res, err := newReasoning(client).Run(context.Background(), userState("weather in Paris?"), out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	close(out)

	if got := drain(out); got != "" {
		t.Errorf("forwarded %q during a tool call", got)
	}
	if res.Next != CallTool {
		t.Fatalf("Next = %v, want call_tool", res.Next)
	}
	if want := []react.Action{{ToolName: "get_weather", RawInput: "Paris"}}; !reflect.DeepEqual(res.Pending, want) {
		t.Errorf("Pending = %+v, want %+v", res.Pending, want)
	}
	if msg := res.Messages[0].(conversation.AgentMessage); msg.Content != text || msg.Final {
		t.Errorf("message = %+v", msg)
	}
}

func TestReasoningStep_NoMarkerNoAction(t *testing.T) {
	client := &scriptedClient{replies: []reply{{chunks: []string{"  Hello there!  "}}}}
	out := make(chan string, 4)

	res, err := newReasoning(client).Run(context.Background(), userState("hi"), out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	close(out)

	if got := drain(out); got != "" {
		t.Errorf("forwarded %q without a marker", got)
	}
	if res.Next != Respond || res.Streamed {
		t.Errorf("Next = %v, Streamed = %v", res.Next, res.Streamed)
	}
	if msg := res.Messages[0].(conversation.AgentMessage); msg.Content != "Hello there!" || !msg.Final {
		t.Errorf("message = %+v", msg)
	}
}

func TestReasoningStep_ActionWithoutInputIsAnswer(t *testing.T) {
	client := &scriptedClient{replies: []reply{{chunks: []string{"Action: get_weather\nAction Input:   "}}}}

	res, err := newReasoning(client).Run(context.Background(), userState("weather?"), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Next != Respond || len(res.Pending) != 0 {
		t.Errorf("Next = %v, Pending = %v", res.Next, res.Pending)
	}
}

func TestReasoningStep_Request(t *testing.T) {
	client := &scriptedClient{replies: []reply{{chunks: []string{"Final Answer: ok"}}}}

	if _, err := newReasoning(client).Run(context.Background(), userState("What time is it?"), nil); err != nil {
		t.Fatal(err)
	}

	req := client.calls[0]
	if req.Model != "test-model" {
		t.Errorf("Model = %q", req.Model)
	}
	if !reflect.DeepEqual(req.Stop, llm.DefaultStop) {
		t.Errorf("Stop = %q, want %q", req.Stop, llm.DefaultStop)
	}
	for _, want := range []string{"get_weather", "get_date_and_time"} {
		if !strings.Contains(req.Prompt.System, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if !strings.Contains(req.Prompt.User, "What time is it?") {
		t.Errorf("user prompt missing input:\n%s", req.Prompt.User)
	}
}

func TestReasoningStep_ModelErrors(t *testing.T) {
	boom := errors.New("connection refused")
	tests := []struct {
		name  string
		reply reply
	}{
		{"open", reply{openErr: boom}},
		{"mid-stream", reply{chunks: []string{"Final Answer: par"}, err: boom}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &scriptedClient{replies: []reply{tt.reply}}
			out := make(chan string, 8)

			_, err := newReasoning(client).Run(context.Background(), userState("hi"), out)
			var mie *ModelInvocationError
			if !errors.As(err, &mie) {
				t.Fatalf("err = %v, want *ModelInvocationError", err)
			}
			if mie.Model != "test-model" || !errors.Is(err, boom) {
				t.Errorf("err = %+v", mie)
			}
		})
	}
}

func TestReasoningStep_ConsumerGone(t *testing.T) {
	client := &scriptedClient{replies: []reply{{
		chunks: []string{"Final Answer: ", "one ", "two ", "three"},
	}}}
	gone := make(chan struct{})
	close(gone)
	state := userState("count")
	state.consumer = gone

	// Nobody reads out; the step must still finish.
	out := make(chan string)
	res, err := newReasoning(client).Run(context.Background(), state, out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if msg := res.Messages[0].(conversation.AgentMessage); msg.Content != "one two three" {
		t.Errorf("answer = %q", msg.Content)
	}
}

func TestReasoningStep_UnknownTemplate(t *testing.T) {
	client := &scriptedClient{}
	step := NewReasoningStep(llm.BindTools(client, "m", nil), prompts.Options{Template: "nope"}, nil)
	if _, err := step.Run(context.Background(), userState("hi"), nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
	if client.callCount() != 0 {
		t.Error("model called despite prompt error")
	}
}
