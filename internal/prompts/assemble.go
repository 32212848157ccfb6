package prompts

import (
	"fmt"
	"strings"

	"github.com/nugget/helion/internal/conversation"
	"github.com/nugget/helion/internal/llm"
)

// Options selects the template and bounds the rendered history.
type Options struct {
	// Template is one of [Templates]. Empty means [DefaultTemplate].
	Template string

	// HistoryLimit caps the number of earlier exchanges (user messages
	// and final answers) rendered into the prompt. Zero means no cap.
	HistoryLimit int
}

// CurrentInput returns the content of the last message when it is a
// user message, and "" otherwise.
func CurrentInput(msgs []conversation.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	if m, ok := msgs[len(msgs)-1].(conversation.UserMessage); ok {
		return m.Content
	}
	return ""
}

// ChatHistory returns every message except the last.
func ChatHistory(msgs []conversation.Message) []conversation.Message {
	if len(msgs) == 0 {
		return nil
	}
	return msgs[:len(msgs)-1]
}

// Scratchpad returns the agent messages and tool observations of msgs
// in log order.
func Scratchpad(msgs []conversation.Message) []conversation.Message {
	var out []conversation.Message
	for _, m := range msgs {
		switch m.(type) {
		case conversation.AgentMessage, conversation.ToolObservation:
			out = append(out, m)
		}
	}
	return out
}

// split divides the log at the most recent user message. The current
// turn's reasoning lives after that message; everything before it is
// history.
func split(msgs []conversation.Message) (history []conversation.Message, input string, turn []conversation.Message) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if u, ok := msgs[i].(conversation.UserMessage); ok {
			return msgs[:i], u.Content, msgs[i+1:]
		}
	}
	return nil, "", msgs
}

// Assemble renders the prompt for the next reasoning step over msgs.
func Assemble(msgs []conversation.Message, catalog []llm.ToolSpec, opts Options) (llm.Prompt, error) {
	t, err := lookup(opts.Template)
	if err != nil {
		return llm.Prompt{}, err
	}

	history, input, turn := split(msgs)
	return llm.Prompt{
		System: fmt.Sprintf(t.system, RenderTools(catalog), ToolNames(catalog)),
		User:   fmt.Sprintf(t.user, RenderHistory(history, opts.HistoryLimit), input, RenderScratchpad(Scratchpad(turn))),
	}, nil
}

// RenderTools lists one "name: description" line per tool.
func RenderTools(catalog []llm.ToolSpec) string {
	lines := make([]string, len(catalog))
	for i, t := range catalog {
		lines[i] = t.Name + ": " + t.Description
	}
	return strings.Join(lines, "\n")
}

// ToolNames joins the catalog names with ", ".
func ToolNames(catalog []llm.ToolSpec) string {
	names := make([]string, len(catalog))
	for i, t := range catalog {
		names[i] = t.Name
	}
	return strings.Join(names, ", ")
}

// RenderHistory formats earlier exchanges as Human/AI lines. Only user
// messages and final answers are shown; intermediate reasoning from
// previous turns is left out. A positive limit keeps the most recent
// limit lines.
func RenderHistory(msgs []conversation.Message, limit int) string {
	var lines []string
	for _, m := range msgs {
		switch m := m.(type) {
		case conversation.UserMessage:
			lines = append(lines, "Human: "+m.Content)
		case conversation.AgentMessage:
			if m.Final {
				lines = append(lines, "AI: "+m.Content)
			}
		}
	}
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return strings.Join(lines, "\n")
}

// RenderScratchpad replays the current turn's reasoning: each agent
// step verbatim, each observation on its own line followed by a fresh
// "Thought: " cue.
func RenderScratchpad(msgs []conversation.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		switch m := m.(type) {
		case conversation.AgentMessage:
			sb.WriteString(strings.TrimRight(m.Content, " \t\r\n"))
		case conversation.ToolObservation:
			sb.WriteString("\nObservation: ")
			sb.WriteString(m.Content)
			sb.WriteString("\nThought: ")
		}
	}
	return sb.String()
}
