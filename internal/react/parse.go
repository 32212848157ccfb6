// Package react parses the text protocol a ReAct-prompted model uses to
// request tools and deliver answers:
//
//	Thought: Do I need to use a tool? Yes
//	Action: get_weather
//	Action Input: Paris
//
// or
//
//	Thought: Do I need to use a tool? No
//	Final Answer: It is sunny in Paris.
//
// Parsing is best effort over free-form model output. Anything that
// does not match the action grammar is treated as an answer.
package react

import (
	"regexp"
	"strings"
)

// FinalAnswerMarker introduces the user-visible answer.
const FinalAnswerMarker = "Final Answer:"

var (
	actionRe      = regexp.MustCompile(`Action:[ \t]*(.+)`)
	actionInputRe = regexp.MustCompile(`Action Input:[ \t]*(.+)`)
	trailingFence = regexp.MustCompile("```\\s*$")
)

// Action is a tool call recovered from model output.
type Action struct {
	ToolName string `json:"tool_name"`
	RawInput string `json:"raw_input"`
}

// Parse extracts the first "Action:" line and the first "Action Input:"
// line that follows it. Both must be present and non-empty after
// trimming; otherwise ok is false and the model is answering directly.
// Inputs are single-line and taken verbatim.
func Parse(text string) (Action, bool) {
	loc := actionRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return Action{}, false
	}
	name := strings.TrimSpace(text[loc[2]:loc[3]])

	m := actionInputRe.FindStringSubmatch(text[loc[1]:])
	if m == nil {
		return Action{}, false
	}
	input := strings.TrimSpace(m[1])

	if name == "" || input == "" {
		return Action{}, false
	}
	return Action{ToolName: name, RawInput: input}, true
}

// HasFinalAnswer reports whether text contains the answer marker.
func HasFinalAnswer(text string) bool {
	return strings.Contains(text, FinalAnswerMarker)
}

// ExtractFinalAnswer returns everything after the last "Final Answer:"
// marker, trimmed, with a trailing code fence removed. Text without the
// marker is returned trimmed with any "Thought:" lines dropped, which
// covers models that answer without following the format.
func ExtractFinalAnswer(text string) string {
	idx := strings.LastIndex(text, FinalAnswerMarker)
	if idx < 0 {
		return stripThoughts(text)
	}
	answer := strings.TrimSpace(text[idx+len(FinalAnswerMarker):])
	answer = trailingFence.ReplaceAllString(answer, "")
	return strings.TrimSpace(answer)
}

func stripThoughts(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "Thought:") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
