package conversation

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
)

// TranscriptOptions controls what a transcript includes.
type TranscriptOptions struct {
	// Reasoning includes intermediate agent steps and tool observations.
	// When false only user messages and final answers appear.
	Reasoning bool
}

// Markdown renders the log as a markdown transcript. Model answers are
// often markdown already, so they are embedded as-is.
func Markdown(msgs []Message, opts TranscriptOptions) string {
	var sb strings.Builder
	for _, m := range msgs {
		switch m := m.(type) {
		case UserMessage:
			fmt.Fprintf(&sb, "**User:** %s\n\n", m.Content)
		case AgentMessage:
			if m.Final {
				fmt.Fprintf(&sb, "**Assistant:** %s\n\n", m.Content)
			} else if opts.Reasoning {
				fmt.Fprintf(&sb, "```text\n%s\n```\n\n", m.Content)
			}
		case ToolObservation:
			if opts.Reasoning {
				fmt.Fprintf(&sb, "> **%s:** %s\n\n", m.ToolName, strings.ReplaceAll(m.Content, "\n", "\n> "))
			}
		}
	}
	return sb.String()
}

// HTML renders the transcript as a standalone HTML page.
func HTML(title string, msgs []Message, opts TranscriptOptions) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(Markdown(msgs, opts)), &buf); err != nil {
		return "", fmt.Errorf("render transcript: %w", err)
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>%s</title></head>
<body style="font-family: sans-serif; font-size: 14px; line-height: 1.5; max-width: 48em; margin: 2em auto;">
%s
</body></html>`, html.EscapeString(title), buf.String()), nil
}
