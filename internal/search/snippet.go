package search

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// maxSnippet bounds a snippet in runes after cleanup.
const maxSnippet = 400

// CleanSnippet turns a provider snippet into plain text. Several
// backends return highlighted HTML (<strong>, <b>) and entities; the
// model only needs the words.
func CleanSnippet(s string) string {
	if s == "" {
		return ""
	}

	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				// Malformed markup: fall back to the raw text.
				return truncate(strings.Join(strings.Fields(s), " "))
			}
			break
		}
		if tt == html.TextToken {
			sb.Write(z.Text())
		}
	}

	return truncate(strings.Join(strings.Fields(sb.String()), " "))
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxSnippet {
		return s
	}
	return strings.TrimSpace(string(r[:maxSnippet])) + "…"
}
