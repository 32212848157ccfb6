package react

import "strings"

// AnswerFilter buffers streamed model tokens and decides which of them
// may be shown to the user. Nothing passes until "Final Answer:" has
// appeared in the buffer. After that, leading whitespace is dropped
// until the first visible text goes out, and every later token passes
// through unchanged.
//
// The zero value is ready to use. An AnswerFilter is not safe for
// concurrent use.
type AnswerFilter struct {
	buf     strings.Builder
	open    bool
	started bool
}

// Feed appends token to the buffer and returns the portion that should
// be forwarded, which is empty while the answer has not started.
func (f *AnswerFilter) Feed(token string) string {
	f.buf.WriteString(token)
	if !f.open {
		s := f.buf.String()
		idx := strings.Index(s, FinalAnswerMarker)
		if idx < 0 {
			return ""
		}
		f.open = true
		token = s[idx+len(FinalAnswerMarker):]
	}
	if f.started {
		return token
	}

	token = strings.TrimLeft(token, " \t\r\n")
	f.started = token != ""
	return token
}

// Open reports whether the answer marker has been seen.
func (f *AnswerFilter) Open() bool {
	return f.open
}

// Text returns everything fed so far.
func (f *AnswerFilter) Text() string {
	return f.buf.String()
}
