package llm

import (
	"context"
	"log/slog"
)

// LevelTrace is below Debug, used for full prompt and raw output logging.
const LevelTrace = slog.Level(-8)

// Prompt is the assembled model input. System carries the standing
// instructions and tool catalog; User carries history, the current
// input and the scratchpad.
type Prompt struct {
	System string
	User   string
}

// ToolSpec describes one tool to the model.
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Request is a single streaming generation request.
type Request struct {
	Model       string
	Prompt      Prompt
	Stop        []string
	Temperature float64
	MaxTokens   int
}

// Chunk is one increment of a streamed generation. A chunk with a
// non-nil Err is the last value sent before the channel closes.
type Chunk struct {
	Text string
	Err  error
}

// send delivers c on ch unless ctx is done first. Providers use it so a
// consumer that stops reading never strands the producer goroutine.
func send(ctx context.Context, ch chan<- Chunk, c Chunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
