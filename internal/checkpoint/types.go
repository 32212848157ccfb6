// Package checkpoint persists conversation state for Helion. Every step
// of a turn writes a new snapshot of the thread's full message log; a
// thread's current state is its most recent snapshot.
package checkpoint

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/helion/internal/conversation"
)

// ErrNotFound is returned when a checkpoint id does not exist.
var ErrNotFound = errors.New("checkpoint not found")

// Source describes which step of a turn wrote a checkpoint.
type Source string

const (
	SourceInput     Source = "input"     // user message appended
	SourceAgent     Source = "agent"     // reasoning step
	SourceTools     Source = "tools"     // tool observations appended
	SourceGuardrail Source = "guardrail" // fallback answer after a limit
)

// Metadata is supplied by the caller on every save.
type Metadata struct {
	UserID string
	Source Source
	Step   int
}

// Row is a checkpoint without its message log.
type Row struct {
	ID           uuid.UUID     `json:"id"`
	ParentID     uuid.NullUUID `json:"parent_id"`
	ThreadID     string        `json:"thread_id"`
	UserID       string        `json:"user_id,omitempty"`
	Source       Source        `json:"source"`
	Step         int           `json:"step"`
	CreatedAt    time.Time     `json:"created_at"`
	MessageCount int           `json:"message_count"`
	ByteSize     int64         `json:"byte_size"` // compressed
}

// Checkpoint is a full snapshot of one thread.
type Checkpoint struct {
	Row
	Messages []conversation.Message `json:"-"`
}

// Thread summarizes the checkpoints stored for one thread id.
type Thread struct {
	ThreadID    string    `json:"thread_id"`
	UserID      string    `json:"user_id,omitempty"`
	Checkpoints int       `json:"checkpoints"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summary returns a one-line description of the row.
func (r Row) Summary() string {
	return fmt.Sprintf("%s | %s | %-9s | step %d | %s",
		r.ID.String()[:8],
		r.CreatedAt.Local().Format("2006-01-02 15:04"),
		r.Source,
		r.Step,
		plural(r.MessageCount, "msg"))
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
