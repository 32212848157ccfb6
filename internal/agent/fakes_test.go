package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nugget/helion/internal/checkpoint"
	"github.com/nugget/helion/internal/conversation"
	"github.com/nugget/helion/internal/llm"
)

// reply is one scripted model response.
type reply struct {
	chunks  []string
	openErr error // returned from GenerateStream
	err     error // sent after the chunks
	block   bool  // hold the stream open until ctx is done
}

// scriptedClient returns pre-configured replies in sequence and records
// each request.
type scriptedClient struct {
	mu      sync.Mutex
	replies []reply
	repeat  *reply // used once replies run out
	calls   []llm.Request
}

func (c *scriptedClient) GenerateStream(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	c.mu.Lock()
	idx := len(c.calls)
	c.calls = append(c.calls, req)
	var r reply
	switch {
	case idx < len(c.replies):
		r = c.replies[idx]
	case c.repeat != nil:
		r = *c.repeat
	default:
		c.mu.Unlock()
		return nil, fmt.Errorf("scriptedClient: no more replies (call %d)", idx)
	}
	c.mu.Unlock()

	if r.openErr != nil {
		return nil, r.openErr
	}

	ch := make(chan llm.Chunk)
	go func() {
		defer close(ch)
		for _, t := range r.chunks {
			select {
			case ch <- llm.Chunk{Text: t}:
			case <-ctx.Done():
				return
			}
		}
		if r.err != nil {
			select {
			case ch <- llm.Chunk{Err: r.err}:
			case <-ctx.Done():
			}
			return
		}
		if r.block {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

func (c *scriptedClient) Ping(context.Context) error { return nil }

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// memCheckpoints is an in-memory Checkpointer.
type memCheckpoints struct {
	mu      sync.Mutex
	threads map[string][]*checkpoint.Checkpoint
	failOn  checkpoint.Source
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{threads: make(map[string][]*checkpoint.Checkpoint)}
}

func (m *memCheckpoints) LoadLatest(_ context.Context, threadID string) (*checkpoint.Checkpoint, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cps := m.threads[threadID]
	if len(cps) == 0 {
		return nil, false, nil
	}
	return cps[len(cps)-1], true, nil
}

func (m *memCheckpoints) Save(_ context.Context, threadID string, msgs []conversation.Message, meta checkpoint.Metadata) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != "" && meta.Source == m.failOn {
		return uuid.Nil, fmt.Errorf("disk full")
	}
	cp := &checkpoint.Checkpoint{
		Row: checkpoint.Row{
			ID:           uuid.New(),
			ThreadID:     threadID,
			UserID:       meta.UserID,
			Source:       meta.Source,
			Step:         meta.Step,
			MessageCount: len(msgs),
		},
		Messages: msgs,
	}
	if prev := m.threads[threadID]; len(prev) > 0 {
		cp.ParentID = uuid.NullUUID{UUID: prev[len(prev)-1].ID, Valid: true}
	}
	m.threads[threadID] = append(m.threads[threadID], cp)
	return cp.ID, nil
}

func (m *memCheckpoints) sources(threadID string) []checkpoint.Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []checkpoint.Source
	for _, cp := range m.threads[threadID] {
		out = append(out, cp.Source)
	}
	return out
}

// drain collects everything sent on ch until it is closed.
func drain(ch <-chan string) string {
	var s string
	for t := range ch {
		s += t
	}
	return s
}
