// Package events carries turn lifecycle notifications from the agent to
// whoever is watching: the /v1/events websocket feed and the MQTT
// publisher. A nil *Bus is valid and drops everything, so the scheduler
// publishes unconditionally.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceAgent identifies events from the turn scheduler.
	SourceAgent = "agent"
	// SourceAPI identifies events from the HTTP server.
	SourceAPI = "api"
	// SourceConnwatch identifies backend health transitions.
	SourceConnwatch = "connwatch"
)

// Kind constants describe the type of event within a source.
const (
	// KindTurnStart signals a user message was accepted.
	// Data: request_id, thread_id, user_id.
	KindTurnStart = "turn_start"
	// KindLLMCall signals a reasoning step is invoking the model.
	// Data: request_id, thread_id, step, model.
	KindLLMCall = "llm_call"
	// KindLLMResponse signals the model stream ended.
	// Data: request_id, thread_id, step, next, elapsed_ms.
	KindLLMResponse = "llm_response"
	// KindToolCall signals the start of a tool execution.
	// Data: request_id, thread_id, tool.
	KindToolCall = "tool_call"
	// KindToolDone signals completion of a tool execution.
	// Data: request_id, thread_id, tool, ok, duration_ms.
	KindToolDone = "tool_done"
	// KindTurnComplete signals a turn ended with an answer.
	// Data: request_id, thread_id, steps, elapsed_ms.
	KindTurnComplete = "turn_complete"
	// KindGuardrail signals a turn hit its iteration or time limit.
	// Data: request_id, thread_id, reason, steps.
	KindGuardrail = "guardrail"
	// KindTurnError signals a turn aborted.
	// Data: request_id, thread_id, error.
	KindTurnError = "turn_error"

	// KindClientConnected signals a websocket client attached.
	// Data: transport, user.
	KindClientConnected = "client_connected"

	// KindServiceStatus signals a backend became reachable or
	// unreachable. Data: service, ready, error.
	KindServiceStatus = "service_status"
)

// DefaultBuffer is the subscriber buffer used when Subscribe is given
// a non-positive size.
const DefaultBuffer = 64

// Event represents a single operational event published by a component.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Source    string         `json:"source"`
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking the turn that published them.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend lets Unsubscribe take the receive-only view handed to
	// the caller.
	recvToSend map[<-chan Event]chan Event

	now func() time.Time
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
		now:        time.Now,
	}
}

// Publish sends an event to all subscribers, dropping it for any whose
// buffer is full. A zero Timestamp is set to the current time.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Emit is shorthand for publishing an event built from its parts.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	b.Publish(Event{Source: source, Kind: kind, Data: data})
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = DefaultBuffer
	}
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Unknown
// or already removed channels are ignored.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
