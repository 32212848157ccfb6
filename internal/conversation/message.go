// Package conversation defines the append-only message log that makes
// up a thread: user messages, agent messages and tool observations.
package conversation

import (
	"encoding/json"
	"fmt"
)

// Message is one entry in a thread's log. The set of implementations
// is closed: [UserMessage], [AgentMessage] and [ToolObservation].
type Message interface {
	// Text returns the message body.
	Text() string
	message()
}

// UserMessage is input from the person in the conversation.
type UserMessage struct {
	Content string
}

// AgentMessage is model output. Intermediate reasoning steps keep the
// raw Thought/Action text so later steps can rebuild the scratchpad;
// Final marks the user-visible answer that ended a turn.
type AgentMessage struct {
	Content string
	Final   bool
}

// ToolObservation is a tool's output (or error text) fed back to the
// model on the next reasoning step.
type ToolObservation struct {
	ToolName string
	Content  string
}

func (m UserMessage) Text() string     { return m.Content }
func (m AgentMessage) Text() string    { return m.Content }
func (m ToolObservation) Text() string { return m.Content }

func (UserMessage) message()     {}
func (AgentMessage) message()    {}
func (ToolObservation) message() {}

// Kind values used in the serialized form.
const (
	KindUser        = "user"
	KindAgent       = "agent"
	KindObservation = "observation"
)

// KindOf returns the serialized kind tag for m.
func KindOf(m Message) string {
	switch m.(type) {
	case UserMessage:
		return KindUser
	case AgentMessage:
		return KindAgent
	case ToolObservation:
		return KindObservation
	default:
		panic(fmt.Sprintf("conversation: unknown message type %T", m))
	}
}

// record is the on-disk shape of a message.
type record struct {
	Kind     string `json:"kind"`
	Content  string `json:"content"`
	Final    bool   `json:"final,omitempty"`
	ToolName string `json:"tool_name,omitempty"`
}

// Marshal encodes a log as a JSON array of kind-tagged records.
func Marshal(msgs []Message) ([]byte, error) {
	recs := make([]record, len(msgs))
	for i, m := range msgs {
		switch m := m.(type) {
		case UserMessage:
			recs[i] = record{Kind: KindUser, Content: m.Content}
		case AgentMessage:
			recs[i] = record{Kind: KindAgent, Content: m.Content, Final: m.Final}
		case ToolObservation:
			recs[i] = record{Kind: KindObservation, Content: m.Content, ToolName: m.ToolName}
		default:
			return nil, fmt.Errorf("message %d: unknown type %T", i, m)
		}
	}
	return json.Marshal(recs)
}

// Unmarshal decodes a log produced by [Marshal].
func Unmarshal(data []byte) ([]Message, error) {
	var recs []record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, err
	}
	msgs := make([]Message, len(recs))
	for i, r := range recs {
		switch r.Kind {
		case KindUser:
			msgs[i] = UserMessage{Content: r.Content}
		case KindAgent:
			msgs[i] = AgentMessage{Content: r.Content, Final: r.Final}
		case KindObservation:
			msgs[i] = ToolObservation{ToolName: r.ToolName, Content: r.Content}
		default:
			return nil, fmt.Errorf("message %d: unknown kind %q", i, r.Kind)
		}
	}
	return msgs, nil
}

// Append returns a new slice with msgs added after log. The backing
// array of log is never written to, so earlier snapshots stay intact.
func Append(log []Message, msgs ...Message) []Message {
	out := make([]Message, 0, len(log)+len(msgs))
	out = append(out, log...)
	return append(out, msgs...)
}
