package mqtt

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/helion/internal/config"
	"github.com/nugget/helion/internal/events"
)

type fakeSender struct {
	mu   sync.Mutex
	msgs []*paho.Publish
}

func (f *fakeSender) Publish(_ context.Context, p *paho.Publish) (*paho.PublishResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, p)
	return &paho.PublishResponse{}, nil
}

func (f *fakeSender) published() []*paho.Publish {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*paho.Publish(nil), f.msgs...)
}

func TestLoadOrCreateInstanceID(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	first, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateInstanceID() error = %v", err)
	}
	if parts := strings.Split(first, "-"); len(parts) != 5 {
		t.Errorf("id %q does not look like a UUID", first)
	}

	data, err := os.ReadFile(filepath.Join(dir, "instance_id"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != first {
		t.Errorf("file content = %q, want %q", got, first)
	}

	second, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Errorf("second = %q, want %q (should be stable)", second, first)
	}
}

func TestPublisher_Topics(t *testing.T) {
	p := New(config.MQTTConfig{Broker: "mqtt://localhost:1883", DeviceName: "front-desk"}, "id", nil, nil)

	tests := []struct {
		name, got, want string
	}{
		{"base", p.baseTopic(), "helion/front-desk"},
		{"availability", p.availabilityTopic(), "helion/front-desk/availability"},
		{"turns", p.TurnsTopic(), "helion/front-desk/turns"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s topic = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestPublisher_Message(t *testing.T) {
	p := New(config.MQTTConfig{DeviceName: "helion"}, "inst-1", nil, nil)
	ts := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		kind    string
		wantQoS byte
	}{
		{events.KindTurnStart, 0},
		{events.KindToolCall, 0},
		{events.KindTurnComplete, 1},
		{events.KindGuardrail, 1},
		{events.KindTurnError, 1},
	}
	for _, tt := range tests {
		msg, err := p.message(events.Event{
			Timestamp: ts,
			Source:    events.SourceAgent,
			Kind:      tt.kind,
			Data:      map[string]any{"thread_id": "t1"},
		})
		if err != nil {
			t.Fatal(err)
		}
		if msg.QoS != tt.wantQoS || msg.Retain {
			t.Errorf("%s: QoS = %d retain = %v", tt.kind, msg.QoS, msg.Retain)
		}

		var got turnMessage
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatal(err)
		}
		if got.Instance != "inst-1" || got.Kind != tt.kind || !got.Timestamp.Equal(ts) || got.Data["thread_id"] != "t1" {
			t.Errorf("%s: payload = %+v", tt.kind, got)
		}
	}
}

func TestPublisher_ForwardsAgentEvents(t *testing.T) {
	bus := events.New()
	p := New(config.MQTTConfig{DeviceName: "helion"}, "inst-1", bus, nil)
	fake := &fakeSender{}
	p.conn = fake

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.forward(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for bus.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("publisher never subscribed")
		}
		time.Sleep(time.Millisecond)
	}

	bus.Emit(events.SourceAgent, events.KindTurnStart, map[string]any{"thread_id": "t1"})
	bus.Emit(events.SourceAPI, events.KindClientConnected, nil) // not a turn event
	bus.Emit(events.SourceAgent, events.KindTurnComplete, map[string]any{"thread_id": "t1"})

	for len(fake.published()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("published %d messages, want 2", len(fake.published()))
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	msgs := fake.published()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}
	for _, m := range msgs {
		if m.Topic != "helion/helion/turns" {
			t.Errorf("topic = %q", m.Topic)
		}
	}
	if bus.SubscriberCount() != 0 {
		t.Error("subscription not released")
	}
}

func TestPublisher_Availability(t *testing.T) {
	p := New(config.MQTTConfig{DeviceName: "helion"}, "inst-1", nil, nil)
	fake := &fakeSender{}
	p.publishAvailability(context.Background(), fake, "online")

	msgs := fake.published()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages", len(msgs))
	}
	m := msgs[0]
	if m.Topic != "helion/helion/availability" || string(m.Payload) != "online" || !m.Retain || m.QoS != 1 {
		t.Errorf("availability message = %+v", m)
	}
}

func TestPublisher_StopBeforeStart(t *testing.T) {
	p := New(config.MQTTConfig{DeviceName: "helion"}, "inst-1", nil, nil)
	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Stop() = %v", err)
	}
}
