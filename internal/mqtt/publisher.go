package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/helion/internal/buildinfo"
	"github.com/nugget/helion/internal/config"
	"github.com/nugget/helion/internal/events"
)

// sender is the slice of *autopaho.ConnectionManager the publisher
// uses once connected.
type sender interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// turnMessage is the JSON payload for one turn event.
type turnMessage struct {
	Instance  string         `json:"instance"`
	Version   string         `json:"version"`
	Timestamp time.Time      `json:"ts"`
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

// Publisher forwards agent events from an [events.Bus] to the broker.
type Publisher struct {
	cfg        config.MQTTConfig
	instanceID string
	bus        *events.Bus
	logger     *slog.Logger

	cm   *autopaho.ConnectionManager
	conn sender
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to connect and begin forwarding.
func New(cfg config.MQTTConfig, instanceID string, bus *events.Bus, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:        cfg,
		instanceID: instanceID,
		bus:        bus,
		logger:     logger,
	}
}

// Start connects to the broker and forwards events until ctx is
// cancelled. Connection failures after the first attempt are retried
// in the background by autopaho.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "helion-" + p.cfg.DeviceName,
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm
	p.conn = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	p.forward(ctx)
	return nil
}

// Stop publishes "offline" and disconnects.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.publishAvailability(ctx, p.cm, "offline")
	return p.cm.Disconnect(ctx)
}

func (p *Publisher) baseTopic() string {
	return "helion/" + p.cfg.DeviceName
}

func (p *Publisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

// TurnsTopic is where turn events are published.
func (p *Publisher) TurnsTopic() string {
	return p.baseTopic() + "/turns"
}

func (p *Publisher) publishAvailability(ctx context.Context, conn sender, status string) {
	if _, err := conn.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
		return
	}
	p.logger.Info("mqtt availability published", "status", status)
}

// forward drains the bus until ctx is done or the subscription closes.
func (p *Publisher) forward(ctx context.Context) {
	ch := p.bus.Subscribe(events.DefaultBuffer)
	defer p.bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			p.publishEvent(ctx, e)
		}
	}
}

func (p *Publisher) publishEvent(ctx context.Context, e events.Event) {
	if e.Source != events.SourceAgent {
		return
	}
	msg, err := p.message(e)
	if err != nil {
		p.logger.Error("mqtt marshal turn event", "kind", e.Kind, "error", err)
		return
	}
	if _, err := p.conn.Publish(ctx, msg); err != nil {
		p.logger.Debug("mqtt turn event publish failed", "kind", e.Kind, "error", err)
	}
}

// message builds the broker message for e. Terminal events are
// published at QoS 1 so a finished turn is not lost; progress events
// use QoS 0.
func (p *Publisher) message(e events.Event) (*paho.Publish, error) {
	payload, err := json.Marshal(turnMessage{
		Instance:  p.instanceID,
		Version:   buildinfo.Version,
		Timestamp: e.Timestamp.UTC(),
		Kind:      e.Kind,
		Data:      e.Data,
	})
	if err != nil {
		return nil, err
	}

	var qos byte
	switch e.Kind {
	case events.KindTurnComplete, events.KindTurnError, events.KindGuardrail:
		qos = 1
	}
	return &paho.Publish{
		Topic:   p.TurnsTopic(),
		Payload: payload,
		QoS:     qos,
	}, nil
}
