package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"agentdash.server/internal/core/logger"
	"agentdash.server/internal/core/ports"
)

// Publisher consumes the agent event bus and republishes to MQTT so edge
// dashboards can subscribe without touching Redis.
type Publisher struct {
	client mqtt.Client
	events ports.EventBus
	prefix string
}

// NewPublisher connects to the broker and returns the publisher.
func NewPublisher(events ports.EventBus, brokerURL string) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(fmt.Sprintf("agentdash-server-%d", time.Now().UnixNano()))
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	logger.Info("connected to mqtt broker", "broker", brokerURL)
	return &Publisher{
		client: client,
		events: events,
		prefix: "agentdash",
	}, nil
}

// Start runs the event consumer until the context is cancelled.
func (p *Publisher) Start(ctx context.Context) {
	go p.consumeEvents(ctx)
}

func (p *Publisher) consumeEvents(ctx context.Context) {
	ch, err := p.events.Subscribe(ctx)
	if err != nil {
		logger.Error("mqtt: failed to subscribe to agent events", "error", err)
		return
	}

	logger.Info("mqtt: started agent event consumer")

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}

			// Per-agent topic plus a firehose topic.
			topic := fmt.Sprintf("%s/agents/%d", p.prefix, event.AgentID)
			p.client.Publish(topic, 0, false, payload)
			p.client.Publish(p.prefix+"/events", 0, false, payload)
		}
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
