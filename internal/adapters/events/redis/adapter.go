// Package redis carries the agent event fan-out and the orphaned-query
// ledger over a shared Redis connection.
package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"agentdash.server/internal/core/domain"
	"agentdash.server/internal/core/logger"
)

const eventChannel = "agentdash:events"

// EventBus implements ports.EventBus over a Redis pub/sub channel. Every
// lifecycle transition is published; dashboards subscribe for live updates.
type EventBus struct {
	client *redis.Client
}

func NewEventBus(url string) (*EventBus, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	return &EventBus{client: client}, client, nil
}

// NewEventBusWithClient shares an existing connection.
func NewEventBusWithClient(client *redis.Client) *EventBus {
	return &EventBus{client: client}
}

func (b *EventBus) Publish(ctx context.Context, event domain.AgentEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, eventChannel, data).Err()
}

// Subscribe streams agent events until the context is cancelled. Malformed
// payloads are dropped with a debug log rather than tearing the stream down.
func (b *EventBus) Subscribe(ctx context.Context) (<-chan domain.AgentEvent, error) {
	pubsub := b.client.Subscribe(ctx, eventChannel)
	ch := make(chan domain.AgentEvent)

	go func() {
		defer pubsub.Close()
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				var event domain.AgentEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logger.Debug("dropping malformed agent event", "error", err)
					continue
				}
				select {
				case ch <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}
