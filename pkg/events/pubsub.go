package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// PubSubPublisher publishes each event as one JSON message on a topic.
type PubSubPublisher struct {
	topic  *pubsub.Topic
	logger zerolog.Logger
}

// NewPubSubPublisher verifies that the topic exists before returning.
func NewPubSubPublisher(ctx context.Context, client *pubsub.Client, topicID string, logger zerolog.Logger) (*PubSubPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	topic := client.Topic(topicID)

	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", topicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", topicID)
	}

	return &PubSubPublisher{
		topic:  topic,
		logger: logger.With().Str("component", "PubSubPublisher").Str("topic_id", topicID).Logger(),
	}, nil
}

// Publish queues the event and logs the delivery result asynchronously.
func (p *PubSubPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event_type": event.Type,
			"key":        string(event.Key),
		},
	})

	go func() {
		// Get gets its own context so a short-lived publish context cannot cancel it.
		getCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		msgID, err := result.Get(getCtx)
		if err != nil {
			p.logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to publish event")
			return
		}
		p.logger.Debug().Str("published_msg_id", msgID).Str("event_type", event.Type).Msg("Event published.")
	}()

	return nil
}

// Stop flushes pending messages, respecting the context's deadline.
func (p *PubSubPublisher) Stop(ctx context.Context) error {
	stopDone := make(chan struct{})
	go func() {
		p.topic.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
