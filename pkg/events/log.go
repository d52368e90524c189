package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogPublisher writes events to the log. It is used when no topic is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "LogPublisher").Logger()}
}

// Publish logs the event at debug level.
func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Debug().
		Str("event_id", event.ID).
		Str("event_type", event.Type).
		Str("key", string(event.Key)).
		Int("bytes", event.Bytes).
		Msg("Cache event.")
	return nil
}

// Stop is a no-op.
func (p *LogPublisher) Stop(_ context.Context) error { return nil }
