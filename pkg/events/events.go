// Package events publishes notifications about cache state changes so other
// processes can follow what the cache fetched and evicted.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-comiccache/pkg/datekey"
)

// Event types.
const (
	TypeFetched = "comic.fetched"
	TypeEvicted = "comic.evicted"
)

// Event is the JSON payload of a published notification.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Key        datekey.Key `json:"key"`
	Day        datekey.Day `json:"day"`
	Bytes      int         `json:"bytes,omitempty"`
	OccurredAt time.Time   `json:"occurredAt"`
}

// Fetched describes a blob that was fetched and written to the cache.
func Fetched(day datekey.Day, size int, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       TypeFetched,
		Key:        datekey.KeyOf(day),
		Day:        day,
		Bytes:      size,
		OccurredAt: at.UTC(),
	}
}

// Evicted describes a day removed by a retention sweep.
func Evicted(day datekey.Day, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       TypeEvicted,
		Key:        datekey.KeyOf(day),
		Day:        day,
		OccurredAt: at.UTC(),
	}
}

// Publisher sends events. Publish must not block on delivery; Stop flushes
// anything still pending.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Stop(ctx context.Context) error
}
