package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/illmade-knight/go-comiccache/pkg/datekey"
	"github.com/illmade-knight/go-comiccache/pkg/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestPubSubClient(t *testing.T, ctx context.Context) *pubsub.Client {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.Dial(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestEventConstructors(t *testing.T) {
	at := time.Date(2025, 1, 5, 8, 0, 0, 0, time.FixedZone("CET", 3600))
	day := datekey.New(2025, 1, 5)

	fetched := events.Fetched(day, 1234, at)
	assert.Equal(t, events.TypeFetched, fetched.Type)
	assert.Equal(t, datekey.Key("250105"), fetched.Key)
	assert.Equal(t, 1234, fetched.Bytes)
	assert.Equal(t, time.UTC, fetched.OccurredAt.Location())
	assert.NotEmpty(t, fetched.ID)

	evicted := events.Evicted(day, at)
	assert.Equal(t, events.TypeEvicted, evicted.Type)
	assert.NotEqual(t, fetched.ID, evicted.ID)

	b, err := json.Marshal(evicted)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"day":"2025-01-05"`)
	assert.NotContains(t, string(b), `"bytes"`)
}

func TestPubSubPublisher_PublishAndStop(t *testing.T) {
	// --- Arrange ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	client := newTestPubSubClient(t, ctx)

	topic, err := client.CreateTopic(ctx, "comic-events")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "comic-events-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	publisher, err := events.NewPubSubPublisher(ctx, client, "comic-events", zerolog.Nop())
	require.NoError(t, err)

	// --- Act ---
	event := events.Fetched(datekey.New(2025, 1, 5), 42, time.Now())
	require.NoError(t, publisher.Publish(ctx, event))

	// --- Assert ---
	var mu sync.Mutex
	var received *pubsub.Message
	receiveCtx, receiveCancel := context.WithCancel(ctx)
	t.Cleanup(receiveCancel)

	go func() {
		err := sub.Receive(receiveCtx, func(_ context.Context, msg *pubsub.Message) {
			mu.Lock()
			received = msg
			mu.Unlock()
			msg.Ack()
			receiveCancel()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("subscription receive error: %v", err)
		}
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received != nil
	}, 5*time.Second, 50*time.Millisecond, "did not receive event in time")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, events.TypeFetched, received.Attributes["event_type"])
	assert.Equal(t, "250105", received.Attributes["key"])

	var decoded events.Event
	require.NoError(t, json.Unmarshal(received.Data, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, event.Day, decoded.Day)

	stopCtx, stopCancel := context.WithTimeout(ctx, 2*time.Second)
	t.Cleanup(stopCancel)
	require.NoError(t, publisher.Stop(stopCtx))
}

func TestNewPubSubPublisher_TopicDoesNotExist(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	client := newTestPubSubClient(t, ctx)

	_, err := events.NewPubSubPublisher(ctx, client, "missing", zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	_, err = events.NewPubSubPublisher(ctx, nil, "missing", zerolog.Nop())
	assert.Error(t, err)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := events.NewLogPublisher(zerolog.New(&buf).Level(zerolog.DebugLevel))

	require.NoError(t, p.Publish(context.Background(), events.Evicted(datekey.New(2025, 1, 1), time.Now())))
	require.NoError(t, p.Stop(context.Background()))

	assert.Contains(t, buf.String(), `"event_type":"comic.evicted"`)
	assert.Contains(t, buf.String(), `"key":"250101"`)
}
