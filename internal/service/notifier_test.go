package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestNotifierDeliversToRoomSubscribers(t *testing.T) {
	notifier := NewNotifier(nil, nil, "", testLogger())

	events, cleanup := notifier.Subscribe(UserRoom(7))
	defer cleanup()

	otherEvents, otherCleanup := notifier.Subscribe(UserRoom(8))
	defer otherCleanup()

	notifier.Emit(context.Background(), UserRoom(7), EventGradingStarted, map[string]int{"response_id": 1})

	select {
	case event := <-events:
		require.Equal(t, EventGradingStarted, event.Name)
		require.Equal(t, UserRoom(7), event.Room)

		var payload map[string]int
		require.NoError(t, json.Unmarshal(event.Payload, &payload))
		require.Equal(t, 1, payload["response_id"])
	case <-time.After(time.Second):
		t.Fatal("expected event was not delivered")
	}

	select {
	case <-otherEvents:
		t.Fatal("event leaked into another room")
	default:
	}
}

func TestNotifierEmitWithoutSubscribersDoesNotBlock(t *testing.T) {
	notifier := NewNotifier(nil, nil, "", testLogger())

	done := make(chan struct{})
	go func() {
		notifier.Emit(context.Background(), ResponseRoom(1), EventGradingCompleted, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked with no subscribers")
	}
}

func TestNotifierCleanupClosesChannel(t *testing.T) {
	notifier := NewNotifier(nil, nil, "", testLogger())

	events, cleanup := notifier.Subscribe(UserRoom(7))
	cleanup()

	_, open := <-events
	require.False(t, open)

	// Emitting after cleanup must not panic or deliver.
	notifier.Emit(context.Background(), UserRoom(7), EventGradingProgress, nil)
}

func TestNotifierSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	notifier := NewNotifier(nil, nil, "", testLogger())

	_, cleanup := notifier.Subscribe(UserRoom(7))
	defer cleanup()

	// The subscriber never reads; once its buffer is full the emitter must
	// keep returning promptly.
	done := make(chan struct{})
	go func() {
		for i := 0; i < eventBufferSize*3; i++ {
			notifier.Emit(context.Background(), UserRoom(7), EventGradingProgress, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on a slow subscriber")
	}
}

func TestNotifierRedisFanout(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	publisherClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer publisherClient.Close()
	consumerClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer consumerClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher := NewNotifier(publisherClient, nil, "bnf", testLogger())
	consumer := NewNotifier(consumerClient, nil, "bnf", testLogger())
	consumer.Start(ctx)

	events, cleanup := consumer.Subscribe(UserRoom(7))
	defer cleanup()

	// Give the consumer's subscription a moment to attach.
	require.Eventually(t, func() bool {
		publisher.Emit(ctx, UserRoom(7), EventGradingCompleted, map[string]int{"response_id": 9})
		select {
		case event := <-events:
			return event.Name == EventGradingCompleted
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 20*time.Millisecond)
}
