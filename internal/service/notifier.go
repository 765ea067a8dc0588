package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const eventBufferSize = 16

var (
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bnf",
		Subsystem: "notify",
		Name:      "events_published_total",
		Help:      "Progress events published, by event name",
	}, []string{"event"})

	streamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bnf",
		Subsystem: "notify",
		Name:      "stream_clients_active",
		Help:      "Live event stream subscribers",
	})
)

// UserRoom builds the room key progress events for a user are published to.
func UserRoom(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

// ResponseRoom builds the room key used by the grading page fallback.
func ResponseRoom(responseID uint) string {
	return fmt.Sprintf("response:%d", responseID)
}

// Event is one progress notification delivered to live clients.
type Event struct {
	Room    string          `json:"room"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// Notifier publishes progress events to live clients. Delivery is
// best-effort: events for rooms without subscribers are dropped, and missed
// events are recovered through the polling endpoints, not replayed.
type Notifier interface {
	Emit(ctx context.Context, room, event string, payload interface{})
	Subscribe(room string) (<-chan Event, func())
	Start(ctx context.Context)
}

type notifier struct {
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	broker      *eventBroker
	nodeID      string
}

type fanoutEnvelope struct {
	Source string `json:"source"`
	Event  Event  `json:"event"`
}

type eventBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
}

// NewNotifier constructs the notification channel. Both redisClient and
// natsConn may be nil; fanout to other nodes is then disabled.
func NewNotifier(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) Notifier {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	return &notifier{
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "notifier").Logger(),
		broker: &eventBroker{
			subscribers: make(map[string]map[chan Event]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

func (n *notifier) Start(ctx context.Context) {
	if n.redis != nil && n.redisStream != "" {
		go n.consumeRedis(ctx)
	}
	if n.nats != nil && n.natsSubject != "" {
		go n.consumeNATS(ctx)
	}
}

func (n *notifier) Emit(ctx context.Context, room, event string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn().Err(err).Str("event", event).Msg("failed to encode event payload")
		return
	}

	evt := Event{
		Room:    room,
		Name:    event,
		Payload: body,
		SentAt:  time.Now().UTC(),
	}

	n.broker.broadcast(evt)
	eventsPublished.WithLabelValues(event).Inc()

	if err := n.fanout(ctx, evt); err != nil {
		n.logger.Warn().Err(err).Str("event", event).Msg("failed to fan out event")
	}
}

func (n *notifier) Subscribe(room string) (<-chan Event, func()) {
	channel := make(chan Event, eventBufferSize)

	n.broker.subscribe(room, channel)
	streamClients.Inc()

	cleanup := func() {
		n.broker.unsubscribe(room, channel)
		streamClients.Dec()
	}

	return channel, cleanup
}

func (n *notifier) fanout(ctx context.Context, evt Event) error {
	envelope := fanoutEnvelope{Source: n.nodeID, Event: evt}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	if n.redis != nil && n.redisStream != "" {
		if err := n.redis.Publish(ctx, n.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if n.nats != nil && n.natsSubject != "" {
		if err := n.nats.Publish(n.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (n *notifier) consumeRedis(ctx context.Context) {
	pubsub := n.redis.Subscribe(ctx, n.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			n.logger.Error().Err(err).Msg("event redis subscription closed")
			return
		}
		n.handleEnvelope([]byte(msg.Payload))
	}
}

func (n *notifier) consumeNATS(ctx context.Context) {
	sub, err := n.nats.QueueSubscribe(n.natsSubject, "bnf-events", func(msg *nats.Msg) {
		n.handleEnvelope(msg.Data)
	})
	if err != nil {
		n.logger.Error().Err(err).Msg("failed to subscribe to nats events subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			n.logger.Warn().Err(err).Msg("failed to drain nats event subscription")
		}
	}()
}

func (n *notifier) handleEnvelope(payload []byte) {
	var envelope fanoutEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		n.logger.Warn().Err(err).Msg("invalid fanout event payload")
		return
	}

	// Events published by this node were already broadcast locally.
	if envelope.Source == n.nodeID {
		return
	}

	n.broker.broadcast(envelope.Event)
}

func (b *eventBroker) subscribe(room string, channel chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[room] == nil {
		b.subscribers[room] = make(map[chan Event]struct{})
	}
	b.subscribers[room][channel] = struct{}{}
}

func (b *eventBroker) unsubscribe(room string, channel chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.subscribers[room]; ok {
		delete(subs, channel)
		if len(subs) == 0 {
			delete(b.subscribers, room)
		}
	}
	close(channel)
}

func (b *eventBroker) broadcast(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for channel := range b.subscribers[evt.Room] {
		select {
		case channel <- evt:
		default:
			// Slow subscriber: drop rather than block a worker.
		}
	}
}
