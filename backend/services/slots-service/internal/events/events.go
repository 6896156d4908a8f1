package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event types published on slot availability changes.
const (
	SlotAllocated = "slot.allocated"
	SlotUpdated   = "slot.updated"
	SlotDeleted   = "slot.deleted"
	SlotHeld      = "slot.held"
	SlotReleased  = "slot.released"
	SlotConfirmed = "slot.confirmed"
	SlotExpired   = "slot.expired"
)

// DefaultChannel is the Redis pub/sub channel for slot events.
const DefaultChannel = "slots:availability"

const publishTimeout = 500 * time.Millisecond

// SlotEvent describes a change to one slot.
type SlotEvent struct {
	Type         string    `json:"type"`
	StationID    string    `json:"station_id"`
	SlotID       string    `json:"slot_id,omitempty"`
	SlotNumber   int       `json:"slot_number"`
	Availability *int      `json:"availability,omitempty"`
	HoldID       string    `json:"hold_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// WithAvailability returns a copy of e carrying availability v.
func (e SlotEvent) WithAvailability(v int) SlotEvent {
	e.Availability = &v
	return e
}

// RedisPublisher publishes slot events to a Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher returns a publisher for channel. Empty channel selects DefaultChannel.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Publish sends the event. Delivery is best effort: subscribers that are offline miss it.
func (p *RedisPublisher) Publish(ctx context.Context, event SlotEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements the publisher contract.
func (NopPublisher) Publish(context.Context, SlotEvent) error { return nil }

// Subscriber relays slot events from Redis to a sink.
type Subscriber struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewSubscriber returns subscriber instance.
func NewSubscriber(client *redis.Client, channel string, logger *zap.Logger) *Subscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Subscriber{client: client, channel: channel, logger: logger.Named("events")}
}

// Run delivers every decoded event to sink until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context, sink func(SlotEvent)) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.logger.Info("subscribed to slot events", zap.String("channel", s.channel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var event SlotEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.Warn("dropping malformed slot event", zap.Error(err))
				continue
			}
			sink(event)
		}
	}
}
