package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"phaze17/dashboard/internal/ids"
	"phaze17/dashboard/internal/models"
)

// TaskType is the stream task type under which auth events are queued for
// the worker.
const TaskType = "auth_event"

// Bus fans auth events out to local subscribers, to other API instances via
// Redis Pub/Sub, and to the worker stream. A nil client keeps it local.
type Bus struct {
	client  *redis.Client
	channel string
	stream  string
	origin  string
	log     zerolog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]func(models.AuthEvent)
}

func NewBus(client *redis.Client, channel, stream string, log zerolog.Logger) *Bus {
	return &Bus{
		client:  client,
		channel: channel,
		stream:  stream,
		origin:  ids.New(),
		log:     log.With().Str("component", "events").Logger(),
		subs:    make(map[uint64]func(models.AuthEvent)),
	}
}

// Subscribe registers fn for every event. The returned func removes it.
func (b *Bus) Subscribe(fn func(models.AuthEvent)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev locally, then forwards it to Redis. Forwarding
// failures are returned but local delivery has already happened.
func (b *Bus) Publish(ctx context.Context, ev models.AuthEvent) error {
	if ev.ID == "" {
		ev.ID = ids.New()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	ev.Origin = b.origin

	b.deliver(ev)

	if b.client == nil {
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	if b.stream != "" {
		if err := b.client.XAdd(ctx, &redis.XAddArgs{
			Stream: b.stream,
			Values: map[string]any{
				"type":  TaskType,
				"event": string(payload),
			},
		}).Err(); err != nil {
			return fmt.Errorf("queue event: %w", err)
		}
	}
	return nil
}

// Run relays events published by other instances until ctx is done.
func (b *Bus) Run(ctx context.Context) error {
	if b.client == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, err := Decode(msg.Payload)
			if err != nil {
				b.log.Warn().Err(err).Msg("drop malformed event")
				continue
			}
			if ev.Origin == b.origin {
				continue
			}
			b.deliver(ev)
		}
	}
}

func (b *Bus) deliver(ev models.AuthEvent) {
	b.mu.RLock()
	fns := make([]func(models.AuthEvent), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func Decode(raw string) (models.AuthEvent, error) {
	var ev models.AuthEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return models.AuthEvent{}, err
	}
	if ev.Type == "" || ev.UserID == "" {
		return models.AuthEvent{}, fmt.Errorf("event missing type or user")
	}
	return ev, nil
}
