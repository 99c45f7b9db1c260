package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"phaze17/dashboard/internal/config"
)

const (
	readBatch   = 10
	readBlock   = 5 * time.Second
	claimBatch  = 10
	deadSuffix  = ":dead"
	maxReadWait = 30 * time.Second
)

type MessageHandler interface {
	Handle(ctx context.Context, msg redis.XMessage) error
}

// Consumer is one member of the worker group on the task stream. Entries are
// acked only after the handler succeeds. Entries left pending longer than
// the claim interval are taken over, and after MaxDeliveries attempts they
// are parked on the dead-letter stream.
type Consumer struct {
	rdb     *redis.Client
	cfg     config.WorkerConfig
	dead    string
	handler MessageHandler
	log     zerolog.Logger
}

func NewConsumer(client *redis.Client, cfg config.WorkerConfig, logger zerolog.Logger, handler MessageHandler) *Consumer {
	return &Consumer{
		rdb:     client,
		cfg:     cfg,
		dead:    cfg.Stream + deadSuffix,
		handler: handler,
		log: logger.With().
			Str("component", "consumer").
			Str("stream", cfg.Stream).
			Str("member", cfg.Consumer).
			Logger(),
	}
}

// EnsureGroup creates the stream and group on first run.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Start consumes until ctx ends. Read failures back off exponentially and
// reset after the next successful read.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	retry := backoff.NewExponentialBackOff()
	retry.MaxInterval = maxReadWait
	retry.MaxElapsedTime = 0

	nextClaim := time.Now().Add(c.cfg.ClaimInterval)
	for ctx.Err() == nil {
		if err := c.read(ctx); err != nil && ctx.Err() == nil {
			wait := retry.NextBackOff()
			c.log.Error().Err(err).Dur("retry_in", wait).Msg("stream read failed")
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			continue
		}
		retry.Reset()

		if time.Now().After(nextClaim) {
			if err := c.reclaim(ctx); err != nil && ctx.Err() == nil {
				c.log.Warn().Err(err).Msg("reclaim pending entries failed")
			}
			nextClaim = time.Now().Add(c.cfg.ClaimInterval)
		}
	}
	return ctx.Err()
}

func (c *Consumer) read(ctx context.Context) error {
	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    readBatch,
		Block:    readBlock,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, s := range streams {
		for _, msg := range s.Messages {
			c.process(ctx, msg)
		}
	}
	return nil
}

func (c *Consumer) process(ctx context.Context, msg redis.XMessage) {
	if err := c.handler.Handle(ctx, msg); err != nil {
		c.log.Error().Err(err).Str("message_id", msg.ID).Msg("task failed, left pending")
		return
	}
	if err := c.rdb.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		c.log.Error().Err(err).Str("message_id", msg.ID).Msg("ack failed")
	}
}

// reclaim takes over entries idle for a full claim interval.
func (c *Consumer) reclaim(ctx context.Context) error {
	pending, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.Stream,
		Group:  c.cfg.Group,
		Idle:   c.cfg.ClaimInterval,
		Start:  "-",
		End:    "+",
		Count:  claimBatch,
	}).Result()
	if err != nil {
		return err
	}

	for _, p := range pending {
		claimed, err := c.rdb.XClaim(ctx, &redis.XClaimArgs{
			Stream:   c.cfg.Stream,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			MinIdle:  c.cfg.ClaimInterval,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			c.log.Error().Err(err).Str("message_id", p.ID).Msg("claim failed")
			continue
		}
		for _, msg := range claimed {
			if exhausted(p.RetryCount, c.cfg.MaxDeliveries) {
				c.bury(ctx, msg, p.RetryCount)
				continue
			}
			c.process(ctx, msg)
		}
	}
	return nil
}

// bury moves a task that keeps failing to the dead-letter stream and acks
// it on the live one.
func (c *Consumer) bury(ctx context.Context, msg redis.XMessage, deliveries int64) {
	values := make(map[string]any, len(msg.Values)+1)
	for k, v := range msg.Values {
		values[k] = v
	}
	values["origin_id"] = msg.ID

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{Stream: c.dead, Values: values})
		pipe.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID)
		return nil
	})
	ev := c.log.Warn()
	if err != nil {
		ev = c.log.Error().Err(err)
	}
	ev.Str("message_id", msg.ID).Int64("deliveries", deliveries).Str("dead_stream", c.dead).Msg("task dead-lettered")
}

func exhausted(deliveries, limit int64) bool {
	return limit > 0 && deliveries >= limit
}
