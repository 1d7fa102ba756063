// Package eventstream consumes the local change-event stream the sync
// engine dispatches from (spec.md §4.4, §9: a consumer-group stream named
// "pms:events", group "channel_manager", consumer "worker-<id>"). It
// follows the teacher's pattern of a thin struct wrapping *redis.Client
// (coordination.Client) rather than a separate broker client.
package eventstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	streamName  = "pms:events"
	groupName   = "channel_manager"
	blockTime   = time.Second
	readCount   = 10
)

// Event is the decoded local change event dispatched to the sync engine.
type Event struct {
	ID       string
	Type     string
	TenantID string
	Payload  json.RawMessage
}

// Handler processes one decoded event; a returned error leaves the
// message unacknowledged so Redis's pending-entries list redelivers it.
type Handler func(ctx context.Context, ev Event) error

// Consumer reads pms:events as a consumer-group member and dispatches
// each message to Handler, acknowledging only on success (spec.md §4.4's
// "Acknowledge only on successful dispatch").
type Consumer struct {
	rdb      *redis.Client
	logger   *zap.Logger
	workerID string
}

// NewConsumer builds a Consumer for one worker identity.
func NewConsumer(rdb *redis.Client, logger *zap.Logger, workerID string) *Consumer {
	return &Consumer{rdb: rdb, logger: logger, workerID: workerID}
}

// EnsureGroup creates the consumer group if it doesn't already exist,
// starting from the beginning of the stream.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, streamName, groupName, "0").Err()
	if err != nil && !isBusyGroupErr(err) {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && (err.Error() == "BUSYGROUP Consumer Group name already exists")
}

// Tick performs one read-dispatch-ack cycle (spec.md §4.4: "every 10s…
// block 1s, count 10"). It is meant to be called on a recurring
// scheduler tick, not looped internally, so the caller controls cadence.
func (c *Consumer) Tick(ctx context.Context, handle Handler) error {
	consumerName := fmt.Sprintf("worker-%s", c.workerID)

	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    groupName,
		Consumer: consumerName,
		Streams:  []string{streamName, ">"},
		Count:    readCount,
		Block:    blockTime,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return fmt.Errorf("read event stream: %w", err)
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			ev, decodeErr := decode(msg)
			if decodeErr != nil {
				c.logger.Warn("dropping malformed stream message", zap.String("id", msg.ID), zap.Error(decodeErr))
				c.ack(ctx, msg.ID)
				continue
			}
			if err := handle(ctx, ev); err != nil {
				c.logger.Warn("event dispatch failed, leaving unacknowledged", zap.String("id", msg.ID), zap.Error(err))
				continue
			}
			c.ack(ctx, msg.ID)
		}
	}
	return nil
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.rdb.XAck(ctx, streamName, groupName, id).Err(); err != nil {
		c.logger.Warn("failed to ack stream message", zap.String("id", id), zap.Error(err))
	}
}

func decode(msg redis.XMessage) (Event, error) {
	typ, _ := msg.Values["type"].(string)
	tenantID, _ := msg.Values["tenant_id"].(string)
	payloadStr, _ := msg.Values["payload"].(string)
	if typ == "" {
		return Event{}, fmt.Errorf("missing type field")
	}
	return Event{ID: msg.ID, Type: typ, TenantID: tenantID, Payload: json.RawMessage(payloadStr)}, nil
}
