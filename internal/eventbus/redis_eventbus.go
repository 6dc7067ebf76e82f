package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const consumerGroup = "risk-pipeline-workers"

// RedisBus publishes to and consumes from Redis Streams, one stream per
// topic. XAdd keys only select the stream; per-key ORDERING within a topic
// (§4.8) comes from single-writer semantics per idempotencyKey upstream —
// Redis Streams already totally orders all entries within one stream, so
// events sharing a key are delivered in publish order by construction.
type RedisBus struct {
	client *redis.Client
	logger *zap.Logger

	mu   sync.Mutex
	subs []*redisSubscription
}

type redisSubscription struct {
	id     string
	topic  string
	cancel context.CancelFunc
}

func (s *redisSubscription) Topic() string      { return s.topic }
func (s *redisSubscription) Unsubscribe() error { s.cancel(); return nil }

func NewRedisBus(client *redis.Client, logger *zap.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logger}
}

func (b *RedisBus) Publish(ctx context.Context, topic, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}
	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{"key": key, "payload": data},
	}).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string, handler EventHandler) (Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSubscription{id: uuid.NewString(), topic: topic, cancel: cancel}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	if err := b.client.XGroupCreateMkStream(subCtx, topic, consumerGroup, "0").Err(); err != nil &&
		err.Error() != "BUSYGROUP Consumer Group name already exists" {
		b.logger.Debug("eventbus: group create result", zap.String("topic", topic), zap.Error(err))
	}

	go b.consume(subCtx, sub, handler)
	return sub, nil
}

func (b *RedisBus) consume(ctx context.Context, sub *redisSubscription, handler EventHandler) {
	consumerName := "consumer-" + sub.id

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    consumerGroup,
			Consumer: consumerName,
			Streams:  []string{sub.topic, ">"},
			Count:    20,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if err != redis.Nil && ctx.Err() == nil {
				b.logger.Warn("eventbus: stream read failed", zap.String("topic", sub.topic), zap.Error(err))
				time.Sleep(100 * time.Millisecond)
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				b.deliver(ctx, sub, msg, handler)
			}
		}
	}
}

func (b *RedisBus) deliver(ctx context.Context, sub *redisSubscription, msg redis.XMessage, handler EventHandler) {
	payloadStr, ok := msg.Values["payload"].(string)
	if !ok {
		b.logger.Warn("eventbus: message missing payload field, acking to drop", zap.String("msgId", msg.ID))
		b.client.XAck(ctx, sub.topic, consumerGroup, msg.ID)
		return
	}

	if err := handler(ctx, []byte(payloadStr)); err != nil {
		b.logger.Warn("eventbus: handler failed, leaving unacked for redelivery",
			zap.String("topic", sub.topic), zap.String("msgId", msg.ID), zap.Error(err))
		return
	}
	b.client.XAck(ctx, sub.topic, consumerGroup, msg.ID)
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		sub.cancel()
	}
	return b.client.Close()
}
