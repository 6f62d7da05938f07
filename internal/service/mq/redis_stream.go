package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"evm-transfer/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const payloadField = "payload"

// RedisProducer 实现 Producer 接口
type RedisProducer struct {
	client redis.UniversalClient
}

// NewRedisProducer 创建 Redis 生产者
func NewRedisProducer(client redis.UniversalClient) *RedisProducer {
	return &RedisProducer{
		client: client,
	}
}

// Publish 发送消息到 Redis Stream (XADD)
func (p *RedisProducer) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{
			payloadField: payload,
			"key":        key,
			"ts":         time.Now().Unix(),
		},
	}).Err()

	if err != nil {
		logger.Error("[Redis MQ] Publish Error", zap.String("topic", topic), zap.Error(err))
		return fmt.Errorf("redis xadd error: %w", err)
	}

	return nil
}

func (p *RedisProducer) Close() error {
	return p.client.Close()
}

// RedisConsumer 实现 Consumer 接口
type RedisConsumer struct {
	client redis.UniversalClient
	group  string
	name   string
}

// NewRedisConsumer 创建 Redis 消费者
func NewRedisConsumer(client redis.UniversalClient, group, name string) *RedisConsumer {
	return &RedisConsumer{
		client: client,
		group:  group,
		name:   name,
	}
}

// Subscribe 订阅 Redis Stream
func (c *RedisConsumer) Subscribe(ctx context.Context, topic string, handler Handler) error {
	// 1. 创建 Consumer Group (如果不存在)
	// XGROUP CREATE <stream> <group> 0 MKSTREAM, 从头消费，broadcaster 启动前发布的交易也会被处理
	err := c.client.XGroupCreateMkStream(ctx, topic, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("创建消费者组失败: %w", err)
	}

	logger.Info("[Redis MQ] 开始监听主题", zap.String("topic", topic), zap.String("group", c.group))

	for {
		if ctx.Err() != nil {
			return nil
		}

		// 2. 阻塞读取消息
		// XREADGROUP GROUP <group> <consumer> BLOCK 2000 COUNT 1 STREAMS <topic> >
		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{topic, ">"},
			Count:    1,
			Block:    2 * time.Second,
		}).Result()

		if errors.Is(err, redis.Nil) {
			continue // 超时无消息
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("[Redis MQ] 读取消息错误", zap.Error(err))
			sleepCtx(ctx, time.Second)
			continue
		}

		// 3. 处理消息
		for _, stream := range streams {
			for _, xMessage := range stream.Messages {
				msg, err := fromStreamMessage(topic, xMessage)
				if err != nil {
					logger.Warn("[Redis MQ] 消息格式错误", zap.String("id", xMessage.ID), zap.Error(err))
					c.ack(ctx, topic, xMessage.ID)
					continue
				}

				if err := handler(ctx, msg); err != nil {
					// 不 ACK，留在 PEL 中等待人工处理
					logger.Error("[Redis MQ] 消息处理失败", zap.String("id", msg.ID), zap.Error(err))
					continue
				}
				c.ack(ctx, topic, xMessage.ID)
			}
		}
	}
}

func (c *RedisConsumer) ack(ctx context.Context, topic, id string) {
	if err := c.client.XAck(ctx, topic, c.group, id).Err(); err != nil {
		logger.Warn("[Redis MQ] ACK 失败", zap.String("id", id), zap.Error(err))
	}
}

func (c *RedisConsumer) Close() error {
	return c.client.Close()
}

func fromStreamMessage(topic string, x redis.XMessage) (*Message, error) {
	val, ok := x.Values[payloadField].(string)
	if !ok || val == "" {
		return nil, fmt.Errorf("payload 缺失")
	}
	msg := &Message{
		ID:      x.ID,
		Topic:   topic,
		Payload: []byte(val),
	}
	if key, ok := x.Values["key"].(string); ok {
		msg.Key = key
	}
	return msg, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
