package mq

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"evm-transfer/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaProducer 实现 Producer 接口
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer 创建 Kafka 生产者
// brokers: Kafka 节点地址列表 (e.g. ["localhost:9092"])
func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},    // 按 Key 哈希，同一发送方的交易进入同一分区，保持 nonce 顺序
		AllowAutoTopicCreation: true,             // 开发环境允许自动创建 Topic
		RequiredAcks:           kafka.RequireAll, // 等待所有 ISR 副本确认
		BatchSize:              1,                // 签名交易是低频消息，不攒批
		BatchTimeout:           10 * time.Millisecond,
	}

	return &KafkaProducer{
		writer: writer,
	}
}

// Publish 发送消息到 Kafka，阻塞直到 Ack
func (p *KafkaProducer) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	msg := kafka.Message{
		// Writer 已指定 Topic，此处不能再指定
		Value: payload,
		Key:   []byte(key),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		logger.Error("[Kafka MQ] Publish Error", zap.String("topic", topic), zap.Error(err))
		return fmt.Errorf("kafka write error: %w", err)
	}

	return nil
}

// Close 关闭连接
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// KafkaConsumer 实现 Consumer 接口
type KafkaConsumer struct {
	brokers []string
	groupID string
	reader  *kafka.Reader
}

// NewKafkaConsumer 创建 Kafka 消费者
func NewKafkaConsumer(brokers []string, groupID string) *KafkaConsumer {
	return &KafkaConsumer{
		brokers: brokers,
		groupID: groupID,
	}
}

// Subscribe 订阅 Kafka 主题
// 新消费组从最早的 offset 开始，避免漏掉在 broadcaster 启动前发布的签名交易
func (c *KafkaConsumer) Subscribe(ctx context.Context, topic string, handler Handler) error {
	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.brokers,
		GroupID:     c.groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		StartOffset: kafka.FirstOffset,
	})

	logger.Info("[Kafka MQ] 开始监听主题", zap.String("topic", topic), zap.String("group", c.groupID))

	for {
		// 1. 读取消息 (阻塞直到有消息)
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil // 上下文取消，退出
			}
			logger.Warn("[Kafka MQ] 读取消息错误", zap.Error(err))
			sleepCtx(ctx, time.Second)
			continue
		}

		msg := fromKafkaMessage(topic, m)

		// 2. 调用业务处理函数
		if err := handler(ctx, msg); err != nil {
			// Kafka 不支持单条 Nack，失败的交易记录日志后提交 offset，由人工重新广播
			logger.Error("[Kafka MQ] 业务处理失败", zap.String("id", msg.ID), zap.Error(err))
		}

		// 3. 手动提交 Offset
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			logger.Warn("[Kafka MQ] 提交 Offset 失败", zap.Error(err))
		}
	}
}

// Close 关闭消费者
func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}

func fromKafkaMessage(topic string, m kafka.Message) *Message {
	msg := &Message{
		ID:      strconv.Itoa(m.Partition) + "-" + strconv.FormatInt(m.Offset, 10),
		Topic:   topic,
		Key:     string(m.Key),
		Payload: m.Value,
	}
	if len(m.Headers) > 0 {
		msg.Metadata = make(map[string]string, len(m.Headers))
		for _, h := range m.Headers {
			msg.Metadata[h.Key] = string(h.Value)
		}
	}
	return msg
}
