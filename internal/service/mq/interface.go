package mq

import "context"

// Message 代表一条通用的消息
type Message struct {
	ID       string            // 消息ID (Redis Stream ID 或 Kafka partition/offset)
	Topic    string            // 主题 (例如 "wallet_events_signed_tx")
	Key      string            // 分区键 (发送方地址，保证同一地址的 nonce 顺序)
	Payload  []byte            // 消息体 (JSON)
	Metadata map[string]string // 元数据
}

// Handler 返回 error 时消息不会被确认
type Handler func(ctx context.Context, msg *Message) error

// Producer 生产者接口
type Producer interface {
	// Publish 发送消息
	// key: 用于分区排序 (Partition Key), 传空字符串则随机分区.
	Publish(ctx context.Context, topic string, key string, payload []byte) error
	Close() error
}

// Consumer 消费者接口
type Consumer interface {
	// Subscribe 阻塞消费 topic 直到 ctx 取消
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close 关闭消费者
	Close() error
}
