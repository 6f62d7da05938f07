package mq

import (
	"fmt"
	"os"

	"evm-transfer/pkg/config"

	"github.com/redis/go-redis/v9"
)

const (
	TypeRedis = "redis"
	TypeKafka = "kafka"
)

// ConsumerGroup broadcaster 使用的消费组名
const ConsumerGroup = "evm_transfer_broadcaster"

// NewProducer 按 handoff.mq_type 创建生产者，mq_type 为空时返回 nil
func NewProducer(cfg config.HandoffConfig) (Producer, error) {
	switch cfg.MQType {
	case "":
		return nil, nil
	case TypeRedis:
		return NewRedisProducer(newRedisClient(cfg.Redis)), nil
	case TypeKafka:
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, fmt.Errorf("handoff.kafka.brokers is empty")
		}
		return NewKafkaProducer(cfg.Kafka.Brokers, cfg.Topic), nil
	}
	return nil, fmt.Errorf("unsupported handoff.mq_type %q", cfg.MQType)
}

// NewConsumer 按 handoff.mq_type 创建消费者
func NewConsumer(cfg config.HandoffConfig) (Consumer, error) {
	switch cfg.MQType {
	case TypeRedis:
		return NewRedisConsumer(newRedisClient(cfg.Redis), ConsumerGroup, consumerName()), nil
	case TypeKafka:
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, fmt.Errorf("handoff.kafka.brokers is empty")
		}
		return NewKafkaConsumer(cfg.Kafka.Brokers, ConsumerGroup), nil
	case "":
		return nil, fmt.Errorf("handoff.mq_type is not set")
	}
	return nil, fmt.Errorf("unsupported handoff.mq_type %q", cfg.MQType)
}

func newRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil {
		host = "broadcaster"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
