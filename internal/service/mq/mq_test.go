package mq

import (
	"testing"

	"evm-transfer/pkg/config"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromStreamMessage(t *testing.T) {
	msg, err := fromStreamMessage("signed", redis.XMessage{
		ID:     "1700000000000-0",
		Values: map[string]interface{}{"payload": `{"raw_tx":"0x02"}`, "key": "0xabc"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1700000000000-0", msg.ID)
	assert.Equal(t, "signed", msg.Topic)
	assert.Equal(t, "0xabc", msg.Key)
	assert.Equal(t, []byte(`{"raw_tx":"0x02"}`), msg.Payload)

	_, err = fromStreamMessage("signed", redis.XMessage{ID: "1-0", Values: map[string]interface{}{}})
	assert.Error(t, err)
}

func TestFromKafkaMessage(t *testing.T) {
	msg := fromKafkaMessage("signed", kafka.Message{
		Partition: 2,
		Offset:    41,
		Key:       []byte("0xabc"),
		Value:     []byte("payload"),
		Headers:   []kafka.Header{{Key: "source", Value: []byte("signer")}},
	})
	assert.Equal(t, "2-41", msg.ID)
	assert.Equal(t, "0xabc", msg.Key)
	assert.Equal(t, []byte("payload"), msg.Payload)
	assert.Equal(t, "signer", msg.Metadata["source"])
}

func TestNewProducer(t *testing.T) {
	p, err := NewProducer(config.HandoffConfig{})
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = NewProducer(config.HandoffConfig{MQType: TypeKafka, Topic: "t", Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}}})
	require.NoError(t, err)
	assert.IsType(t, &KafkaProducer{}, p)
	assert.NoError(t, p.Close())

	p, err = NewProducer(config.HandoffConfig{MQType: TypeRedis, Redis: config.RedisConfig{Addr: "localhost:6379"}})
	require.NoError(t, err)
	assert.IsType(t, &RedisProducer{}, p)
	assert.NoError(t, p.Close())

	_, err = NewProducer(config.HandoffConfig{MQType: TypeKafka})
	assert.Error(t, err)

	_, err = NewProducer(config.HandoffConfig{MQType: "rabbitmq"})
	assert.Error(t, err)
}

func TestNewConsumer(t *testing.T) {
	_, err := NewConsumer(config.HandoffConfig{})
	assert.Error(t, err)

	c, err := NewConsumer(config.HandoffConfig{MQType: TypeKafka, Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}}})
	require.NoError(t, err)
	assert.IsType(t, &KafkaConsumer{}, c)
	assert.NoError(t, c.Close())
}
