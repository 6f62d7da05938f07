package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"evm-transfer/internal/service/mq"
	"evm-transfer/pkg/errno"
	"evm-transfer/pkg/logger"
	"evm-transfer/pkg/wallet/types"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// WriteSignedFile 保存签名结果 (signed.json)，供离线机器拷贝到广播机器
func WriteSignedFile(path string, signed *types.SignedTransaction) error {
	data, err := json.MarshalIndent(signed, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("保存结果失败: %w", err)
	}
	return nil
}

// ReadSignedFile 读取 signed.json 或只包含 raw tx hex 的文本文件
func ReadSignedFile(path string) (*types.SignedTransaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errno.Wrap(errno.ErrConfiguration, err, "read signed tx")
	}
	return ParseSignedPayload(data)
}

// ParseSignedPayload 接受 {"tx_hash","raw_tx"} JSON 或裸 hex
func ParseSignedPayload(data []byte) (*types.SignedTransaction, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errno.Newf(errno.ErrConfiguration, "signed payload is empty")
	}

	if data[0] == '{' {
		var signed types.SignedTransaction
		if err := json.Unmarshal(data, &signed); err != nil {
			return nil, errno.Wrap(errno.ErrConfiguration, err, "parse signed tx")
		}
		if signed.RawTx == "" {
			return nil, errno.Newf(errno.ErrConfiguration, "signed payload has no raw_tx")
		}
		return &signed, nil
	}

	raw := strings.TrimSpace(string(data))
	return &types.SignedTransaction{RawTx: raw}, nil
}

// Handoff 把离线签名结果发布到消息队列，由 broadcaster 消费
type Handoff struct {
	producer mq.Producer
	topic    string
}

func NewHandoff(producer mq.Producer, topic string) *Handoff {
	return &Handoff{producer: producer, topic: topic}
}

// Publish 以发送方地址作为分区键，同一地址的交易按 nonce 顺序到达
func (h *Handoff) Publish(ctx context.Context, from common.Address, signed *types.SignedTransaction) error {
	payload, err := json.Marshal(signed)
	if err != nil {
		return err
	}
	if err := h.producer.Publish(ctx, h.topic, from.Hex(), payload); err != nil {
		return errno.Wrap(errno.ErrNetworkQuery, err, "publish signed tx")
	}
	logger.Info("签名交易已发布", zap.String("topic", h.topic), zap.String("tx_hash", signed.TxHash))
	return nil
}

func (h *Handoff) Close() error {
	return h.producer.Close()
}

// Follow 持续消费签名交易并交给 handle，直到 ctx 取消
// 单条交易失败只记录日志，不终止消费
func Follow(ctx context.Context, consumer mq.Consumer, topic string, handle func(ctx context.Context, signed *types.SignedTransaction) error) error {
	return consumer.Subscribe(ctx, topic, func(ctx context.Context, msg *mq.Message) error {
		signed, err := ParseSignedPayload(msg.Payload)
		if err != nil {
			// 格式错误的消息重试也没有意义，确认掉
			logger.Warn("忽略无法解析的消息", zap.String("id", msg.ID), zap.Error(err))
			return nil
		}
		logger.Info("收到签名交易", zap.String("id", msg.ID), zap.String("from", msg.Key), zap.String("tx_hash", signed.TxHash))
		return handle(ctx, signed)
	})
}
