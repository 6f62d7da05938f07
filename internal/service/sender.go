package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"evm-transfer/internal/chain"
	"evm-transfer/pkg/errno"
	"evm-transfer/pkg/logger"
	"evm-transfer/pkg/wallet/types"
	"evm-transfer/pkg/wallet/units"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// DefaultPollInterval 查询回执的间隔
const DefaultPollInterval = 4 * time.Second

// RevertedError 交易已上链但执行失败 (status == 0)，携带回执
type RevertedError struct {
	Receipt *types.Receipt
}

func (e *RevertedError) Error() string {
	return fmt.Sprintf("%s: tx %s in block %d (gas used %d)",
		errno.ErrExecutionReverted.Message, e.Receipt.TxHash, e.Receipt.BlockNumber, e.Receipt.GasUsed)
}

// Is 让 errors.Is(err, errno.ErrExecutionReverted) 成立
func (e *RevertedError) Is(target error) bool {
	base, ok := target.(errno.Errno)
	return ok && base.Code == errno.ErrExecutionReverted.Code
}

// Sender 广播已签名交易并等待确认
type Sender struct {
	network      chain.Network
	pollInterval time.Duration
}

func NewSender(network chain.Network, pollInterval time.Duration) *Sender {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Sender{network: network, pollInterval: pollInterval}
}

// Submit 广播一次，不重试、不替换
func (s *Sender) Submit(ctx context.Context, signed *types.SignedTransaction) (common.Hash, error) {
	if signed == nil || signed.RawTx == "" {
		return common.Hash{}, errno.Newf(errno.ErrConfiguration, "signed transaction is empty")
	}
	hash, err := s.network.SendRawTransaction(ctx, signed)
	if err != nil {
		return common.Hash{}, err
	}
	if signed.TxHash != "" && signed.TxHash != hash.Hex() {
		logger.Warn("节点返回的哈希与签名结果不一致",
			zap.String("expected", signed.TxHash), zap.String("got", hash.Hex()))
	}
	logger.Info("交易已广播", zap.String("tx_hash", hash.Hex()))
	return hash, nil
}

// WaitForReceipt 轮询直到回执所在区块的确认数 (latest - block + 1) 达到 confirmations
// 超时返回 errno.ErrTimeout；回执状态不在这里判断，交给 CheckReceipt
func (s *Sender) WaitForReceipt(ctx context.Context, hash common.Hash, confirmations uint64, timeout time.Duration) (*types.Receipt, error) {
	if confirmations == 0 {
		confirmations = 1
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.poll(ctx, hash, confirmations)
		if err != nil {
			if ctx.Err() != nil {
				return nil, s.timeoutError(ctx, hash, confirmations, timeout)
			}
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, s.timeoutError(ctx, hash, confirmations, timeout)
		case <-ticker.C:
		}
	}
}

// poll 单次查询，尚未达到目标时返回 (nil, nil)
func (s *Sender) poll(ctx context.Context, hash common.Hash, confirmations uint64) (*types.Receipt, error) {
	raw, err := s.network.TransactionReceipt(ctx, hash)
	if errors.Is(err, chain.ErrReceiptNotFound) {
		logger.Debug("交易尚未上链", zap.String("tx_hash", hash.Hex()))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	latest, err := s.network.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	receipt := fromEthReceipt(hash, raw, latest)
	if receipt.Confirmations < confirmations {
		logger.Debug("等待更多确认",
			zap.String("tx_hash", hash.Hex()),
			zap.Uint64("confirmations", receipt.Confirmations),
			zap.Uint64("target", confirmations))
		return nil, nil
	}
	return receipt, nil
}

func (s *Sender) timeoutError(ctx context.Context, hash common.Hash, confirmations uint64, timeout time.Duration) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return errno.Wrap(errno.ErrTimeout, ctx.Err(), "wait for "+hash.Hex())
	}
	return errno.Newf(errno.ErrTimeout, "tx %s did not reach %d confirmations within %s", hash.Hex(), confirmations, timeout)
}

// CheckReceipt 把 status == 0 的回执转换为 RevertedError
func CheckReceipt(r *types.Receipt) error {
	if r.Succeeded() {
		return nil
	}
	return &RevertedError{Receipt: r}
}

func fromEthReceipt(hash common.Hash, r *ethtypes.Receipt, latest uint64) *types.Receipt {
	var block uint64
	if r.BlockNumber != nil {
		block = r.BlockNumber.Uint64()
	}
	var confirmations uint64
	if latest >= block {
		confirmations = latest - block + 1
	}
	return &types.Receipt{
		TxHash:        hash.Hex(),
		BlockNumber:   block,
		Confirmations: confirmations,
		Status:        r.Status,
		GasUsed:       r.GasUsed,
	}
}

// ConfirmationPolicy 按金额选择确认数
type ConfirmationPolicy struct {
	Default            uint64
	HighValue          uint64
	HighValueThreshold *big.Int // wei, nil 表示不区分金额
}

// NewConfirmationPolicy thresholdEther 为空时不启用大额规则
func NewConfirmationPolicy(def, highValue uint64, thresholdEther string) (ConfirmationPolicy, error) {
	p := ConfirmationPolicy{Default: def, HighValue: highValue}
	if thresholdEther == "" {
		return p, nil
	}
	threshold, err := units.ParseEther(thresholdEther)
	if err != nil {
		return p, errno.Wrap(errno.ErrConfiguration, err, "high_value_threshold")
	}
	p.HighValueThreshold = threshold
	return p, nil
}

// For 返回 value 对应的确认数，explicit > 0 时优先使用
func (p ConfirmationPolicy) For(value *big.Int, explicit uint64) uint64 {
	if explicit > 0 {
		return explicit
	}
	if p.HighValueThreshold != nil && value != nil && p.HighValue > p.Default && value.Cmp(p.HighValueThreshold) >= 0 {
		return p.HighValue
	}
	if p.Default == 0 {
		return 1
	}
	return p.Default
}
