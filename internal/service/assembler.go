package service

import (
	"context"
	"math/big"

	"evm-transfer/internal/chain"
	"evm-transfer/pkg/errno"
	"evm-transfer/pkg/logger"
	"evm-transfer/pkg/wallet/types"
	"evm-transfer/pkg/wallet/units"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const (
	// GasMarginPercent 估算 gas 之上追加的比例
	GasMarginPercent = 10
	// GasMarginFloor 追加量的绝对下限
	GasMarginFloor = 10000
)

// ApplyGasMargin 返回 estimate + max(ceil(estimate * 10%), 10000)
func ApplyGasMargin(estimate uint64) uint64 {
	margin := (estimate*GasMarginPercent + 99) / 100
	if margin < GasMarginFloor {
		margin = GasMarginFloor
	}
	return estimate + margin
}

// SelectFeeModel 二选一: 有 maxFeePerGas 用 EIP-1559，否则退回 gasPrice
func SelectFeeModel(fee *types.FeeEstimate) (types.FeeModel, error) {
	if fee == nil {
		return nil, errno.Newf(errno.ErrNetworkQuery, "fee data is empty")
	}
	if fee.MaxFeePerGas != nil {
		tip := fee.MaxPriorityFeePerGas
		if tip == nil {
			return nil, errno.Newf(errno.ErrNetworkQuery, "fee data has maxFeePerGas but no maxPriorityFeePerGas")
		}
		return types.ModernFee{
			MaxFeePerGas:         new(big.Int).Set(fee.MaxFeePerGas),
			MaxPriorityFeePerGas: new(big.Int).Set(tip),
		}, nil
	}
	if fee.GasPrice == nil {
		return nil, errno.Newf(errno.ErrNetworkQuery, "fee data has neither maxFeePerGas nor gasPrice")
	}
	return types.LegacyFee{GasPrice: new(big.Int).Set(fee.GasPrice)}, nil
}

// Assembler 负责用实时链上数据构造 TransactionRequest
// 只做只读查询，任何一次查询失败都原样返回，不重试
type Assembler struct {
	network chain.Network
}

func NewAssembler(network chain.Network) *Assembler {
	return &Assembler{network: network}
}

// Assemble 依次获取 nonce、费用、chainId 和 gas 估算
// nonce 只是建议值: 同一发送方的并发交易可能使其失效，这里不加锁也不重试
func (a *Assembler) Assemble(ctx context.Context, from, to common.Address, value *big.Int) (*types.TransactionRequest, error) {
	if value == nil || value.Sign() < 0 {
		return nil, errno.Newf(errno.ErrConfiguration, "transfer amount must be non-negative")
	}

	// 1. Nonce
	nonce, err := a.network.GetTransactionCount(ctx, from, chain.BlockTagLatest)
	if err != nil {
		return nil, err
	}

	// 2. Fee data
	feeData, err := a.network.GetFeeData(ctx)
	if err != nil {
		return nil, err
	}
	fee, err := SelectFeeModel(feeData)
	if err != nil {
		return nil, err
	}

	// 3. ChainID (EIP-155 重放保护)
	info, err := a.network.GetNetwork(ctx)
	if err != nil {
		return nil, err
	}

	// 4. Gas limit
	estimate, err := a.network.EstimateGas(ctx, chain.CallRequest{
		From:  from,
		To:    to,
		Value: value,
		Fee:   fee,
	})
	if err != nil {
		return nil, err
	}

	req := &types.TransactionRequest{
		To:       to,
		Value:    new(big.Int).Set(value),
		Nonce:    nonce,
		ChainID:  info.ChainID,
		GasLimit: ApplyGasMargin(estimate),
		Fee:      fee,
	}

	logger.Debug("交易组装完成",
		zap.String("to", to.Hex()),
		zap.String("value_ether", units.FormatEther(value)),
		zap.Uint64("nonce", nonce),
		zap.String("chain_id", info.ChainID.String()),
		zap.String("fee_model", fee.Kind()),
		zap.Uint64("gas_estimate", estimate),
		zap.Uint64("gas_limit", req.GasLimit))

	return req, nil
}
