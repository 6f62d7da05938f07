package types

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// FeeModel 是交易费用字段的 tagged union: ModernFee (EIP-1559) 或 LegacyFee，二者只能选其一
type FeeModel interface {
	// Kind 返回 "eip1559" 或 "legacy"
	Kind() string
	isFeeModel()
}

// ModernFee EIP-1559 费用模型
type ModernFee struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

func (ModernFee) Kind() string { return "eip1559" }
func (ModernFee) isFeeModel()  {}

// LegacyFee 旧版单一 gasPrice 模型
type LegacyFee struct {
	GasPrice *big.Int
}

func (LegacyFee) Kind() string { return "legacy" }
func (LegacyFee) isFeeModel()  {}

// TransactionRequest 待签名的原生资产转账
// 每次调用都从链上实时数据构造，不缓存、不复用
type TransactionRequest struct {
	To       common.Address
	Value    *big.Int // 最小单位 (Wei)
	Nonce    uint64
	ChainID  *big.Int // EIP-155 重放保护
	GasLimit uint64
	Fee      FeeModel
}

var (
	ErrNoFeeModel    = errors.New("transaction request has no fee model")
	ErrNoChainID     = errors.New("transaction request has no chain id")
	ErrNegativeValue = errors.New("transfer value must be non-negative")
)

// Validate 检查请求内部一致性 (恰好一个费用模型)
func (r *TransactionRequest) Validate() error {
	if r.ChainID == nil || r.ChainID.Sign() <= 0 {
		return ErrNoChainID
	}
	if r.Value == nil || r.Value.Sign() < 0 {
		return ErrNegativeValue
	}
	switch fee := r.Fee.(type) {
	case ModernFee:
		if fee.MaxFeePerGas == nil || fee.MaxPriorityFeePerGas == nil {
			return ErrNoFeeModel
		}
	case LegacyFee:
		if fee.GasPrice == nil {
			return ErrNoFeeModel
		}
	default:
		return ErrNoFeeModel
	}
	return nil
}

// FeeEstimate 链上返回的费用快照，仅在获取时刻有效
type FeeEstimate struct {
	BaseFee              *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	GasPrice             *big.Int
	FetchedAt            time.Time
}

// SignedTransaction represents the result of the signing process.
type SignedTransaction struct {
	TxHash string `json:"tx_hash"` // Transaction Hash
	RawTx  string `json:"raw_tx"`  // EIP-2718 Encoded Hex String (ready to broadcast)
}

// Receipt 交易上链后的执行结果
type Receipt struct {
	TxHash        string `json:"tx_hash"`
	BlockNumber   uint64 `json:"block_number"`
	Confirmations uint64 `json:"confirmations"`
	Status        uint64 `json:"status"` // 1 = success, 0 = revert
	GasUsed       uint64 `json:"gas_used"`
}

// Succeeded 只有 status == 1 才算成功，仅仅"有回执"不代表成功
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == 1
}
