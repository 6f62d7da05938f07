package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"evm-transfer/pkg/wallet/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types" // Alias to avoid conflict
)

// BlockTag 查询 nonce 时使用的区块标签
type BlockTag string

const (
	BlockTagLatest  BlockTag = "latest"
	BlockTagPending BlockTag = "pending"
)

// ErrReceiptNotFound 交易尚未被打包 (pending)，不是网络错误
var ErrReceiptNotFound = errors.New("receipt not found")

// NetworkInfo getNetwork 的结果
type NetworkInfo struct {
	ChainID *big.Int
	Name    string
}

func (n *NetworkInfo) String() string {
	return fmt.Sprintf("%s (chainId=%s)", n.Name, n.ChainID)
}

// CallRequest 用于 estimateGas 的部分交易
type CallRequest struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Fee   types.FeeModel // 可为 nil
}

// Network 转账流程依赖的链上能力集合
// 所有方法都是一次网络往返，失败时返回 errno.ErrNetworkQuery，不做重试
type Network interface {
	GetTransactionCount(ctx context.Context, addr common.Address, tag BlockTag) (uint64, error)
	GetFeeData(ctx context.Context) (*types.FeeEstimate, error)
	GetNetwork(ctx context.Context) (*NetworkInfo, error)
	EstimateGas(ctx context.Context, req CallRequest) (uint64, error)
	SendRawTransaction(ctx context.Context, signed *types.SignedTransaction) (common.Hash, error)
	// TransactionReceipt 交易未上链时返回 ErrReceiptNotFound
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

// DecodeSignedTransaction 反序列化 Raw Tx (带或不带 0x 前缀)
func DecodeSignedTransaction(raw string) (*ethtypes.Transaction, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		raw = "0x" + raw
	}
	rawTxBytes, err := hexutil.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("无效的 raw tx hex: %w", err)
	}
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(rawTxBytes); err != nil {
		return nil, fmt.Errorf("反序列化交易失败: %w", err)
	}
	return tx, nil
}

var chainNames = map[int64]string{
	1:        "mainnet",
	10:       "optimism",
	56:       "bnb",
	137:      "matic",
	8453:     "base",
	17000:    "holesky",
	42161:    "arbitrum",
	560048:   "hoodi",
	11155111: "sepolia",
}

// ChainName 返回常见链的名称，未知链返回 "unknown"
func ChainName(chainID *big.Int) string {
	if chainID == nil || !chainID.IsInt64() {
		return "unknown"
	}
	if name, ok := chainNames[chainID.Int64()]; ok {
		return name
	}
	return "unknown"
}
