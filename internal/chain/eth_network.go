package chain

import (
	"context"
	"errors"
	"math/big"
	"time"

	"evm-transfer/pkg/errno"
	"evm-transfer/pkg/logger"
	"evm-transfer/pkg/wallet/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// ethBackend 是 EthNetwork 用到的 ethclient 方法子集，便于测试替换
type ethBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

// EthNetwork 基于 go-ethereum ethclient 的 Network 实现
type EthNetwork struct {
	client ethBackend
	url    string
	now    func() time.Time
}

// Dial 连接 JSON-RPC 节点
func Dial(ctx context.Context, rpcURL string) (*EthNetwork, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errno.Wrap(errno.ErrNetworkQuery, err, "dial "+rpcURL)
	}
	logger.Debug("已连接 RPC 节点", zap.String("url", rpcURL))
	return newEthNetwork(client, rpcURL), nil
}

func newEthNetwork(client ethBackend, rpcURL string) *EthNetwork {
	return &EthNetwork{client: client, url: rpcURL, now: time.Now}
}

func (n *EthNetwork) GetTransactionCount(ctx context.Context, addr common.Address, tag BlockTag) (uint64, error) {
	var (
		nonce uint64
		err   error
	)
	if tag == BlockTagPending {
		nonce, err = n.client.PendingNonceAt(ctx, addr)
	} else {
		// nil blockNum means use latest block
		nonce, err = n.client.NonceAt(ctx, addr, nil)
	}
	if err != nil {
		return 0, errno.Wrap(errno.ErrNetworkQuery, err, "eth_getTransactionCount")
	}
	return nonce, nil
}

// GetFeeData 获取费用快照
// 链支持 EIP-1559 (最新区块带 baseFee) 时: maxFee = 2 * baseFee + priorityFee
func (n *EthNetwork) GetFeeData(ctx context.Context) (*types.FeeEstimate, error) {
	header, err := n.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, errno.Wrap(errno.ErrNetworkQuery, err, "eth_getBlockByNumber")
	}

	gasPrice, err := n.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errno.Wrap(errno.ErrNetworkQuery, err, "eth_gasPrice")
	}

	fee := &types.FeeEstimate{
		GasPrice:  gasPrice,
		FetchedAt: n.now(),
	}

	if header.BaseFee != nil {
		tip, err := n.client.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, errno.Wrap(errno.ErrNetworkQuery, err, "eth_maxPriorityFeePerGas")
		}
		maxFee := new(big.Int).Mul(header.BaseFee, big.NewInt(2))
		maxFee.Add(maxFee, tip)

		fee.BaseFee = new(big.Int).Set(header.BaseFee)
		fee.MaxPriorityFeePerGas = tip
		fee.MaxFeePerGas = maxFee
	}

	return fee, nil
}

func (n *EthNetwork) GetNetwork(ctx context.Context) (*NetworkInfo, error) {
	chainID, err := n.client.ChainID(ctx)
	if err != nil {
		return nil, errno.Wrap(errno.ErrNetworkQuery, err, "eth_chainId")
	}
	return &NetworkInfo{ChainID: chainID, Name: ChainName(chainID)}, nil
}

func (n *EthNetwork) EstimateGas(ctx context.Context, req CallRequest) (uint64, error) {
	to := req.To
	msg := ethereum.CallMsg{
		From:  req.From,
		To:    &to,
		Value: req.Value,
	}
	switch fee := req.Fee.(type) {
	case types.ModernFee:
		msg.GasFeeCap = fee.MaxFeePerGas
		msg.GasTipCap = fee.MaxPriorityFeePerGas
	case types.LegacyFee:
		msg.GasPrice = fee.GasPrice
	}

	gas, err := n.client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, errno.Wrap(errno.ErrNetworkQuery, err, "eth_estimateGas")
	}
	return gas, nil
}

func (n *EthNetwork) SendRawTransaction(ctx context.Context, signed *types.SignedTransaction) (common.Hash, error) {
	tx, err := DecodeSignedTransaction(signed.RawTx)
	if err != nil {
		return common.Hash{}, err
	}
	if err := n.client.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, errno.Wrap(errno.ErrNetworkQuery, err, "eth_sendRawTransaction")
	}
	return tx.Hash(), nil
}

func (n *EthNetwork) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	receipt, err := n.client.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, errno.Wrap(errno.ErrNetworkQuery, err, "eth_getTransactionReceipt")
	}
	return receipt, nil
}

func (n *EthNetwork) BlockNumber(ctx context.Context) (uint64, error) {
	num, err := n.client.BlockNumber(ctx)
	if err != nil {
		return 0, errno.Wrap(errno.ErrNetworkQuery, err, "eth_blockNumber")
	}
	return num, nil
}

func (n *EthNetwork) Close() {
	n.client.Close()
}
