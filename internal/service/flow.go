package service

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"evm-transfer/internal/chain"
	"evm-transfer/pkg/errno"
	"evm-transfer/pkg/logger"
	"evm-transfer/pkg/monitor"
	"evm-transfer/pkg/wallet/types"
	"evm-transfer/pkg/wallet/units"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// DefaultTimeout 等待确认的默认超时
const DefaultTimeout = 5 * time.Minute

// Dialer 建立到 RPC 节点的连接，测试时替换为 mock
type Dialer func(ctx context.Context, rpcURL string) (chain.Network, error)

// Deps 流程的外部依赖
type Deps struct {
	Dial Dialer
	Out  io.Writer // 状态输出 (CLI 中为 stdout)
}

// DefaultDeps 使用 ethclient 和 os.Stdout
func DefaultDeps() Deps {
	return Deps{
		Dial: func(ctx context.Context, rpcURL string) (chain.Network, error) {
			return chain.Dial(ctx, rpcURL)
		},
		Out: os.Stdout,
	}
}

func (d Deps) out() io.Writer {
	if d.Out == nil {
		return io.Discard
	}
	return d.Out
}

// OnlineConfig 在线模式: 同一个节点负责查询、广播和等待确认
type OnlineConfig struct {
	RPCURL string
	Key    KeyMaterial
	To     string
	Value  *big.Int // wei

	// Confirmations > 0 时覆盖 Policy
	Confirmations uint64
	Policy        ConfirmationPolicy
	Timeout       time.Duration
	PollInterval  time.Duration
}

func (c *OnlineConfig) Validate() error {
	if strings.TrimSpace(c.RPCURL) == "" {
		return errno.Newf(errno.ErrConfiguration, "RPC_URL is not set")
	}
	if c.Key.IsEmpty() {
		return errno.Newf(errno.ErrConfiguration, "PRIVATE_KEY is not set")
	}
	if c.Timeout < 0 {
		return errno.Newf(errno.ErrConfiguration, "timeout must not be negative")
	}
	return validateTransfer(c.To, c.Value)
}

// OfflineConfig 离线签名模式: 元数据节点只用于只读查询，签名结果交给广播方
type OfflineConfig struct {
	MetaRPCURL string
	Key        KeyMaterial
	To         string
	Value      *big.Int // wei
}

func (c *OfflineConfig) Validate() error {
	if strings.TrimSpace(c.MetaRPCURL) == "" {
		return errno.Newf(errno.ErrConfiguration, "RPC_URL_META is not set")
	}
	if c.Key.IsEmpty() {
		return errno.Newf(errno.ErrConfiguration, "PRIVATE_KEY is not set")
	}
	return validateTransfer(c.To, c.Value)
}

// BroadcastConfig 广播方: 提交已签名交易并等待确认
type BroadcastConfig struct {
	RPCURL        string
	Confirmations uint64
	Policy        ConfirmationPolicy
	Timeout       time.Duration
	PollInterval  time.Duration
}

func (c *BroadcastConfig) Validate() error {
	if strings.TrimSpace(c.RPCURL) == "" {
		return errno.Newf(errno.ErrConfiguration, "RPC_URL is not set")
	}
	if c.Timeout < 0 {
		return errno.Newf(errno.ErrConfiguration, "timeout must not be negative")
	}
	return nil
}

func validateTransfer(to string, value *big.Int) error {
	if !common.IsHexAddress(to) {
		return errno.Newf(errno.ErrConfiguration, "invalid recipient address %q", to)
	}
	if value == nil || value.Sign() < 0 {
		return errno.Newf(errno.ErrConfiguration, "transfer amount must be non-negative")
	}
	return nil
}

// OnlineResult 在线流程的结果
type OnlineResult struct {
	Network *chain.NetworkInfo
	Request *types.TransactionRequest
	Signed  *types.SignedTransaction
	Receipt *types.Receipt
}

// OfflineResult 离线流程的结果
type OfflineResult struct {
	From    common.Address
	Network *chain.NetworkInfo
	Request *types.TransactionRequest
	Signed  *types.SignedTransaction
}

// BroadcastResult 广播流程的结果
type BroadcastResult struct {
	TxHash  common.Hash
	Receipt *types.Receipt
}

// RunOnline 组装、签名、广播并等待确认
// 回执 status != 1 时返回 RevertedError，结果中仍带有回执
func RunOnline(ctx context.Context, cfg OnlineConfig, deps Deps) (result *OnlineResult, err error) {
	defer recordFailure(&err)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	key, err := cfg.Key.Load()
	if err != nil {
		return nil, err
	}
	signer, err := NewSigner(key)
	if err != nil {
		return nil, errno.Wrap(errno.ErrConfiguration, err, "signer")
	}

	network, err := deps.Dial(ctx, cfg.RPCURL)
	if err != nil {
		return nil, err
	}
	defer network.Close()

	out := deps.out()
	result = &OnlineResult{}

	// 1. 网络 (chainId 防跨链重放)
	result.Network, err = network.GetNetwork(ctx)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Connected network: %s\n", result.Network)

	// 2. 组装
	result.Request, err = NewAssembler(network).Assemble(ctx, signer.Address(), common.HexToAddress(cfg.To), cfg.Value)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Tx skeleton: %s\n", DescribeRequest(result.Request))

	// 3. 签名
	result.Signed, err = signer.Sign(result.Request)
	if err != nil {
		return nil, err
	}
	monitor.Business.TxSignedTotal.WithLabelValues(result.Request.Fee.Kind()).Inc()

	// 4. 广播并等待确认
	confirmations := cfg.Policy.For(cfg.Value, cfg.Confirmations)
	sent, err := submitAndWait(ctx, network, result.Network, result.Signed, confirmations, cfg.Timeout, cfg.PollInterval, out)
	if sent != nil {
		result.Receipt = sent.Receipt
	}
	if err != nil {
		return result, err
	}

	monitor.Business.TransferAmountTotal.WithLabelValues(result.Network.Name).Add(etherFloat(cfg.Value))
	return result, nil
}

// RunOffline 用元数据节点组装请求并在本地签名，不广播
func RunOffline(ctx context.Context, cfg OfflineConfig, deps Deps) (result *OfflineResult, err error) {
	defer recordFailure(&err)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	key, err := cfg.Key.Load()
	if err != nil {
		return nil, err
	}
	signer, err := NewSigner(key)
	if err != nil {
		return nil, errno.Wrap(errno.ErrConfiguration, err, "signer")
	}

	network, err := deps.Dial(ctx, cfg.MetaRPCURL)
	if err != nil {
		return nil, err
	}
	defer network.Close()

	out := deps.out()
	result = &OfflineResult{From: signer.Address()}

	result.Network, err = network.GetNetwork(ctx)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Connected network: %s\n", result.Network)

	result.Request, err = NewAssembler(network).Assemble(ctx, signer.Address(), common.HexToAddress(cfg.To), cfg.Value)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Tx skeleton: %s\n", DescribeRequest(result.Request))

	result.Signed, err = signer.Sign(result.Request)
	if err != nil {
		return nil, err
	}
	monitor.Business.TxSignedTotal.WithLabelValues(result.Request.Fee.Kind()).Inc()

	logger.Info("离线签名完成", zap.String("from", signer.Address().Hex()), zap.String("tx_hash", result.Signed.TxHash))
	fmt.Fprintf(out, "Signed tx (paste to broadcaster): %s\n", result.Signed.RawTx)
	return result, nil
}

// RunBroadcast 提交一笔已签名交易并等待确认，确认数按交易金额选择
func RunBroadcast(ctx context.Context, cfg BroadcastConfig, signed *types.SignedTransaction, deps Deps) (result *BroadcastResult, err error) {
	defer recordFailure(&err)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if signed == nil {
		return nil, errno.Newf(errno.ErrConfiguration, "signed transaction is empty")
	}
	tx, err := chain.DecodeSignedTransaction(signed.RawTx)
	if err != nil {
		return nil, errno.Wrap(errno.ErrConfiguration, err, "raw_tx")
	}

	network, err := deps.Dial(ctx, cfg.RPCURL)
	if err != nil {
		return nil, err
	}
	defer network.Close()

	out := deps.out()
	info, err := network.GetNetwork(ctx)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Connected network: %s\n", info)

	// 防止把为其他链签名的交易广播到当前节点
	if tx.ChainId() != nil && tx.ChainId().Sign() > 0 && tx.ChainId().Cmp(info.ChainID) != 0 {
		return nil, errno.Newf(errno.ErrConfiguration, "signed tx is for chainId %s but node is on %s", tx.ChainId(), info)
	}

	confirmations := cfg.Policy.For(tx.Value(), cfg.Confirmations)
	result, err = submitAndWait(ctx, network, info, signed, confirmations, cfg.Timeout, cfg.PollInterval, out)
	if err != nil {
		return result, err
	}
	monitor.Business.TransferAmountTotal.WithLabelValues(info.Name).Add(etherFloat(tx.Value()))
	return result, nil
}

func submitAndWait(ctx context.Context, network chain.Network, info *chain.NetworkInfo, signed *types.SignedTransaction,
	confirmations uint64, timeout, pollInterval time.Duration, out io.Writer) (*BroadcastResult, error) {
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	sender := NewSender(network, pollInterval)
	hash, err := sender.Submit(ctx, signed)
	if err != nil {
		return nil, err
	}
	monitor.Business.TxSubmittedTotal.WithLabelValues(info.Name).Inc()
	fmt.Fprintf(out, "Sent tx hash: %s\n", hash.Hex())

	start := time.Now()
	receipt, err := sender.WaitForReceipt(ctx, hash, confirmations, timeout)
	if err != nil {
		return &BroadcastResult{TxHash: hash}, err
	}
	fmt.Fprintf(out, "Receipt: %s\n", DescribeReceipt(receipt))

	result := &BroadcastResult{TxHash: hash, Receipt: receipt}
	if err := CheckReceipt(receipt); err != nil {
		return result, err
	}

	monitor.Business.ConfirmationWaitSeconds.WithLabelValues(info.Name).Observe(time.Since(start).Seconds())
	monitor.Business.TxConfirmedTotal.WithLabelValues(info.Name).Inc()
	fmt.Fprintln(out, "Transaction confirmed ✅")
	return result, nil
}

// DescribeRequest 状态输出用的交易摘要
func DescribeRequest(req *types.TransactionRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "to=%s value=%s ETH (%s wei) nonce=%d chainId=%s gasLimit=%d",
		req.To.Hex(), units.FormatEther(req.Value), req.Value, req.Nonce, req.ChainID, req.GasLimit)
	switch fee := req.Fee.(type) {
	case types.ModernFee:
		fmt.Fprintf(&b, " maxFeePerGas=%s gwei maxPriorityFeePerGas=%s gwei",
			units.FormatGwei(fee.MaxFeePerGas), units.FormatGwei(fee.MaxPriorityFeePerGas))
	case types.LegacyFee:
		fmt.Fprintf(&b, " gasPrice=%s gwei", units.FormatGwei(fee.GasPrice))
	}
	return b.String()
}

// DescribeReceipt 状态输出用的回执摘要
func DescribeReceipt(r *types.Receipt) string {
	return fmt.Sprintf("blockNumber=%d confirmations=%d status=%d gasUsed=%d",
		r.BlockNumber, r.Confirmations, r.Status, r.GasUsed)
}

// FailureReason 错误分类对应的指标标签
func FailureReason(err error) string {
	base, ok := errno.Classify(err)
	if !ok {
		return "internal"
	}
	switch base.Code {
	case errno.ErrConfiguration.Code:
		return "configuration"
	case errno.ErrNetworkQuery.Code:
		return "network"
	case errno.ErrTimeout.Code:
		return "timeout"
	case errno.ErrExecutionReverted.Code:
		return "reverted"
	}
	return "internal"
}

func recordFailure(err *error) {
	if *err == nil {
		return
	}
	monitor.Business.TxFailedTotal.WithLabelValues(FailureReason(*err)).Inc()
	logger.Error("转账流程失败", zap.String("reason", FailureReason(*err)), zap.Error(*err))
}

func etherFloat(wei *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18)).Float64()
	return f
}
