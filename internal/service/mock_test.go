package service

import (
	"context"
	"math/big"

	"evm-transfer/internal/chain"
	"evm-transfer/pkg/wallet/types"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"
)

// mockNetwork is a mock implementation of chain.Network
type mockNetwork struct {
	mock.Mock
}

func (m *mockNetwork) GetTransactionCount(ctx context.Context, addr common.Address, tag chain.BlockTag) (uint64, error) {
	args := m.Called(ctx, addr, tag)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockNetwork) GetFeeData(ctx context.Context) (*types.FeeEstimate, error) {
	args := m.Called(ctx)
	if fee := args.Get(0); fee != nil {
		return fee.(*types.FeeEstimate), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockNetwork) GetNetwork(ctx context.Context) (*chain.NetworkInfo, error) {
	args := m.Called(ctx)
	if info := args.Get(0); info != nil {
		return info.(*chain.NetworkInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockNetwork) EstimateGas(ctx context.Context, req chain.CallRequest) (uint64, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockNetwork) SendRawTransaction(ctx context.Context, signed *types.SignedTransaction) (common.Hash, error) {
	args := m.Called(ctx, signed)
	return args.Get(0).(common.Hash), args.Error(1)
}

func (m *mockNetwork) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	args := m.Called(ctx, hash)
	if r := args.Get(0); r != nil {
		return r.(*ethtypes.Receipt), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockNetwork) BlockNumber(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockNetwork) Close() {
	m.Called()
}

const (
	gwei = 1_000_000_000
	// 测试用私钥，不要在任何真实网络上使用
	testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
)

var (
	testRecipient = common.HexToAddress("0x8ba1f109551bD432803012645Ac136ddd64DBA72")
	sepolia       = &chain.NetworkInfo{ChainID: big.NewInt(11155111), Name: "sepolia"}
)

func eip1559Fee() *types.FeeEstimate {
	return &types.FeeEstimate{
		BaseFee:              big.NewInt(10 * gwei),
		MaxFeePerGas:         big.NewInt(21 * gwei),
		MaxPriorityFeePerGas: big.NewInt(1 * gwei),
		GasPrice:             big.NewInt(12 * gwei),
	}
}

func legacyFee() *types.FeeEstimate {
	return &types.FeeEstimate{GasPrice: big.NewInt(5 * gwei)}
}

// expectAssembly 设置组装阶段的只读查询
func expectAssembly(m *mockNetwork, fee *types.FeeEstimate, estimate uint64) {
	m.On("GetTransactionCount", mock.Anything, mock.Anything, chain.BlockTagLatest).Return(uint64(5), nil)
	m.On("GetFeeData", mock.Anything).Return(fee, nil)
	m.On("GetNetwork", mock.Anything).Return(sepolia, nil)
	m.On("EstimateGas", mock.Anything, mock.Anything).Return(estimate, nil)
}

func successReceipt(block uint64) *ethtypes.Receipt {
	return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, BlockNumber: new(big.Int).SetUint64(block), GasUsed: 21000}
}

func revertedReceipt(block uint64) *ethtypes.Receipt {
	return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusFailed, BlockNumber: new(big.Int).SetUint64(block), GasUsed: 30000}
}
