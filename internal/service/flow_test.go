package service

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"evm-transfer/internal/chain"
	"evm-transfer/pkg/errno"
	"evm-transfer/pkg/monitor"
	"evm-transfer/pkg/wallet/types"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func mockDeps(m *mockNetwork, out *bytes.Buffer) Deps {
	return Deps{
		Dial: func(ctx context.Context, rpcURL string) (chain.Network, error) {
			return m, nil
		},
		Out: out,
	}
}

// failDial 用于断言配置错误发生在任何网络调用之前
func failDial(t *testing.T) Dialer {
	return func(ctx context.Context, rpcURL string) (chain.Network, error) {
		t.Fatalf("unexpected dial to %q", rpcURL)
		return nil, nil
	}
}

func onlineConfig() OnlineConfig {
	policy, _ := NewConfirmationPolicy(3, 6, "1")
	return OnlineConfig{
		RPCURL:       "https://rpc.example",
		Key:          KeyMaterial{PrivateKey: "0x" + testKeyHex},
		To:           testRecipient.Hex(),
		Value:        big.NewInt(10_000_000_000_000_000), // 0.01 ether
		Policy:       policy,
		Timeout:      300000 * time.Millisecond,
		PollInterval: time.Millisecond,
	}
}

func TestRunOnlineSuccess(t *testing.T) {
	monitor.InitBusinessMetrics()

	m := new(mockNetwork)
	expectAssembly(m, eip1559Fee(), 21000)
	m.On("SendRawTransaction", mock.Anything, mock.AnythingOfType("*types.SignedTransaction")).Return(testHash, nil)
	m.On("TransactionReceipt", mock.Anything, testHash).Return(nil, chain.ErrReceiptNotFound).Once()
	m.On("TransactionReceipt", mock.Anything, testHash).Return(successReceipt(100), nil)
	m.On("BlockNumber", mock.Anything).Return(uint64(102), nil)
	m.On("Close").Return()

	var out bytes.Buffer
	result, err := RunOnline(context.Background(), onlineConfig(), mockDeps(m, &out))
	require.NoError(t, err)

	assert.Equal(t, uint64(3), result.Receipt.Confirmations)
	assert.Equal(t, uint64(31000), result.Request.GasLimit)
	assert.Equal(t, "eip1559", result.Request.Fee.Kind())

	lines := out.String()
	for _, want := range []string{
		"Connected network: sepolia (chainId=11155111)",
		"Tx skeleton: to=" + testRecipient.Hex() + " value=0.01 ETH",
		"Sent tx hash: " + testHash.Hex(),
		"Receipt: blockNumber=100 confirmations=3 status=1 gasUsed=21000",
		"Transaction confirmed ✅",
	} {
		assert.Contains(t, lines, want)
	}
	assert.True(t, strings.HasSuffix(lines, "Transaction confirmed ✅\n"))

	m.AssertCalled(t, "Close")
	m.AssertNumberOfCalls(t, "TransactionReceipt", 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(monitor.Business.TxConfirmedTotal.WithLabelValues("sepolia")))
	assert.Equal(t, 1.0, testutil.ToFloat64(monitor.Business.TxSignedTotal.WithLabelValues("eip1559")))
}

func TestRunOnlineReverted(t *testing.T) {
	monitor.InitBusinessMetrics()

	m := new(mockNetwork)
	expectAssembly(m, legacyFee(), 21000)
	m.On("SendRawTransaction", mock.Anything, mock.Anything).Return(testHash, nil)
	m.On("TransactionReceipt", mock.Anything, testHash).Return(revertedReceipt(100), nil)
	m.On("BlockNumber", mock.Anything).Return(uint64(105), nil)
	m.On("Close").Return()

	var out bytes.Buffer
	result, err := RunOnline(context.Background(), onlineConfig(), mockDeps(m, &out))
	require.Error(t, err)

	assert.True(t, errors.Is(err, errno.ErrExecutionReverted))
	assert.NotEqual(t, 0, errno.ExitCodeOf(err))
	require.NotNil(t, result.Receipt)
	assert.Equal(t, uint64(0), result.Receipt.Status)
	assert.Contains(t, out.String(), "status=0")
	assert.NotContains(t, out.String(), "Transaction confirmed")
	assert.Equal(t, 1.0, testutil.ToFloat64(monitor.Business.TxFailedTotal.WithLabelValues("reverted")))
}

func TestRunOnlineTimeout(t *testing.T) {
	m := new(mockNetwork)
	expectAssembly(m, eip1559Fee(), 21000)
	m.On("SendRawTransaction", mock.Anything, mock.Anything).Return(testHash, nil)
	m.On("TransactionReceipt", mock.Anything, testHash).Return(nil, chain.ErrReceiptNotFound)
	m.On("Close").Return()

	cfg := onlineConfig()
	cfg.Timeout = 20 * time.Millisecond

	var out bytes.Buffer
	result, err := RunOnline(context.Background(), cfg, mockDeps(m, &out))
	assert.True(t, errors.Is(err, errno.ErrTimeout))
	assert.Equal(t, 4, errno.ExitCodeOf(err))
	assert.Nil(t, result.Receipt)
	assert.Contains(t, out.String(), "Sent tx hash:")
	assert.NotContains(t, out.String(), "Transaction confirmed")
}

func TestRunOnlineHighValueWaitsLonger(t *testing.T) {
	m := new(mockNetwork)
	expectAssembly(m, eip1559Fee(), 21000)
	m.On("SendRawTransaction", mock.Anything, mock.Anything).Return(testHash, nil)
	m.On("TransactionReceipt", mock.Anything, testHash).Return(successReceipt(100), nil)
	m.On("BlockNumber", mock.Anything).Return(uint64(102), nil).Once()
	m.On("BlockNumber", mock.Anything).Return(uint64(105), nil)
	m.On("Close").Return()

	cfg := onlineConfig()
	cfg.Value = big.NewInt(2_000_000_000_000_000_000) // 2 ether

	result, err := RunOnline(context.Background(), cfg, mockDeps(m, new(bytes.Buffer)))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), result.Receipt.Confirmations)
}

func TestRunOnlineConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *OnlineConfig)
		msg    string
	}{
		{"missing rpc url", func(c *OnlineConfig) { c.RPCURL = "" }, "RPC_URL"},
		{"missing key", func(c *OnlineConfig) { c.Key = KeyMaterial{} }, "PRIVATE_KEY"},
		{"bad recipient", func(c *OnlineConfig) { c.To = "0xReceiverAddressHere" }, "recipient"},
		{"negative amount", func(c *OnlineConfig) { c.Value = big.NewInt(-1) }, "non-negative"},
		{"bad key", func(c *OnlineConfig) { c.Key = KeyMaterial{PrivateKey: "0xdead"} }, "PRIVATE_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := onlineConfig()
			tt.mutate(&cfg)

			_, err := RunOnline(context.Background(), cfg, Deps{Dial: failDial(t)})
			require.Error(t, err)
			assert.True(t, errors.Is(err, errno.ErrConfiguration))
			assert.Equal(t, 2, errno.ExitCodeOf(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestRunOnlineAssemblyFailure(t *testing.T) {
	m := new(mockNetwork)
	m.On("GetNetwork", mock.Anything).Return(nil, errno.Wrap(errno.ErrNetworkQuery, errors.New("dial tcp: refused"), "eth_chainId"))
	m.On("Close").Return()

	_, err := RunOnline(context.Background(), onlineConfig(), mockDeps(m, new(bytes.Buffer)))
	assert.True(t, errors.Is(err, errno.ErrNetworkQuery))
	assert.Equal(t, 3, errno.ExitCodeOf(err))
	m.AssertNotCalled(t, "SendRawTransaction", mock.Anything, mock.Anything)
}

func TestRunOffline(t *testing.T) {
	m := new(mockNetwork)
	expectAssembly(m, eip1559Fee(), 21000)
	m.On("Close").Return()

	var out bytes.Buffer
	result, err := RunOffline(context.Background(), OfflineConfig{
		MetaRPCURL: "https://meta.example",
		Key:        KeyMaterial{PrivateKey: testKeyHex},
		To:         testRecipient.Hex(),
		Value:      big.NewInt(5_000_000_000_000_000),
	}, mockDeps(m, &out))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.Signed.RawTx, "0x02"))
	assert.Contains(t, out.String(), "Signed tx (paste to broadcaster): "+result.Signed.RawTx+"\n")
	m.AssertNotCalled(t, "SendRawTransaction", mock.Anything, mock.Anything)
	m.AssertNotCalled(t, "TransactionReceipt", mock.Anything, mock.Anything)
}

func TestRunOfflineRequiresMetaURL(t *testing.T) {
	_, err := RunOffline(context.Background(), OfflineConfig{
		Key:   KeyMaterial{PrivateKey: testKeyHex},
		To:    testRecipient.Hex(),
		Value: big.NewInt(1),
	}, Deps{Dial: failDial(t)})
	assert.True(t, errors.Is(err, errno.ErrConfiguration))
	assert.Contains(t, err.Error(), "RPC_URL_META")
}

func TestRunBroadcastSignedOffline(t *testing.T) {
	signer := newTestSigner(t)
	signed, err := signer.Sign(testRequest(types.ModernFee{MaxFeePerGas: big.NewInt(21 * gwei), MaxPriorityFeePerGas: big.NewInt(1 * gwei)}))
	require.NoError(t, err)

	m := new(mockNetwork)
	m.On("GetNetwork", mock.Anything).Return(sepolia, nil)
	m.On("SendRawTransaction", mock.Anything, signed).Return(testHash, nil)
	m.On("TransactionReceipt", mock.Anything, testHash).Return(successReceipt(10), nil)
	m.On("BlockNumber", mock.Anything).Return(uint64(12), nil)
	m.On("Close").Return()

	var out bytes.Buffer
	result, err := RunBroadcast(context.Background(), BroadcastConfig{
		RPCURL:       "https://rpc.example",
		Policy:       ConfirmationPolicy{Default: 3},
		Timeout:      time.Second,
		PollInterval: time.Millisecond,
	}, signed, mockDeps(m, &out))
	require.NoError(t, err)
	assert.Equal(t, testHash, result.TxHash)
	assert.Contains(t, out.String(), "Transaction confirmed ✅")
}

func TestRunBroadcastRejectsWrongChain(t *testing.T) {
	signer := newTestSigner(t)
	req := testRequest(types.LegacyFee{GasPrice: big.NewInt(gwei)})
	req.ChainID = big.NewInt(1)
	signed, err := signer.Sign(req)
	require.NoError(t, err)

	m := new(mockNetwork)
	m.On("GetNetwork", mock.Anything).Return(sepolia, nil)
	m.On("Close").Return()

	_, err = RunBroadcast(context.Background(), BroadcastConfig{RPCURL: "https://rpc.example"}, signed, mockDeps(m, new(bytes.Buffer)))
	assert.True(t, errors.Is(err, errno.ErrConfiguration))
	m.AssertNotCalled(t, "SendRawTransaction", mock.Anything, mock.Anything)
}

func TestRunBroadcastRejectsGarbage(t *testing.T) {
	_, err := RunBroadcast(context.Background(), BroadcastConfig{RPCURL: "https://rpc.example"},
		&types.SignedTransaction{RawTx: "0xnothex"}, Deps{Dial: failDial(t)})
	assert.True(t, errors.Is(err, errno.ErrConfiguration))
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "timeout", FailureReason(errno.Newf(errno.ErrTimeout, "x")))
	assert.Equal(t, "reverted", FailureReason(&RevertedError{Receipt: &types.Receipt{}}))
	assert.Equal(t, "internal", FailureReason(errors.New("boom")))
}
