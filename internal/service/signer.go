package service

import (
	"crypto/ecdsa"
	"fmt"

	"evm-transfer/pkg/wallet/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types" // Alias to avoid conflict
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer 持有仅存在于内存中的私钥
// 签名是纯本地计算，不需要网络，所以可以在隔离机器上运行
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewSigner(key *ecdsa.PrivateKey) (*Signer, error) {
	if key == nil {
		return nil, fmt.Errorf("私钥为空")
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address 返回发送方地址
func (s *Signer) Address() common.Address {
	return s.address
}

// String 避免私钥被 %v 打印出来
func (s *Signer) String() string {
	return "Signer(" + s.address.Hex() + ")"
}

// Sign 对请求签名并序列化 (EIP-2718)
// 同一 (key, request) 总是得到相同输出 (RFC 6979)
func (s *Signer) Sign(req *types.TransactionRequest) (*types.SignedTransaction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	to := req.To
	var txData ethtypes.TxData
	switch fee := req.Fee.(type) {
	case types.ModernFee:
		txData = &ethtypes.DynamicFeeTx{
			ChainID:   req.ChainID,
			Nonce:     req.Nonce,
			GasTipCap: fee.MaxPriorityFeePerGas,
			GasFeeCap: fee.MaxFeePerGas,
			Gas:       req.GasLimit,
			To:        &to,
			Value:     req.Value,
		}
	case types.LegacyFee:
		txData = &ethtypes.LegacyTx{
			Nonce:    req.Nonce,
			GasPrice: fee.GasPrice,
			Gas:      req.GasLimit,
			To:       &to,
			Value:    req.Value,
		}
	}

	signer := ethtypes.LatestSignerForChainID(req.ChainID)
	signedTx, err := ethtypes.SignNewTx(s.key, signer, txData)
	if err != nil {
		return nil, fmt.Errorf("签名失败: %w", err)
	}

	rawTxBytes, err := signedTx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("序列化交易失败: %w", err)
	}

	return &types.SignedTransaction{
		TxHash: signedTx.Hash().Hex(),
		RawTx:  hexutil.Encode(rawTxBytes),
	}, nil
}
