package bip32

import (
	"encoding/hex"
	"errors"
	"testing"

	"evm-transfer/pkg/bip39"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestNewMasterKeyFromSeed(t *testing.T) {
	mnemonicService := bip39.NewMnemonicService()
	mnemonic, err := mnemonicService.GenerateMnemonic(128)
	require.NoError(t, err)
	seed, err := mnemonicService.MnemonicToSeed(mnemonic, "")
	require.NoError(t, err)

	wallet, err := NewMasterKeyFromSeed(seed, &chaincfg.MainNetParams)
	require.NoError(t, err)
	require.NotNil(t, wallet.MasterKey())
	assert.True(t, wallet.MasterKey().IsPrivate())

	_, err = NewMasterKeyFromSeed([]byte{1, 2, 3}, nil)
	assert.ErrorIs(t, err, ErrInvalidSeed)
}

func TestDeriveEVMAddress(t *testing.T) {
	// 常用钱包对该助记词默认路径给出的地址
	seed, err := bip39.NewMnemonicService().MnemonicToSeed(testMnemonic, "")
	require.NoError(t, err)

	wallet, err := NewMasterKeyFromSeed(seed, nil)
	require.NoError(t, err)

	child, err := wallet.DerivePath(DefaultEVMPath)
	require.NoError(t, err)

	addr, err := child.Address()
	require.NoError(t, err)
	assert.Equal(t, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", addr.Hex())

	key, err := child.PrivateKey()
	require.NoError(t, err)
	assert.Equal(t, addr, crypto.PubkeyToAddress(key.PublicKey))
}

func TestDerivePathHardenedSuffixes(t *testing.T) {
	seed, _ := hex.DecodeString("fffcf9f6da3247d8a846f4b6113e6173")
	wallet, err := NewMasterKeyFromSeed(seed, &chaincfg.MainNetParams)
	require.NoError(t, err)

	a, err := wallet.DerivePath("m/44'/60'/0'/0/1")
	require.NoError(t, err)
	b, err := wallet.DerivePath("m/44h/60h/0h/0/1")
	require.NoError(t, err)
	assert.Equal(t, a.String(), b.String())

	pub, err := a.Neuter()
	require.NoError(t, err)
	assert.False(t, pub.IsPrivate())
	_, err = pub.PrivateKey()
	assert.ErrorIs(t, err, ErrNotPrivate)

	// 扩展公钥同样能算出地址
	addrPriv, err := a.Address()
	require.NoError(t, err)
	addrPub, err := pub.Address()
	require.NoError(t, err)
	assert.Equal(t, addrPriv, addrPub)
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		path    string
		want    []uint32
		wantErr bool
	}{
		{"m", nil, false},
		{"", nil, false},
		{"m/0", []uint32{0}, false},
		{"m/44'/60'", []uint32{44 + hdkeychain.HardenedKeyStart, 60 + hdkeychain.HardenedKeyStart}, false},
		{"44'/60'", nil, true},
		{"m/x", nil, true},
		{"m/1//2", nil, true},
		{"m/2147483648", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := ParsePath(tt.path)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidPath))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
