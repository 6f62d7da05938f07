package service

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"evm-transfer/pkg/bip32"
	"evm-transfer/pkg/bip39"
	"evm-transfer/pkg/config"
	"evm-transfer/pkg/errno"
	"evm-transfer/pkg/keystore"
	"evm-transfer/pkg/logger"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// KeyMaterial 私钥来源，按 PrivateKey > KeystorePath > Mnemonic 的优先级取第一个
type KeyMaterial struct {
	PrivateKey     string
	KeystorePath   string
	Password       string
	Mnemonic       string
	DerivationPath string

	// Prompt 在 keystore 没有配置密码时调用，nil 表示不允许交互
	Prompt func(label string) (string, error)
}

// KeyMaterialFromConfig 从 wallet 配置段构造 KeyMaterial
func KeyMaterialFromConfig(c config.WalletConfig) KeyMaterial {
	return KeyMaterial{
		PrivateKey:     c.PrivateKey,
		KeystorePath:   c.KeystorePath,
		Password:       c.Password,
		Mnemonic:       c.Mnemonic,
		DerivationPath: c.DerivationPath,
	}
}

// IsEmpty 没有任何私钥来源
func (k KeyMaterial) IsEmpty() bool {
	return strings.TrimSpace(k.PrivateKey) == "" &&
		strings.TrimSpace(k.KeystorePath) == "" &&
		strings.TrimSpace(k.Mnemonic) == ""
}

// String 不输出任何敏感字段
func (k KeyMaterial) String() string {
	switch {
	case strings.TrimSpace(k.PrivateKey) != "":
		return "KeyMaterial(private_key)"
	case strings.TrimSpace(k.KeystorePath) != "":
		return "KeyMaterial(keystore:" + k.KeystorePath + ")"
	case strings.TrimSpace(k.Mnemonic) != "":
		return "KeyMaterial(mnemonic)"
	}
	return "KeyMaterial(empty)"
}

// Load 解析出签名私钥，所有失败都归为 ConfigurationError
func (k KeyMaterial) Load() (*ecdsa.PrivateKey, error) {
	switch {
	case strings.TrimSpace(k.PrivateKey) != "":
		return ParsePrivateKeyHex(k.PrivateKey)
	case strings.TrimSpace(k.KeystorePath) != "":
		return k.loadKeystore()
	case strings.TrimSpace(k.Mnemonic) != "":
		return DeriveFromMnemonic(k.Mnemonic, "", k.DerivationPath)
	}
	return nil, errno.Newf(errno.ErrConfiguration, "PRIVATE_KEY is not set (no keystore or mnemonic configured either)")
}

// ParsePrivateKeyHex 解析 64 位 hex 私钥，0x 前缀可选
func ParsePrivateKeyHex(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimSpace(hexKey)
	hexKey = strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		// 不回显输入内容
		return nil, errno.Newf(errno.ErrConfiguration, "PRIVATE_KEY is not a valid secp256k1 hex key")
	}
	return key, nil
}

// DeriveFromMnemonic 通过 BIP-39 + BIP-32 派生私钥，path 为空时使用 m/44'/60'/0'/0/0
func DeriveFromMnemonic(mnemonic, passphrase, path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		path = bip32.DefaultEVMPath
	}
	seed, err := bip39.NewMnemonicService().MnemonicToSeed(mnemonic, passphrase)
	if err != nil {
		return nil, errno.Wrap(errno.ErrConfiguration, err, "mnemonic")
	}
	wallet, err := bip32.NewMasterKeyFromSeed(seed, nil)
	if err != nil {
		return nil, errno.Wrap(errno.ErrConfiguration, err, "master key")
	}
	child, err := wallet.DerivePath(path)
	if err != nil {
		return nil, errno.Wrap(errno.ErrConfiguration, err, "derivation path")
	}
	key, err := child.PrivateKey()
	if err != nil {
		return nil, errno.Wrap(errno.ErrConfiguration, err, "derive key")
	}
	return key, nil
}

func (k KeyMaterial) loadKeystore() (*ecdsa.PrivateKey, error) {
	keyJSON, err := keystore.LoadFromFile(k.KeystorePath)
	if err != nil {
		return nil, errno.Wrap(errno.ErrConfiguration, err, "load keystore")
	}

	password := k.Password
	if password == "" {
		if k.Prompt == nil {
			return nil, errno.Newf(errno.ErrConfiguration, "keystore %s needs a password (set WALLET_PASSWORD)", k.KeystorePath)
		}
		password, err = k.Prompt(fmt.Sprintf("Password for %s: ", k.KeystorePath))
		if err != nil {
			return nil, errno.Wrap(errno.ErrConfiguration, err, "read password")
		}
	}

	secret, err := keystore.Decrypt(keyJSON, password)
	if err != nil {
		return nil, errno.Wrap(errno.ErrConfiguration, err, "decrypt keystore")
	}

	logger.Debug("keystore 解密成功", zap.String("path", k.KeystorePath), zap.String("kind", string(keyJSON.Kind)))

	switch keyJSON.Kind {
	case keystore.KindPrivateKey:
		return ParsePrivateKeyHex(secret)
	case keystore.KindMnemonic:
		return DeriveFromMnemonic(secret, "", k.DerivationPath)
	}
	return nil, errno.Newf(errno.ErrConfiguration, "unsupported keystore kind %q", keyJSON.Kind)
}

// TerminalPrompt 从终端读取密码 (不回显)，提示写到 stderr 以免污染 stdout 输出
func TerminalPrompt(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, label)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
