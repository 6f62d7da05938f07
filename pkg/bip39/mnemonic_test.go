package bip39

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func TestGenerateMnemonic(t *testing.T) {
	s := NewMnemonicService()

	for _, tc := range []struct {
		bitSize int
		words   int
	}{
		{128, 12},
		{256, 24},
	} {
		mnemonic, err := s.GenerateMnemonic(tc.bitSize)
		if err != nil {
			t.Fatalf("生成助记词失败: %v", err)
		}
		if got := len(strings.Fields(mnemonic)); got != tc.words {
			t.Errorf("bitSize %d: 期望 %d 个单词, 实际 %d", tc.bitSize, tc.words, got)
		}
		if !s.ValidateMnemonic(mnemonic) {
			t.Errorf("生成的助记词未通过校验: %s", mnemonic)
		}
	}

	if _, err := s.GenerateMnemonic(100); err == nil {
		t.Error("非法熵位数应当报错")
	}
}

func TestMnemonicToSeed(t *testing.T) {
	s := NewMnemonicService()

	// BIP-39 官方测试向量 (passphrase "TREZOR")
	mnemonic := "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	want := "c55257c360c07c72029aebc1b53c05ed0362ada38ead3e3e9efa3708e53495531f09a6987599d18264c1e1c92f2cf141630c7a3c4ab7c81b2f001698e7463b04"

	seed, err := s.MnemonicToSeed(mnemonic, "TREZOR")
	if err != nil {
		t.Fatalf("MnemonicToSeed 失败: %v", err)
	}
	if got := hex.EncodeToString(seed); got != want {
		t.Errorf("种子不匹配\n got: %s\nwant: %s", got, want)
	}

	// 多余空白不影响结果
	seed2, err := s.MnemonicToSeed("  "+strings.ReplaceAll(mnemonic, " ", "\n")+" ", "TREZOR")
	if err != nil {
		t.Fatalf("MnemonicToSeed 失败: %v", err)
	}
	if hex.EncodeToString(seed2) != want {
		t.Error("规范化后的种子应当一致")
	}
}

func TestMnemonicToSeedRejectsBadChecksum(t *testing.T) {
	s := NewMnemonicService()
	_, err := s.MnemonicToSeed("abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon", "")
	if !errors.Is(err, ErrInvalidMnemonic) {
		t.Errorf("期望 ErrInvalidMnemonic, 实际 %v", err)
	}
}
