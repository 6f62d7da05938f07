package cmd

import (
	"fmt"
	"os"
	"strings"

	"evm-transfer/internal/service"
	"evm-transfer/pkg/bip39"
	"evm-transfer/pkg/config"
	"evm-transfer/pkg/errno"
	"evm-transfer/pkg/keystore"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var keystoreCmd = &cobra.Command{
	Use:   "keystore",
	Short: "管理加密的私钥文件",
}

var keystoreNewCmd = &cobra.Command{
	Use:   "new",
	Short: "把私钥或助记词加密保存为 Keystore 文件",
	Long: `依次使用 PRIVATE_KEY、MNEMONIC 作为要加密的内容；都没有时交互输入私钥。
--generate 生成新的 12 词助记词并加密保存。密码来自 WALLET_PASSWORD 或交互输入。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outputFile, _ := cmd.Flags().GetString("output")
		generate, _ := cmd.Flags().GetBool("generate")

		if _, err := os.Stat(outputFile); err == nil {
			return errno.Newf(errno.ErrConfiguration, "%s already exists", outputFile)
		}

		kind, secret, err := keystoreSecret(cmd, generate)
		if err != nil {
			return err
		}

		// 先确认能派生出地址，避免加密一个无效的 secret
		k := service.KeyMaterial{DerivationPath: config.Global.Wallet.DerivationPath}
		if kind == keystore.KindPrivateKey {
			k.PrivateKey = secret
		} else {
			k.Mnemonic = secret
		}
		key, err := k.Load()
		if err != nil {
			return err
		}

		password, err := newPassword()
		if err != nil {
			return err
		}

		keyJSON, err := keystore.Encrypt(kind, secret, password)
		if err != nil {
			return fmt.Errorf("加密失败: %w", err)
		}
		keyJSON.Address = crypto.PubkeyToAddress(key.PublicKey).Hex()
		if err := keyJSON.SaveToFile(outputFile); err != nil {
			return fmt.Errorf("保存 Keystore 失败: %w", err)
		}

		out := cmd.OutOrStdout()
		if generate {
			fmt.Fprintln(out, "---------------------------------------------------")
			fmt.Fprintf(out, "助记词 (Mnemonic), 请离线抄写保存: \n%s\n", secret)
			fmt.Fprintln(out, "---------------------------------------------------")
		}
		fmt.Fprintf(out, "Address: %s\n", keyJSON.Address)
		fmt.Fprintf(out, "Keystore 已保存到: %s\n", outputFile)
		return nil
	},
}

var keystoreAddressCmd = &cobra.Command{
	Use:   "address",
	Short: "显示当前配置的私钥对应的发送方地址",
	RunE: func(cmd *cobra.Command, args []string) error {
		k := keyMaterial()
		if path, _ := cmd.Flags().GetString("keystore"); path != "" {
			k = service.KeyMaterial{
				KeystorePath:   path,
				Password:       config.Global.Wallet.Password,
				DerivationPath: config.Global.Wallet.DerivationPath,
				Prompt:         service.TerminalPrompt,
			}
		}
		key, err := k.Load()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), crypto.PubkeyToAddress(key.PublicKey).Hex())
		return nil
	},
}

func keystoreSecret(cmd *cobra.Command, generate bool) (keystore.SecretKind, string, error) {
	w := config.Global.Wallet
	switch {
	case generate:
		mnemonic, err := bip39.NewMnemonicService().GenerateMnemonic(128)
		if err != nil {
			return "", "", err
		}
		return keystore.KindMnemonic, mnemonic, nil
	case w.PrivateKey != "":
		return keystore.KindPrivateKey, strings.TrimPrefix(strings.TrimSpace(w.PrivateKey), "0x"), nil
	case w.Mnemonic != "":
		return keystore.KindMnemonic, strings.Join(strings.Fields(w.Mnemonic), " "), nil
	}

	secret, err := service.TerminalPrompt("Private key (hex): ")
	if err != nil {
		return "", "", errno.Newf(errno.ErrConfiguration, "PRIVATE_KEY is not set and no terminal to prompt: %v", err)
	}
	return keystore.KindPrivateKey, strings.TrimPrefix(strings.TrimSpace(secret), "0x"), nil
}

func newPassword() (string, error) {
	if pw := config.Global.Wallet.Password; pw != "" {
		return pw, nil
	}
	pw, err := service.TerminalPrompt("New keystore password: ")
	if err != nil {
		return "", errno.Wrap(errno.ErrConfiguration, err, "read password")
	}
	confirm, err := service.TerminalPrompt("Repeat password: ")
	if err != nil {
		return "", errno.Wrap(errno.ErrConfiguration, err, "read password")
	}
	if pw != confirm {
		return "", errno.Newf(errno.ErrConfiguration, "passwords do not match")
	}
	if pw == "" {
		return "", errno.Newf(errno.ErrConfiguration, "password must not be empty")
	}
	return pw, nil
}

func init() {
	rootCmd.AddCommand(keystoreCmd)
	keystoreCmd.AddCommand(keystoreNewCmd, keystoreAddressCmd)

	keystoreNewCmd.Flags().StringP("output", "o", "wallet.json", "Keystore 文件路径")
	keystoreNewCmd.Flags().Bool("generate", false, "生成新的助记词")
	keystoreAddressCmd.Flags().StringP("keystore", "k", "", "Keystore 文件路径 (默认使用配置)")
}
