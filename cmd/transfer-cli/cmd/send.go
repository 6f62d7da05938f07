package cmd

import (
	"evm-transfer/internal/service"
	"evm-transfer/pkg/config"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "在线转账 (组装 + 签名 + 广播 + 等待确认)",
	Long: `使用 RPC_URL 节点查询 nonce、费用和 chainId，本地签名后广播，
并等待交易达到要求的确认数。大额转账默认等待更多确认。`,
	Example: `  PRIVATE_KEY=0x... RPC_URL=https://rpc... transfer-cli send --to 0xReceiver --amount 0.01`,
	RunE: func(cmd *cobra.Command, args []string) error {
		to, value, err := transferFromFlags(cmd)
		if err != nil {
			return err
		}
		policy, err := confirmationPolicy()
		if err != nil {
			return err
		}
		confirmations, _ := cmd.Flags().GetUint64("confirmations")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		_, err = service.RunOnline(cmd.Context(), service.OnlineConfig{
			RPCURL:        config.Global.Chain.RpcUrl,
			Key:           keyMaterial(),
			To:            to,
			Value:         value,
			Confirmations: confirmations,
			Policy:        policy,
			Timeout:       timeoutOrDefault(timeout),
			PollInterval:  config.Global.Chain.PollInterval,
		}, deps(cmd))
		return err
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	addTransferFlags(sendCmd)
	sendCmd.Flags().Uint64("confirmations", 0, "等待的确认数 (0 表示按金额使用配置值)")
	sendCmd.Flags().Duration("timeout", 0, "等待确认的超时 (0 表示使用配置值，默认 5m)")
}
