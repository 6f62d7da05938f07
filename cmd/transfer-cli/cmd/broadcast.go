package cmd

import (
	"context"

	"evm-transfer/internal/service"
	"evm-transfer/internal/service/mq"
	"evm-transfer/pkg/config"
	"evm-transfer/pkg/errno"
	"evm-transfer/pkg/logger"
	"evm-transfer/pkg/wallet/types"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "广播已签名的交易 (Online)",
	Long: `读取已签名的交易 (--input 文件或 --raw hex)，广播到 RPC_URL 节点并等待确认。
--follow 模式持续消费 handoff 消息队列中的签名交易。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		inputFile, _ := cmd.Flags().GetString("input")
		raw, _ := cmd.Flags().GetString("raw")
		follow, _ := cmd.Flags().GetBool("follow")
		confirmations, _ := cmd.Flags().GetUint64("confirmations")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		policy, err := confirmationPolicy()
		if err != nil {
			return err
		}
		cfg := service.BroadcastConfig{
			RPCURL:        config.Global.Chain.RpcUrl,
			Confirmations: confirmations,
			Policy:        policy,
			Timeout:       timeoutOrDefault(timeout),
			PollInterval:  config.Global.Chain.PollInterval,
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		sources := 0
		for _, set := range []bool{inputFile != "", raw != "", follow} {
			if set {
				sources++
			}
		}
		if sources != 1 {
			return errno.Newf(errno.ErrConfiguration, "exactly one of --input, --raw or --follow is required")
		}

		if follow {
			return followHandoff(cmd, cfg)
		}

		var signed *types.SignedTransaction
		if raw != "" {
			signed, err = service.ParseSignedPayload([]byte(raw))
		} else {
			signed, err = service.ReadSignedFile(inputFile)
		}
		if err != nil {
			return err
		}

		_, err = service.RunBroadcast(cmd.Context(), cfg, signed, deps(cmd))
		return err
	},
}

func followHandoff(cmd *cobra.Command, cfg service.BroadcastConfig) error {
	consumer, err := mq.NewConsumer(config.Global.Handoff)
	if err != nil {
		return errno.Wrap(errno.ErrConfiguration, err, "handoff")
	}
	defer consumer.Close()

	return service.Follow(cmd.Context(), consumer, config.Global.Handoff.Topic, func(ctx context.Context, signed *types.SignedTransaction) error {
		_, err := service.RunBroadcast(ctx, cfg, signed, deps(cmd))
		if err != nil {
			logger.Error("广播失败", zap.String("tx_hash", signed.TxHash), zap.Error(err))
		}
		return err
	})
}

func init() {
	rootCmd.AddCommand(broadcastCmd)
	broadcastCmd.Flags().StringP("input", "i", "", "已签名的交易文件 (signed.json)")
	broadcastCmd.Flags().String("raw", "", "已签名的 Raw Tx hex")
	broadcastCmd.Flags().Bool("follow", false, "持续消费 handoff 消息队列")
	broadcastCmd.Flags().Uint64("confirmations", 0, "等待的确认数 (0 表示按金额使用配置值)")
	broadcastCmd.Flags().Duration("timeout", 0, "等待确认的超时 (0 表示使用配置值，默认 5m)")
}
