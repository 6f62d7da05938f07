package cmd

import (
	"fmt"

	"evm-transfer/internal/service"
	"evm-transfer/internal/service/mq"
	"evm-transfer/pkg/config"
	"evm-transfer/pkg/errno"

	"github.com/spf13/cobra"
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "离线签名交易 (Offline Signing)",
	Long: `使用 RPC_URL_META 节点只读查询 nonce、费用和 chainId，在本机签名后输出 Raw Tx。
结果可保存为 JSON 文件，或发布到 handoff 消息队列由 broadcast --follow 广播。`,
	Example: `  PRIVATE_KEY=0x... RPC_URL_META=https://rpc... transfer-cli sign --to 0xReceiver --amount 0.005 -o signed.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		to, value, err := transferFromFlags(cmd)
		if err != nil {
			return err
		}
		outputFile, _ := cmd.Flags().GetString("output")
		publish, _ := cmd.Flags().GetBool("publish")

		// 先确认队列配置可用，避免签名后才发现无法交付
		var handoff *service.Handoff
		if publish {
			producer, err := mq.NewProducer(config.Global.Handoff)
			if err != nil {
				return errno.Wrap(errno.ErrConfiguration, err, "handoff")
			}
			if producer == nil {
				return errno.Newf(errno.ErrConfiguration, "--publish requires handoff.mq_type")
			}
			handoff = service.NewHandoff(producer, config.Global.Handoff.Topic)
			defer handoff.Close()
		}

		result, err := service.RunOffline(cmd.Context(), service.OfflineConfig{
			MetaRPCURL: config.Global.Chain.RpcUrlMeta,
			Key:        keyMaterial(),
			To:         to,
			Value:      value,
		}, deps(cmd))
		if err != nil {
			return err
		}

		if outputFile != "" {
			if err := service.WriteSignedFile(outputFile, result.Signed); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "已保存到: %s\n", outputFile)
		}

		if handoff != nil {
			if err := handoff.Publish(cmd.Context(), result.From, result.Signed); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "已发布到: %s/%s\n", config.Global.Handoff.MQType, config.Global.Handoff.Topic)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(signCmd)
	addTransferFlags(signCmd)
	signCmd.Flags().StringP("output", "o", "", "签名结果 JSON 文件路径 (例如 signed.json)")
	signCmd.Flags().Bool("publish", false, "发布到 handoff 消息队列 (handoff.mq_type)")
}
