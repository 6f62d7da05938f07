package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"evm-transfer/internal/service"
	"evm-transfer/pkg/config"
	"evm-transfer/pkg/errno"
	"evm-transfer/pkg/logger"
	"evm-transfer/pkg/monitor"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
)

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "transfer-cli",
	Short: "EVM 原生币转账工具",
	Long: `在任意 EVM 链上转账原生币 (ETH/BNB/MATIC...)。
在线模式一步完成组装、签名、广播和确认等待；
离线模式在隔离机器上签名，再由 broadcast 命令广播。`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(cfgFile, envFile); err != nil {
			return errno.Wrap(errno.ErrConfiguration, err, "load config")
		}
		logger.Init(config.Global.App.Env)
		return nil
	},
}

// Execute 将所有子命令添加到根命令并设置标志
// 进程退出码由错误分类决定
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	pushMetrics()
	logger.Sync()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(errno.ExitCodeOf(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径 (默认 ./config.yaml 或 ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", ".env 文件路径 (默认 ./.env)")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errno.Wrap(errno.ErrConfiguration, err, cmd.CommandPath())
	})
}

// deps 状态输出写到命令的 stdout
func deps(cmd *cobra.Command) service.Deps {
	d := service.DefaultDeps()
	d.Out = cmd.OutOrStdout()
	return d
}

func keyMaterial() service.KeyMaterial {
	k := service.KeyMaterialFromConfig(config.Global.Wallet)
	k.Prompt = service.TerminalPrompt
	return k
}

func confirmationPolicy() (service.ConfirmationPolicy, error) {
	c := config.Global.Chain
	return service.NewConfirmationPolicy(c.Confirmations, c.HighValueConfirmations, c.HighValueThreshold)
}

func timeoutOrDefault(flag time.Duration) time.Duration {
	if flag > 0 {
		return flag
	}
	return config.Global.Chain.Timeout
}

func pushMetrics() {
	m := config.Global.Metrics
	if m.Pushgateway == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := monitor.Push(ctx, m.Pushgateway, m.Job); err != nil {
		logger.Warn("推送指标失败", zap.Error(err))
	}
}
