package monitor

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// BusinessMetrics 定义转账流程的业务监控指标
type BusinessMetrics struct {
	TxSignedTotal           *prometheus.CounterVec
	TxSubmittedTotal        *prometheus.CounterVec
	TxConfirmedTotal        *prometheus.CounterVec
	TxFailedTotal           *prometheus.CounterVec
	TransferAmountTotal     *prometheus.CounterVec
	ConfirmationWaitSeconds *prometheus.HistogramVec
}

// Registry 进程内独立的指标注册表
// CLI 是短生命周期进程，不暴露 /metrics，只在结束时推送到 Pushgateway
var Registry *prometheus.Registry

// Global Metrics Instance
var Business *BusinessMetrics

func init() {
	InitBusinessMetrics()
}

// InitBusinessMetrics 初始化业务指标 (重复调用会得到一个新的空注册表)
func InitBusinessMetrics() {
	Registry = prometheus.NewRegistry()
	factory := promauto.With(Registry)

	Business = &BusinessMetrics{
		TxSignedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "evm_transfer_signed_total",
			Help: "The total number of signed transactions",
		}, []string{"fee_model"}),
		TxSubmittedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "evm_transfer_submitted_total",
			Help: "The total number of broadcast transactions",
		}, []string{"chain"}),
		TxConfirmedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "evm_transfer_confirmed_total",
			Help: "Total number of transactions that reached the confirmation target",
		}, []string{"chain"}),
		TxFailedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "evm_transfer_failed_total",
			Help: "Total number of failed transfers by error class",
		}, []string{"reason"}),
		TransferAmountTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "evm_transfer_amount_ether_total",
			Help: "The total amount transferred, in ether",
		}, []string{"chain"}),
		ConfirmationWaitSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evm_transfer_confirmation_wait_seconds",
			Help:    "Time between broadcast and reaching the confirmation target",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600}, // 关键耗时桶
		}, []string{"chain"}),
	}
}

// Push 将当前注册表推送到 Pushgateway (batch job 模式)
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("推送指标到 %s 失败: %w", url, err)
	}
	return nil
}
