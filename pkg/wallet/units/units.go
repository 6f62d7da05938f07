package units

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// EtherDecimals 原生币精度 (1 ether = 10^18 wei)
const EtherDecimals = 18

// ParseEther 将 "0.01" 这类十进制 ether 字符串转换为 Wei
// 超出 18 位小数的部分无法表示，直接报错而不是截断
func ParseEther(amount string) (*big.Int, error) {
	return ParseUnits(amount, EtherDecimals)
}

// ParseUnits 按给定精度将十进制字符串转换为最小单位整数
func ParseUnits(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("无效的金额 %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("金额不能为负数: %s", amount)
	}

	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("金额 %s 超出 %d 位小数精度", amount, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatEther 将 Wei 格式化为 ether 字符串 (去掉末尾 0)
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -EtherDecimals).String()
}

// FormatGwei 用于日志中展示 gas 价格
func FormatGwei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -9).String()
}
