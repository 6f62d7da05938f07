package cmd

import (
	"math/big"

	"evm-transfer/pkg/errno"
	"evm-transfer/pkg/wallet/units"

	"github.com/spf13/cobra"
)

func addTransferFlags(cmd *cobra.Command) {
	cmd.Flags().String("to", "", "收款地址")
	cmd.Flags().String("amount", "", "转账金额，单位 ether (例如 0.01)")
	cmd.Flags().String("amount-wei", "", "转账金额，单位 wei (与 --amount 二选一)")
}

// transferFromFlags 解析收款地址和金额
func transferFromFlags(cmd *cobra.Command) (string, *big.Int, error) {
	to, _ := cmd.Flags().GetString("to")
	amount, _ := cmd.Flags().GetString("amount")
	amountWei, _ := cmd.Flags().GetString("amount-wei")

	if to == "" {
		return "", nil, errno.Newf(errno.ErrConfiguration, "--to is required")
	}

	switch {
	case amount != "" && amountWei != "":
		return "", nil, errno.Newf(errno.ErrConfiguration, "--amount and --amount-wei are mutually exclusive")
	case amount != "":
		value, err := units.ParseEther(amount)
		if err != nil {
			return "", nil, errno.Wrap(errno.ErrConfiguration, err, "--amount")
		}
		return to, value, nil
	case amountWei != "":
		value, err := units.ParseUnits(amountWei, 0)
		if err != nil {
			return "", nil, errno.Wrap(errno.ErrConfiguration, err, "--amount-wei")
		}
		return to, value, nil
	}
	return "", nil, errno.Newf(errno.ErrConfiguration, "--amount or --amount-wei is required")
}
