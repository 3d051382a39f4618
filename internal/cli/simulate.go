package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateToken  string
	simulateSupply string
	simulateDelta  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次供应量变化并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateToken == "" {
			return errors.New("--token 不能为空")
		}
		supply, err := decimal.NewFromString(simulateSupply)
		if err != nil {
			return errors.New("--supply 必须是数字")
		}
		if supply.IsNegative() {
			return errors.New("--supply 不能为负")
		}
		delta, err := decimal.NewFromString(simulateDelta)
		if err != nil {
			return errors.New("--delta 必须是数字")
		}
		if delta.IsZero() {
			return errors.New("--delta 不能为 0")
		}

		return getApp().SimulateAlert(cmd.Context(), simulateToken, supply, delta)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateToken, "token", "pDAI", "代币符号")
	simulateCmd.Flags().StringVar(&simulateSupply, "supply", "0", "当前总供应量（带小数）")
	simulateCmd.Flags().StringVar(&simulateDelta, "delta", "0", "观测窗口内的变化量，可为负")
}
