package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateUSD  float64
	simulateEUR  float64
	simulatePeer float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-notify",
	Short: "模拟一次汇率更新并触发通知",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateUSD <= 0 || simulateEUR <= 0 {
			return errors.New("--usd 与 --eur 必须大于 0")
		}

		usd := decimal.NewFromFloat(simulateUSD)
		eur := decimal.NewFromFloat(simulateEUR)
		peer := decimal.NewFromFloat(simulatePeer)
		return getApp().SimulateNotify(cmd.Context(), usd, eur, peer)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateUSD, "usd", 0, "官方 Bs/USD")
	simulateCmd.Flags().Float64Var(&simulateEUR, "eur", 0, "官方 Bs/EUR")
	simulateCmd.Flags().Float64Var(&simulatePeer, "peer", 0, "平行市场 Bs/USD")
}
