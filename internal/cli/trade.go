package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"tradedesk/internal/app"
)

var tradeAllowHold bool

var tradeCmd = &cobra.Command{
	Use:   "trade <ticker or company>",
	Short: "Predict a ticker, then execute its signal and record the result",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Trade(cmd.Context(), app.TradeOptions{
			Query:     strings.Join(args, " "),
			AllowHold: tradeAllowHold,
		})
	},
}

func init() {
	tradeCmd.Flags().BoolVar(&tradeAllowHold, "allow-hold", false, "Send HOLD signals to the backend as well")
}
