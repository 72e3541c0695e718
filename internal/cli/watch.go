package cli

import (
	"github.com/spf13/cobra"

	"tradedesk/internal/app"
)

var (
	watchLimit       int
	watchInteractive bool
	watchAllowHold   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the transaction ledger and redraw it on every refresh",
	Long: `Polls the transaction ledger and redraws it on every refresh.
With --interactive, lines typed on stdin predict tickers and trade the shown
signal; the ledger refreshes right after every executed trade.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		a.In = cmd.InOrStdin()
		return a.Watch(cmd.Context(), app.WatchOptions{
			Limit:       watchLimit,
			Interactive: watchInteractive,
			AllowHold:   watchAllowHold,
		})
	},
}

func init() {
	watchCmd.Flags().IntVar(&watchLimit, "limit", 20, "Number of rows to display (0 for all)")
	watchCmd.Flags().BoolVarP(&watchInteractive, "interactive", "i", false, "Read predict/trade commands from stdin")
	watchCmd.Flags().BoolVar(&watchAllowHold, "allow-hold", false, "Let interactive trades send HOLD signals")
}
