package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tradedesk/internal/app"
)

var (
	ledgerLimit   int
	ledgerOffline bool
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Print the transaction ledger once",
	RunE: func(cmd *cobra.Command, args []string) error {
		if ledgerLimit < 0 {
			return fmt.Errorf("--limit cannot be negative")
		}
		return getApp().Ledger(cmd.Context(), app.LedgerOptions{
			Limit:   ledgerLimit,
			Offline: ledgerOffline,
		})
	},
}

func init() {
	ledgerCmd.Flags().IntVar(&ledgerLimit, "limit", 20, "Number of rows to display (0 for all)")
	ledgerCmd.Flags().BoolVar(&ledgerOffline, "offline", false, "Read from the PostgreSQL mirror instead of the backend")
}
