package cli

import (
	"github.com/spf13/cobra"

	"tradedesk/internal/app"
)

var attemptsLimit int

var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "List recent trade attempts from the mirror database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Attempts(cmd.Context(), app.AttemptsOptions{Limit: attemptsLimit})
	},
}

var companiesCmd = &cobra.Command{
	Use:   "companies",
	Short: "List company names that resolve to a ticker",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		getApp().Companies()
	},
}

func init() {
	attemptsCmd.Flags().IntVar(&attemptsLimit, "limit", 20, "Number of attempts to display (0 for all)")
}
