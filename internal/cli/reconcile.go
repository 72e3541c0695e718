package cli

import (
	"github.com/spf13/cobra"

	"tradedesk/internal/app"
)

var (
	reconcileAttempt string
	reconcileList    bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Record trades that executed but were not saved to the ledger",
	Long: `Resubmits the stored execution result of trades whose ledger record failed.
Trades are never executed again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Reconcile(cmd.Context(), app.ReconcileOptions{
			AttemptID: reconcileAttempt,
			ListOnly:  reconcileList,
		})
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileAttempt, "attempt", "", "Only retry this attempt id")
	reconcileCmd.Flags().BoolVar(&reconcileList, "list", false, "List unrecorded trades without retrying")
	reconcileCmd.MarkFlagsMutuallyExclusive("attempt", "list")
}
