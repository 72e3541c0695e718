package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"tradedesk/internal/app"
)

var predictPlotOut string

var predictCmd = &cobra.Command{
	Use:   "predict <ticker or company>",
	Short: "Show the predicted price and signal for a ticker",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Predict(cmd.Context(), app.PredictOptions{
			Query:   strings.Join(args, " "),
			PlotOut: predictPlotOut,
		})
	},
}

func init() {
	predictCmd.Flags().StringVar(&predictPlotOut, "plot", "", "Write the backend's chart PNG to this path")
}
