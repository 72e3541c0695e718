package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"tradedesk/internal/gateway"
	"tradedesk/internal/prediction"
)

// Predict looks up a ticker (or company name) and prints the forecast.
func (a *App) Predict(ctx context.Context, opts PredictOptions) error {
	client := a.newGateway()
	predictor, closeCache := a.newPredictor(ctx, client)
	defer closeCache()

	vm := prediction.New(predictor, a.Logger)
	snap, err := vm.Query(ctx, opts.Query)
	if err != nil {
		reportNoData(a.Out, opts.Query, err)
		return err
	}

	renderPrediction(a.Out, snap)

	if opts.PlotOut != "" {
		if !snap.HasPlot() {
			return fmt.Errorf("backend returned no chart for %s", snap.Ticker)
		}
		if err := ensureDir(opts.PlotOut); err != nil {
			return err
		}
		if err := os.WriteFile(opts.PlotOut, snap.PlotPNG, 0o644); err != nil {
			return fmt.Errorf("write chart: %w", err)
		}
		fmt.Fprintf(a.Out, "Chart written to %s\n", opts.PlotOut)
	}
	return nil
}

func reportNoData(w io.Writer, query string, err error) {
	switch {
	case errors.Is(err, prediction.ErrEmptyTicker):
		fmt.Fprintln(w, errorStyle.Render("Enter a ticker or company name."))
	case errors.Is(err, gateway.ErrServiceUnreachable):
		fmt.Fprintln(w, errorStyle.Render("Prediction service unreachable; no data."))
	default:
		fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("No data for %q.", query)))
	}
}
