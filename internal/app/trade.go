package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"tradedesk/internal/gateway"
	"tradedesk/internal/prediction"
	"tradedesk/internal/trade"
)

// Trade predicts the ticker, then executes and records the returned signal.
func (a *App) Trade(ctx context.Context, opts TradeOptions) error {
	deps, err := a.newTradeDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.close()

	predictor, closeCache := a.newPredictor(ctx, deps.client)
	defer closeCache()

	vm := prediction.New(predictor, a.Logger)
	if _, err := vm.Query(ctx, opts.Query); err != nil {
		reportNoData(a.Out, opts.Query, err)
		return err
	}

	snap, ok := vm.Current()
	if !ok {
		return trade.ErrNoActiveSignal
	}
	renderPrediction(a.Out, snap)

	if snap.Signal == gateway.SignalHold && !opts.AllowHold {
		fmt.Fprintln(a.Out, holdStyle.Render("Signal is HOLD; nothing to trade (pass --allow-hold to send it anyway)."))
		return nil
	}

	conf, err := deps.dedup.ExecuteAndRecord(ctx, snap)
	if executed(err) {
		a.invalidatePrediction(ctx, predictor, snap.Ticker)
	}
	if err != nil {
		reportTradeError(a.Out, err)
		return err
	}

	renderConfirmation(a.Out, conf)
	return nil
}

// executed reports whether the broker ran the trade, whatever happened after.
func executed(err error) bool {
	if err == nil {
		return true
	}
	var tradeErr *trade.Error
	return errors.As(err, &tradeErr) && tradeErr.Executed()
}

type predictionInvalidator interface {
	Invalidate(ctx context.Context, ticker string) error
}

// invalidatePrediction drops a cached prediction once its signal was traded,
// so the next query asks the backend again.
func (a *App) invalidatePrediction(ctx context.Context, predictor gateway.Predictor, ticker string) {
	inv, ok := predictor.(predictionInvalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(ctx, ticker); err != nil {
		a.Logger.Warn().Err(err).Str("ticker", ticker).Msg("invalidate cached prediction")
	}
}

func renderConfirmation(w io.Writer, conf trade.Confirmation) {
	fmt.Fprintln(w, okStyle.Render(conf.Message))
	if conf.TransactionID != "" {
		fmt.Fprintf(w, "Transaction: %s\n", conf.TransactionID)
	}
	fmt.Fprintf(w, "Attempt: %s\n", conf.Attempt.ID)
}

// reportTradeError tells execution failures apart from trades that executed
// but were not saved.
func reportTradeError(w io.Writer, err error) {
	switch {
	case errors.Is(err, trade.ErrNoActiveSignal):
		fmt.Fprintln(w, errorStyle.Render("No active signal to trade."))
		return
	case errors.Is(err, trade.ErrTradeInProgress):
		fmt.Fprintln(w, warnStyle.Render("The same trade is already being placed by another tradedesk process."))
		fmt.Fprintln(w, mutedStyle.Render("Nothing was executed by this command."))
		return
	}

	var tradeErr *trade.Error
	if !errors.As(err, &tradeErr) {
		fmt.Fprintln(w, errorStyle.Render("Trade failed: "+err.Error()))
		return
	}

	if !tradeErr.Executed() {
		fmt.Fprintln(w, errorStyle.Render("Trade failed: "+tradeErr.Detail))
		fmt.Fprintln(w, mutedStyle.Render("Nothing was executed and the ledger is unchanged."))
		return
	}

	fmt.Fprintln(w, warnStyle.Render("Trade EXECUTED by the broker but NOT saved to the ledger: "+tradeErr.Detail))
	if tradeErr.Journaled {
		fmt.Fprintf(w, "The result is kept locally. Run: tradedesk reconcile --attempt %s\n", tradeErr.Attempt.ID)
		return
	}
	fmt.Fprintln(w, errorStyle.Render("The result could not be kept locally; record it manually:"))
	fmt.Fprintln(w, string(tradeErr.Attempt.Result.Bytes()))
}
