package app

import (
	"context"
	"fmt"
	"sort"
)

// Reconcile resubmits executed-but-unrecorded trades from the local journal.
// It never re-executes a trade.
func (a *App) Reconcile(ctx context.Context, opts ReconcileOptions) error {
	deps, err := a.newTradeDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.close()

	if opts.ListOnly {
		pending, err := deps.coordinator.Pending()
		if err != nil {
			return err
		}
		renderPending(a.Out, pending)
		return nil
	}

	if opts.AttemptID != "" {
		conf, err := deps.coordinator.RetryRecord(ctx, opts.AttemptID)
		if err != nil {
			fmt.Fprintln(a.Out, errorStyle.Render("Still not recorded: "+err.Error()))
			return err
		}
		fmt.Fprintln(a.Out, okStyle.Render(fmt.Sprintf("%s %s recorded: %s", conf.Attempt.Signal, conf.Attempt.Ticker, conf.Message)))
		return nil
	}

	report, err := deps.coordinator.Reconcile(ctx)
	if err != nil {
		return err
	}

	for _, conf := range report.Recorded {
		fmt.Fprintln(a.Out, okStyle.Render(fmt.Sprintf("recorded %s (%s %s)", conf.Attempt.ID, conf.Attempt.Signal, conf.Attempt.Ticker)))
	}

	ids := make([]string, 0, len(report.Failed))
	for id := range report.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintln(a.Out, errorStyle.Render(fmt.Sprintf("failed %s: %v", id, report.Failed[id])))
	}

	fmt.Fprintf(a.Out, "%d recorded, %d still pending\n", len(report.Recorded), len(report.Failed))
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d trades still unrecorded", len(report.Failed))
	}
	return nil
}
