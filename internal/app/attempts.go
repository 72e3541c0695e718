package app

import (
	"context"
	"errors"
	"fmt"

	"tradedesk/internal/prediction"
)

// Attempts lists the trade audit trail kept in the mirror database.
func (a *App) Attempts(ctx context.Context, opts AttemptsOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; no trade audit trail available")
	}
	defer closeStore()

	attempts, err := store.ListRecentAttempts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.Out, titleStyle.Render("Recent trade attempts"))
	renderAttempts(a.Out, attempts)
	return nil
}

// Companies lists the company names the ticker search resolves.
func (a *App) Companies() {
	renderCompanies(a.Out, prediction.KnownCompanies())
}
