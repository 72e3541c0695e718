package app

import (
	"context"
	"errors"
	"fmt"
)

// Ledger prints the transaction ledger once, from the backend or, with
// Offline, from the local mirror. A zero limit prints every row.
func (a *App) Ledger(ctx context.Context, opts LedgerOptions) error {
	if opts.Offline {
		return a.offlineLedger(ctx, opts)
	}

	records, err := a.newGateway().ListTransactions(ctx)
	if err != nil {
		return err
	}
	renderTransactions(a.Out, records, opts.Limit)
	return nil
}

func (a *App) offlineLedger(ctx context.Context, opts LedgerOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot read offline ledger")
	}
	defer closeStore()

	records, err := store.ListTransactions(ctx, opts.Limit)
	if err != nil {
		return err
	}
	total, err := store.CountTransactions(ctx)
	if err != nil {
		return err
	}

	renderTransactions(a.Out, records, opts.Limit)
	fmt.Fprintln(a.Out, mutedStyle.Render(fmt.Sprintf("showing %d of %d mirrored rows", len(records), total)))
	return nil
}
