package app

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"tradedesk/internal/ledger"
	"tradedesk/internal/storage"
)

// Watch keeps the ledger on screen, refreshing every poll interval until
// interrupted. Each accepted snapshot is also mirrored when a database is set.
// In interactive mode commands read from App.In can predict and trade while
// the ledger keeps refreshing.
func (a *App) Watch(ctx context.Context, opts WatchOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		store   *storage.Store
		deps    *tradeDeps
		closeFn func()
	)
	if opts.Interactive {
		d, err := a.newTradeDeps(ctx)
		if err != nil {
			return err
		}
		deps, store, closeFn = d, d.store, d.close
	} else {
		s, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		store, closeFn = s, closeStore
	}
	if closeFn != nil {
		defer closeFn()
	}

	pollerOpts := ledger.Options{
		Interval:     a.Config.Poller.Interval,
		StartupDelay: a.Config.Poller.StartupDelay,
	}
	if store != nil {
		pollerOpts.Mirror = store
	} else {
		a.Logger.Debug().Msg("database.dsn not configured; ledger mirror disabled")
	}

	client := a.newGateway()
	if deps != nil {
		client = deps.client
	}
	poller := ledger.New(client, pollerOpts, a.Logger)
	updates, unsubscribe := poller.Subscribe()
	defer unsubscribe()

	out := &lockedWriter{w: a.Out}

	var sess *session
	var commands <-chan string
	if deps != nil {
		predictor, closeCache := a.newPredictor(ctx, deps.client)
		defer closeCache()
		sess = newSession(a, deps, predictor, poller, out, opts.AllowHold)
		commands = readCommands(ctx, a.In)
		out.Print(func(w io.Writer) { fmt.Fprintln(w, mutedStyle.Render(sessionHelp)) })
	}

	poller.Start(ctx)
	// The store closes only after every fetch and mirror write has finished.
	defer func() {
		if sess != nil {
			sess.Wait()
		}
		poller.Stop()
		<-poller.Done()
	}()

	a.Logger.Info().Dur("interval", a.Config.Poller.Interval).Bool("interactive", opts.Interactive).Msg("watching ledger")
	for {
		select {
		case <-ctx.Done():
			a.Logger.Info().Msg("ledger watch stopped")
			return nil
		case u := <-updates:
			out.Print(func(w io.Writer) {
				fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Ledger @ %s UTC (%d rows)", u.FetchedAt.Format(time.DateTime), len(u.Records))))
				renderTransactions(w, u.Records, opts.Limit)
				fmt.Fprintln(w)
			})
		case line, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			sess.Handle(ctx, line)
		}
	}
}
