package app

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"tradedesk/internal/gateway"
	"tradedesk/internal/ledger"
	"tradedesk/internal/prediction"
	"tradedesk/internal/trade"
)

const sessionHelp = `Type a ticker or company name to predict it. Commands: trade, refresh, clear, companies, help.`

// lockedWriter serialises whole blocks of output from concurrent commands.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// Print renders fn into a buffer and writes it in one piece.
func (l *lockedWriter) Print(fn func(w io.Writer)) {
	var buf bytes.Buffer
	fn(&buf)
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.w.Write(buf.Bytes())
}

// readCommands streams trimmed input lines until EOF or ctx is done.
func readCommands(ctx context.Context, r io.Reader) <-chan string {
	if r == nil {
		return nil
	}
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case ch <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// session is the interactive side of watch: one prediction view shared by
// every command, with trades running through the shared dedup guard.
type session struct {
	app       *App
	deps      *tradeDeps
	predictor gateway.Predictor
	vm        *prediction.ViewModel
	poller    *ledger.Poller
	out       *lockedWriter
	allowHold bool

	wg sync.WaitGroup
}

func newSession(a *App, deps *tradeDeps, predictor gateway.Predictor, poller *ledger.Poller, out *lockedWriter, allowHold bool) *session {
	return &session{
		app:       a,
		deps:      deps,
		predictor: predictor,
		vm:        prediction.New(predictor, a.Logger),
		poller:    poller,
		out:       out,
		allowHold: allowHold,
	}
}

// Handle dispatches one input line. Remote work runs in the background so
// the ledger keeps refreshing; Wait blocks until all of it has finished.
func (s *session) Handle(ctx context.Context, line string) {
	switch strings.ToLower(line) {
	case "":
	case "help":
		s.out.Print(func(w io.Writer) { fmt.Fprintln(w, sessionHelp) })
	case "clear":
		s.vm.Reset()
		s.out.Print(func(w io.Writer) { fmt.Fprintln(w, mutedStyle.Render("Prediction cleared.")) })
	case "companies":
		s.out.Print(func(w io.Writer) { renderCompanies(w, prediction.KnownCompanies()) })
	case "refresh":
		s.spawn(func() {
			if err := s.poller.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.out.Print(func(w io.Writer) {
					fmt.Fprintln(w, warnStyle.Render("Ledger refresh failed; showing last snapshot: "+err.Error()))
				})
			}
		})
	case "trade":
		s.spawn(func() { s.trade(ctx) })
	default:
		s.spawn(func() { s.predict(ctx, line) })
	}
}

// Wait blocks until every background command has returned.
func (s *session) Wait() {
	s.wg.Wait()
}

func (s *session) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *session) predict(ctx context.Context, query string) {
	snap, err := s.vm.Query(ctx, query)
	switch {
	case errors.Is(err, prediction.ErrSuperseded):
		return
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		s.out.Print(func(w io.Writer) { reportNoData(w, query, err) })
		return
	}
	s.out.Print(func(w io.Writer) { renderPrediction(w, snap) })
}

func (s *session) trade(ctx context.Context) {
	st := s.vm.State()
	if st.Loading {
		s.out.Print(func(w io.Writer) {
			fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("Prediction for %s is still loading; nothing traded.", st.Ticker)))
		})
		return
	}
	if st.Snapshot == nil {
		s.out.Print(func(w io.Writer) { reportTradeError(w, trade.ErrNoActiveSignal) })
		return
	}

	snap := *st.Snapshot
	if snap.Signal == gateway.SignalHold && !s.allowHold {
		s.out.Print(func(w io.Writer) {
			fmt.Fprintln(w, holdStyle.Render("Signal is HOLD; nothing to trade."))
		})
		return
	}

	conf, err := s.deps.dedup.ExecuteAndRecord(ctx, snap)
	s.out.Print(func(w io.Writer) {
		if err != nil {
			reportTradeError(w, err)
			return
		}
		renderConfirmation(w, conf)
	})

	if !executed(err) {
		return
	}
	s.app.invalidatePrediction(ctx, s.predictor, snap.Ticker)
	if err := s.poller.Refresh(ctx); err != nil {
		s.app.Logger.Warn().Err(err).Msg("ledger refresh after trade failed")
	}
}
