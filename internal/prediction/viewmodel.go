package prediction

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"tradedesk/internal/gateway"
)

var (
	// ErrSuperseded marks a response that arrived after a newer query was issued.
	ErrSuperseded = errors.New("prediction superseded by a newer query")
	// ErrEmptyTicker is returned for blank input; no remote call is made.
	ErrEmptyTicker = errors.New("ticker is required")
)

// State is a point-in-time copy of the view model.
type State struct {
	Ticker   string
	Loading  bool
	Snapshot *gateway.PredictionSnapshot
	Err      error
	Sequence uint64
}

// ViewModel owns the current prediction. Each query is tagged with a
// sequence number; only the latest one may change the snapshot.
type ViewModel struct {
	predictor gateway.Predictor
	logger    zerolog.Logger

	mu       sync.RWMutex
	seq      uint64
	ticker   string
	loading  bool
	snapshot *gateway.PredictionSnapshot
	lastErr  error
}

// New constructs an empty view model.
func New(predictor gateway.Predictor, logger zerolog.Logger) *ViewModel {
	return &ViewModel{
		predictor: predictor,
		logger:    logger.With().Str("component", "prediction").Logger(),
	}
}

// Query resolves input to a ticker and fetches its prediction. A failed
// query clears the snapshot. Responses to superseded queries are dropped
// and reported as ErrSuperseded.
func (vm *ViewModel) Query(ctx context.Context, input string) (gateway.PredictionSnapshot, error) {
	ticker := ResolveTicker(input)
	if ticker == "" {
		return gateway.PredictionSnapshot{}, ErrEmptyTicker
	}

	vm.mu.Lock()
	vm.seq++
	seq := vm.seq
	vm.ticker = ticker
	vm.loading = true
	vm.mu.Unlock()

	snap, err := vm.predictor.Predict(ctx, ticker)

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if seq != vm.seq {
		vm.logger.Debug().Str("ticker", ticker).Uint64("seq", seq).Uint64("latest", vm.seq).
			Msg("dropping stale prediction response")
		return gateway.PredictionSnapshot{}, fmt.Errorf("predict %s: %w", ticker, ErrSuperseded)
	}

	vm.loading = false
	if err != nil {
		vm.snapshot = nil
		vm.lastErr = err
		vm.logger.Warn().Err(err).Str("ticker", ticker).Msg("prediction unavailable")
		return gateway.PredictionSnapshot{}, err
	}

	vm.snapshot = &snap
	vm.lastErr = nil
	vm.logger.Info().Str("ticker", ticker).Str("signal", string(snap.Signal)).Msg("prediction updated")
	return snap, nil
}

// Current returns the held snapshot, if any.
func (vm *ViewModel) Current() (gateway.PredictionSnapshot, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.snapshot == nil {
		return gateway.PredictionSnapshot{}, false
	}
	return *vm.snapshot, true
}

// State returns a copy of the full view state.
func (vm *ViewModel) State() State {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	st := State{
		Ticker:   vm.ticker,
		Loading:  vm.loading,
		Err:      vm.lastErr,
		Sequence: vm.seq,
	}
	if vm.snapshot != nil {
		snap := *vm.snapshot
		st.Snapshot = &snap
	}
	return st
}

// Reset clears the view and invalidates any in-flight query.
func (vm *ViewModel) Reset() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.seq++
	vm.ticker = ""
	vm.loading = false
	vm.snapshot = nil
	vm.lastErr = nil
}
