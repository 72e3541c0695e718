package trade

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"tradedesk/internal/gateway"
)

// ErrTradeInProgress is returned when another process holds the lock for the
// same signal and ticker. Nothing was executed.
var ErrTradeInProgress = errors.New("identical trade already in progress in another process")

// Executor is anything that can run the execute → record workflow.
type Executor interface {
	ExecuteAndRecord(ctx context.Context, snapshot gateway.PredictionSnapshot) (Confirmation, error)
}

// Dedup collapses concurrent triggers for the same signal and ticker into a
// single execution. Callers in this process that arrive while one is in flight
// share its outcome. With a lock dir, a trigger from another process is
// refused for as long as the first one runs.
type Dedup struct {
	next    Executor
	lockDir string
	group   singleflight.Group
	logger  zerolog.Logger
}

// NewDedup wraps next. An empty lockDir disables the cross-process lock.
func NewDedup(next Executor, lockDir string, logger zerolog.Logger) *Dedup {
	return &Dedup{
		next:    next,
		lockDir: lockDir,
		logger:  logger.With().Str("component", "trade_dedup").Logger(),
	}
}

// ExecuteAndRecord forwards to the wrapped executor unless an identical trade is in flight.
func (d *Dedup) ExecuteAndRecord(ctx context.Context, snapshot gateway.PredictionSnapshot) (Confirmation, error) {
	key := dedupKey(snapshot)

	v, err, shared := d.group.Do(key, func() (interface{}, error) {
		unlock, err := d.lock(key)
		if err != nil {
			return Confirmation{}, err
		}
		defer unlock()
		return d.next.ExecuteAndRecord(ctx, snapshot)
	})
	if shared {
		d.logger.Info().Str("key", key).Msg("joined in-flight trade instead of executing again")
	}

	conf, _ := v.(Confirmation)
	return conf, err
}

// lock takes the per-trade file lock, held for the whole execute → record.
func (d *Dedup) lock(key string) (func(), error) {
	if d.lockDir == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(d.lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create trade lock dir: %w", err)
	}

	fl := flock.New(filepath.Join(d.lockDir, lockFileName(key)))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire trade lock: %w", err)
	}
	if !ok {
		d.logger.Warn().Str("key", key).Str("lock", fl.Path()).Msg("trade lock held by another process")
		return nil, fmt.Errorf("%s: %w", key, ErrTradeInProgress)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			d.logger.Warn().Err(err).Str("lock", fl.Path()).Msg("release trade lock")
		}
	}, nil
}

func dedupKey(snapshot gateway.PredictionSnapshot) string {
	return string(snapshot.Signal) + ":" + strings.ToUpper(strings.TrimSpace(snapshot.Ticker))
}

func lockFileName(key string) string {
	var b strings.Builder
	b.WriteString("trade-")
	for _, r := range key {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	b.WriteString(".lock")
	return b.String()
}

var (
	_ Executor = (*Coordinator)(nil)
	_ Executor = (*Dedup)(nil)
)
