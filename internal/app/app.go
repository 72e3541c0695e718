package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"tradedesk/internal/alerting"
	"tradedesk/internal/cache"
	"tradedesk/internal/config"
	"tradedesk/internal/gateway"
	"tradedesk/internal/journal"
	"tradedesk/internal/storage"
	"tradedesk/internal/trade"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
	// In feeds interactive watch sessions.
	In io.Reader
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout, In: os.Stdin}
}

func (a *App) newGateway() *gateway.Client {
	return gateway.New(gateway.Options{
		BaseURL:   a.Config.Gateway.BaseURL,
		Timeout:   a.Config.Gateway.RequestTimeout,
		UserAgent: a.Config.Gateway.UserAgent,
	}, a.Logger)
}

// newPredictor returns the gateway, behind the Redis cache when configured.
// An unreachable cache only downgrades to direct calls.
func (a *App) newPredictor(ctx context.Context, client *gateway.Client) (gateway.Predictor, func()) {
	if !a.Config.Cache.Enabled() {
		return client, func() {}
	}

	rdb, err := cache.NewClient(ctx, cache.Options{
		Addr:     a.Config.Cache.Addr,
		Password: a.Config.Cache.Password,
		DB:       a.Config.Cache.DB,
	})
	if err != nil {
		a.Logger.Warn().Err(err).Msg("prediction cache unavailable; querying backend directly")
		return client, func() {}
	}

	return cache.NewPredictions(client, rdb, a.Config.Cache.TTL, a.Logger), func() { _ = rdb.Close() }
}

func (a *App) newNotifier(store *storage.Store) alerting.Notifier {
	var notifiers []alerting.Notifier
	if store != nil {
		notifiers = append(notifiers, store)
	}
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, a.Config.Alerting.RequestTimeout, a.Logger))
	}
	return alerting.Fanout(notifiers...)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if !a.Config.Database.Enabled() {
		return nil, nil, nil
	}

	pool, err := storage.OpenPool(ctx, a.Config.Database, a.Config.App.Name)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) openJournal() (*journal.WAL, error) {
	return journal.Open(journal.Options{
		Dir:              a.Config.Journal.Dir,
		SegmentThreshold: a.Config.Journal.SegmentThreshold,
		MaxSegments:      a.Config.Journal.MaxSegments,
		SyncWrites:       a.Config.Journal.SyncWrites,
	}, a.Logger)
}

// tradeDeps bundles everything a trade-related command needs.
type tradeDeps struct {
	client      *gateway.Client
	coordinator *trade.Coordinator
	dedup       *trade.Dedup
	store       *storage.Store
	close       func()
}

func (a *App) newTradeDeps(ctx context.Context) (*tradeDeps, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	wal, err := a.openJournal()
	if err != nil {
		if closeStore != nil {
			closeStore()
		}
		return nil, err
	}

	client := a.newGateway()
	coord := trade.New(client, client, wal, a.newNotifier(store), a.Logger)

	return &tradeDeps{
		client:      client,
		coordinator: coord,
		dedup:       trade.NewDedup(coord, filepath.Join(a.Config.Journal.Dir, "locks"), a.Logger),
		store:       store,
		close: func() {
			if err := wal.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("close journal")
			}
			if closeStore != nil {
				closeStore()
			}
		},
	}, nil
}

// PredictOptions configure the predict command.
type PredictOptions struct {
	Query   string
	PlotOut string
}

// TradeOptions configure the trade command.
type TradeOptions struct {
	Query string
	// AllowHold sends HOLD signals to the backend instead of stopping.
	AllowHold bool
}

// WatchOptions configure the watch command.
type WatchOptions struct {
	Limit int
	// Interactive reads commands from App.In while the ledger refreshes.
	Interactive bool
	// AllowHold lets interactive trades send HOLD signals.
	AllowHold bool
}

// AttemptsOptions configure the attempts command.
type AttemptsOptions struct {
	Limit int
}

// LedgerOptions configure the ledger command.
type LedgerOptions struct {
	Limit   int
	Offline bool
}

// ReconcileOptions configure the reconcile command.
type ReconcileOptions struct {
	AttemptID string
	ListOnly  bool
}

// ExportOptions hold parameters for exporting ledger history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}
