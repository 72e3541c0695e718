package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tradedesk/internal/gateway"
	"tradedesk/internal/scheduler"
)

// DefaultInterval is the ledger refresh period.
const DefaultInterval = 5 * time.Second

// ErrInactive is returned by Refresh when the poller is not running.
var ErrInactive = errors.New("ledger poller is not active")

// Schedule drives periodic ticks. *scheduler.Scheduler satisfies it; a push
// subscription can replace it without touching Poller consumers.
type Schedule interface {
	Run(ctx context.Context, tick scheduler.TickFunc) error
}

// Mirror receives every accepted snapshot, e.g. the PostgreSQL ledger copy.
type Mirror interface {
	ReplaceTransactions(ctx context.Context, records []gateway.TransactionRecord) error
}

// Update is one accepted snapshot.
type Update struct {
	Records   []gateway.TransactionRecord
	FetchedAt time.Time
}

// Options configure a Poller.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
	// Schedule overrides the default interval scheduler.
	Schedule Schedule
	Mirror   Mirror
}

// Poller keeps a full-replace snapshot of the remote transaction list.
type Poller struct {
	lister   gateway.TransactionLister
	schedule Schedule
	mirror   Mirror
	logger   zerolog.Logger
	now      func() time.Time

	mu         sync.RWMutex
	records    []gateway.TransactionRecord
	fetchedAt  time.Time
	generation uint64
	issued     uint64
	applied    uint64
	active     bool
	cancel     context.CancelFunc
	done       chan struct{}
	subs       map[int]chan Update
	nextSub    int

	mirrorMu sync.Mutex
	mirrored uint64
}

// New constructs an inactive poller.
func New(lister gateway.TransactionLister, opts Options, logger zerolog.Logger) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	schedule := opts.Schedule
	if schedule == nil {
		schedule = scheduler.New(scheduler.Options{
			Interval:     opts.Interval,
			StartupDelay: opts.StartupDelay,
			Name:         "ledger_poller",
		}, logger)
	}

	done := make(chan struct{})
	close(done)
	return &Poller{
		lister:   lister,
		schedule: schedule,
		mirror:   opts.Mirror,
		logger:   logger.With().Str("component", "ledger_poller").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
		subs:     make(map[int]chan Update),
		done:     done,
	}
}

// Start activates polling: one fetch right away, then one per interval.
// Starting an active poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		return
	}
	p.generation++
	gen := p.generation
	runCtx, cancel := context.WithCancel(ctx)
	p.active = true
	p.cancel = cancel
	done := make(chan struct{})
	p.done = done
	p.mu.Unlock()

	p.logger.Info().Uint64("generation", gen).Msg("ledger poller started")

	go func() {
		defer close(done)
		_ = p.fetch(runCtx, gen)
		err := p.schedule.Run(runCtx, func(ctx context.Context, _ time.Time) error {
			_ = p.fetch(ctx, gen)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Error().Err(err).Msg("ledger schedule stopped")
		}
	}()
}

// Stop cancels the schedule. Results of calls issued before Stop are dropped
// on arrival. Stop does not wait; use Done for that.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return
	}
	p.active = false
	p.generation++
	p.cancel()
	p.logger.Info().Msg("ledger poller stopped")
}

// Done is closed once the current activation's goroutine has exited.
func (p *Poller) Done() <-chan struct{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.done
}

// Refresh fetches out of band, e.g. right after a trade. Unlike scheduled
// ticks it returns the fetch error to the caller. Its result is ordered with
// scheduled fetches by issue sequence, so it never overwrites a newer one.
func (p *Poller) Refresh(ctx context.Context) error {
	p.mu.RLock()
	active, gen := p.active, p.generation
	p.mu.RUnlock()
	if !active {
		return ErrInactive
	}
	return p.fetch(ctx, gen)
}

// Snapshot returns a copy of the last accepted transaction list.
func (p *Poller) Snapshot() ([]gateway.TransactionRecord, time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneRecords(p.records), p.fetchedAt
}

// Subscribe returns a channel that receives the latest update. Slow readers
// only see the newest snapshot. Call the returned func to unsubscribe.
func (p *Poller) Subscribe() (<-chan Update, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	ch := make(chan Update, 1)
	p.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

func (p *Poller) fetch(ctx context.Context, gen uint64) error {
	seq := p.issue()
	records, err := p.lister.ListTransactions(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn().Err(err).Uint64("seq", seq).Msg("ledger fetch failed; keeping last snapshot")
		}
		return err
	}

	update, ok := p.apply(gen, seq, records)
	if !ok {
		return nil
	}

	if p.mirror != nil {
		p.mirrorSnapshot(ctx, seq, update.Records)
	}
	return nil
}

// issue tags a fetch before it leaves, so results can be ordered on arrival.
func (p *Poller) issue() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.issued++
	return p.issued
}

func (p *Poller) apply(gen, seq uint64, records []gateway.TransactionRecord) (Update, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active || p.generation != gen {
		p.logger.Debug().Uint64("generation", gen).Msg("discarding ledger result from stopped activation")
		return Update{}, false
	}
	if seq < p.applied {
		p.logger.Debug().Uint64("seq", seq).Uint64("applied", p.applied).Msg("discarding ledger result older than current snapshot")
		return Update{}, false
	}

	p.applied = seq
	p.records = cloneRecords(records)
	p.fetchedAt = p.now()
	p.logger.Debug().Int("rows", len(p.records)).Uint64("seq", seq).Msg("ledger snapshot replaced")

	for _, ch := range p.subs {
		update := Update{Records: cloneRecords(p.records), FetchedAt: p.fetchedAt}
		select {
		case <-ch:
		default:
		}
		ch <- update
	}
	return Update{Records: cloneRecords(p.records), FetchedAt: p.fetchedAt}, true
}

// mirrorSnapshot writes accepted snapshots to the mirror one at a time and
// skips any that a newer write already replaced.
func (p *Poller) mirrorSnapshot(ctx context.Context, seq uint64, records []gateway.TransactionRecord) {
	p.mirrorMu.Lock()
	defer p.mirrorMu.Unlock()
	if seq < p.mirrored {
		return
	}
	if err := p.mirror.ReplaceTransactions(ctx, records); err != nil {
		p.logger.Error().Err(err).Msg("failed to mirror ledger snapshot")
		return
	}
	p.mirrored = seq
}

func cloneRecords(in []gateway.TransactionRecord) []gateway.TransactionRecord {
	if in == nil {
		return nil
	}
	out := make([]gateway.TransactionRecord, len(in))
	copy(out, in)
	return out
}
