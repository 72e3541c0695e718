package trade

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tradedesk/internal/alerting"
	"tradedesk/internal/gateway"
	"tradedesk/internal/journal"
)

// Journal keeps executed-but-unrecorded results for later resubmission.
type Journal interface {
	Append(entry journal.Entry) error
	Lookup(attemptID string) (journal.Entry, bool, error)
	Pending() ([]journal.Entry, error)
	Resolve(attemptID string) error
}

// Coordinator runs the two-phase execute → record workflow. It holds no
// per-trade state and does not deduplicate; see Dedup.
type Coordinator struct {
	executor gateway.TradeExecutor
	recorder gateway.TransactionRecorder
	journal  Journal
	notifier alerting.Notifier
	logger   zerolog.Logger

	now   func() time.Time
	newID func() string
}

// New constructs a coordinator. journal and notifier may be nil.
func New(executor gateway.TradeExecutor, recorder gateway.TransactionRecorder, j Journal, notifier alerting.Notifier, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		executor: executor,
		recorder: recorder,
		journal:  j,
		notifier: notifier,
		logger:   logger.With().Str("component", "trade_coordinator").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// ExecuteAndRecord executes the snapshot's signal and records the exact result.
func (c *Coordinator) ExecuteAndRecord(ctx context.Context, snapshot gateway.PredictionSnapshot) (Confirmation, error) {
	ticker := strings.TrimSpace(snapshot.Ticker)
	if snapshot.Signal == "" || ticker == "" {
		return Confirmation{}, ErrNoActiveSignal
	}

	attempt := Attempt{
		ID:        c.newID(),
		Signal:    snapshot.Signal,
		Ticker:    ticker,
		State:     StatePending,
		StartedAt: c.now(),
	}
	log := c.logger.With().Str("attempt_id", attempt.ID).
		Str("ticker", attempt.Ticker).
		Str("signal", string(attempt.Signal)).
		Logger()

	result, err := c.executor.ExecuteTrade(ctx, attempt.Signal, attempt.Ticker)
	if err != nil {
		attempt.transition(StateExecutionFailed)
		log.Warn().Err(err).Msg("trade execution failed; nothing recorded")
		return Confirmation{}, &Error{Attempt: attempt, Detail: failureDetail(err), Err: err}
	}

	attempt.Result = result
	attempt.transition(StateExecuted)
	log.Info().Msg("trade executed")

	receipt, err := c.recorder.RecordTransaction(ctx, result)
	if err != nil {
		attempt.transition(StateRecordingFailed)
		tradeErr := &Error{Attempt: attempt, Detail: failureDetail(err), Err: err}
		tradeErr.Journaled = c.journalUnrecorded(attempt, tradeErr.Detail, log)
		log.Error().Err(err).Bool("journaled", tradeErr.Journaled).
			Msg("trade executed but ledger record failed")
		c.notify(ctx, attempt, tradeErr.Detail, log)
		return Confirmation{}, tradeErr
	}

	attempt.transition(StateRecorded)
	conf := Confirmation{Attempt: attempt, Message: receipt.Message, TransactionID: receipt.TransactionID}
	if conf.Message == "" {
		conf.Message = DefaultConfirmation
	}
	log.Info().Str("transaction_id", receipt.TransactionID).Msg("trade recorded")
	c.notify(ctx, attempt, conf.Message, log)
	return conf, nil
}

// RetryRecord resubmits the journaled result of attemptID. It never re-executes.
func (c *Coordinator) RetryRecord(ctx context.Context, attemptID string) (Confirmation, error) {
	if c.journal == nil {
		return Confirmation{}, fmt.Errorf("retry record %s: %w", attemptID, ErrNotJournaled)
	}

	entry, found, err := c.journal.Lookup(attemptID)
	if err != nil {
		return Confirmation{}, fmt.Errorf("retry record %s: %w", attemptID, err)
	}
	if !found {
		return Confirmation{}, fmt.Errorf("retry record %s: %w", attemptID, ErrNotJournaled)
	}

	return c.retryEntry(ctx, entry)
}

func (c *Coordinator) retryEntry(ctx context.Context, entry journal.Entry) (Confirmation, error) {
	signal, _ := gateway.ParseSignal(entry.Signal)
	attempt := Attempt{
		ID:        entry.AttemptID,
		Signal:    signal,
		Ticker:    entry.Ticker,
		State:     StateExecuted,
		Result:    gateway.TradeExecutionResult(entry.Result),
		StartedAt: entry.ExecutedAt,
	}
	log := c.logger.With().Str("attempt_id", attempt.ID).Str("ticker", attempt.Ticker).Logger()

	receipt, err := c.recorder.RecordTransaction(ctx, attempt.Result)
	if err != nil {
		attempt.transition(StateRecordingFailed)
		log.Warn().Err(err).Msg("retry record failed; entry kept")
		return Confirmation{}, &Error{Attempt: attempt, Detail: failureDetail(err), Journaled: true, Err: err}
	}

	attempt.transition(StateRecorded)
	if err := c.journal.Resolve(attempt.ID); err != nil {
		// The row exists now; a stale journal entry would be resubmitted, so surface it.
		log.Error().Err(err).Msg("trade recorded but journal entry not resolved")
		return Confirmation{}, fmt.Errorf("resolve journal entry %s: %w", attempt.ID, err)
	}

	conf := Confirmation{Attempt: attempt, Message: receipt.Message, TransactionID: receipt.TransactionID}
	if conf.Message == "" {
		conf.Message = DefaultConfirmation
	}
	log.Info().Str("transaction_id", receipt.TransactionID).Msg("unrecorded trade reconciled")
	c.notify(ctx, attempt, conf.Message, log)
	return conf, nil
}

// ReconcileReport summarises a Reconcile pass.
type ReconcileReport struct {
	Recorded []Confirmation
	Failed   map[string]error
}

// Reconcile retries every pending journal entry once, in journal order.
func (c *Coordinator) Reconcile(ctx context.Context) (ReconcileReport, error) {
	report := ReconcileReport{Failed: make(map[string]error)}
	if c.journal == nil {
		return report, nil
	}

	pending, err := c.journal.Pending()
	if err != nil {
		return report, fmt.Errorf("list unrecorded trades: %w", err)
	}

	for _, entry := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		conf, err := c.retryEntry(ctx, entry)
		if err != nil {
			report.Failed[entry.AttemptID] = err
			continue
		}
		report.Recorded = append(report.Recorded, conf)
	}

	c.logger.Info().Int("recorded", len(report.Recorded)).Int("failed", len(report.Failed)).Msg("reconcile finished")
	return report, nil
}

// Pending lists trades that executed without a ledger row.
func (c *Coordinator) Pending() ([]journal.Entry, error) {
	if c.journal == nil {
		return nil, nil
	}
	return c.journal.Pending()
}

func (c *Coordinator) journalUnrecorded(attempt Attempt, reason string, log zerolog.Logger) bool {
	if c.journal == nil {
		return false
	}
	entry := journal.Entry{
		AttemptID:  attempt.ID,
		Signal:     string(attempt.Signal),
		Ticker:     attempt.Ticker,
		Result:     attempt.Result.Bytes(),
		Reason:     reason,
		ExecutedAt: attempt.StartedAt,
	}
	if err := c.journal.Append(entry); err != nil {
		log.Error().Err(err).Msg("failed to journal unrecorded trade")
		return false
	}
	return true
}

func (c *Coordinator) notify(ctx context.Context, attempt Attempt, detail string, log zerolog.Logger) {
	if c.notifier == nil {
		return
	}

	note := alerting.Notification{
		AttemptID:  attempt.ID,
		Ticker:     attempt.Ticker,
		Signal:     string(attempt.Signal),
		State:      string(attempt.State),
		Detail:     detail,
		OccurredAt: c.now(),
	}
	if summary, err := attempt.Result.Summary(); err == nil {
		note.Quantity = summary.Quantity
		note.OrderID = summary.OrderID
	}

	if err := c.notifier.Notify(ctx, note); err != nil {
		log.Error().Err(err).Msg("failed to dispatch trade notification")
	}
}

func failureDetail(err error) string {
	if detail := gateway.DetailOf(err); detail != "" {
		return detail
	}
	return err.Error()
}
