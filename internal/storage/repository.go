package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"tradedesk/internal/alerting"
	"tradedesk/internal/gateway"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createSchemaSQL = `CREATE TABLE IF NOT EXISTS ledger_transactions (
        id          TEXT PRIMARY KEY,
        ticker      TEXT NOT NULL,
        action      TEXT NOT NULL,
        quantity    NUMERIC NOT NULL,
        price       NUMERIC,
        status      TEXT NOT NULL DEFAULT '',
        message     TEXT NOT NULL DEFAULT '',
        order_id    TEXT,
        executed_at TIMESTAMPTZ,
        position    INTEGER NOT NULL,
        mirrored_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );
    CREATE INDEX IF NOT EXISTS ledger_transactions_executed_at_idx ON ledger_transactions (executed_at);
    CREATE TABLE IF NOT EXISTS trade_attempts (
        id          BIGSERIAL PRIMARY KEY,
        attempt_id  TEXT NOT NULL,
        ticker      TEXT NOT NULL,
        signal      TEXT NOT NULL,
        state       TEXT NOT NULL,
        quantity    NUMERIC NOT NULL DEFAULT 0,
        order_id    TEXT,
        detail      TEXT NOT NULL DEFAULT '',
        created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`

	deleteTransactionsSQL = `DELETE FROM ledger_transactions;`

	insertTransactionSQL = `INSERT INTO ledger_transactions (
        id,
        ticker,
        action,
        quantity,
        price,
        status,
        message,
        order_id,
        executed_at,
        position
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    );`

	listTransactionsSQL = `SELECT
        id,
        ticker,
        action,
        quantity::text,
        price::text,
        status,
        message,
        order_id,
        executed_at
    FROM ledger_transactions
    ORDER BY position
    LIMIT NULLIF($1::int, 0);`

	listTransactionsBetweenSQL = `SELECT
        id,
        ticker,
        action,
        quantity::text,
        price::text,
        status,
        message,
        order_id,
        executed_at
    FROM ledger_transactions
    WHERE executed_at >= $1
      AND executed_at < $2
    ORDER BY executed_at;`

	countTransactionsSQL = `SELECT COUNT(*) FROM ledger_transactions;`

	insertAttemptSQL = `INSERT INTO trade_attempts (
        attempt_id,
        ticker,
        signal,
        state,
        quantity,
        order_id,
        detail
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING id, created_at;`

	listRecentAttemptsSQL = `SELECT
        id,
        attempt_id,
        ticker,
        signal,
        state,
        quantity::text,
        order_id,
        detail,
        created_at
    FROM trade_attempts
    ORDER BY created_at DESC
    LIMIT NULLIF($1::int, 0);`
)

// LedgerMirror keeps a local copy of the remote ledger.
type LedgerMirror interface {
	ReplaceTransactions(ctx context.Context, records []gateway.TransactionRecord) error
	ListTransactions(ctx context.Context, limit int) ([]gateway.TransactionRecord, error)
	ListTransactionsBetween(ctx context.Context, from, to time.Time) ([]gateway.TransactionRecord, error)
	CountTransactions(ctx context.Context) (int64, error)
}

// AttemptStore audits trade attempts.
type AttemptStore interface {
	InsertAttempt(ctx context.Context, attempt AttemptRecord) (AttemptRecord, error)
	ListRecentAttempts(ctx context.Context, limit int) ([]AttemptRecord, error)
}

// Store aggregates the ledger mirror and the attempt audit log.
type Store struct {
	db DB
}

// NewStore wires a pgx pool into a Store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

func (s *Store) getDB() (DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// EnsureSchema creates the mirror tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if _, err := db.Exec(ctx, createSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// ReplaceTransactions swaps the mirrored ledger for records in one transaction.
// Order is kept through the position column.
func (s *Store) ReplaceTransactions(ctx context.Context, records []gateway.TransactionRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace transactions: %w", err)
	}

	if _, err := tx.Exec(ctx, deleteTransactionsSQL); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("clear mirrored transactions: %w", err)
	}

	for i, rec := range records {
		var price any
		if rec.Price != nil {
			price = rec.Price.String()
		}
		var executedAt any
		if !rec.ExecutedAt.IsZero() {
			executedAt = rec.ExecutedAt
		}

		if _, err := tx.Exec(ctx, insertTransactionSQL,
			rec.ID,
			rec.Ticker,
			rec.Action,
			rec.Quantity.String(),
			price,
			rec.Status,
			rec.Message,
			rec.OrderID,
			executedAt,
			i,
		); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("insert transaction %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace transactions: %w", err)
	}
	return nil
}

// ListTransactions lists up to limit mirrored rows in ledger order. A limit
// of zero or less lists every row.
func (s *Store) ListTransactions(ctx context.Context, limit int) ([]gateway.TransactionRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	limit = max(limit, 0)

	rows, queryErr := db.Query(ctx, listTransactionsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list transactions: %w", queryErr)
	}
	return collectTransactions(rows)
}

// ListTransactionsBetween lists mirrored rows executed within [from, to).
func (s *Store) ListTransactionsBetween(ctx context.Context, from, to time.Time) ([]gateway.TransactionRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, queryErr := db.Query(ctx, listTransactionsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list transactions between: %w", queryErr)
	}
	return collectTransactions(rows)
}

// CountTransactions counts mirrored rows.
func (s *Store) CountTransactions(ctx context.Context) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := db.QueryRow(ctx, countTransactionsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count transactions: %w", scanErr)
	}
	return count, nil
}

// InsertAttempt persists a trade attempt outcome.
func (s *Store) InsertAttempt(ctx context.Context, attempt AttemptRecord) (AttemptRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return AttemptRecord{}, err
	}

	row := db.QueryRow(ctx, insertAttemptSQL,
		attempt.AttemptID,
		attempt.Ticker,
		attempt.Signal,
		attempt.State,
		attempt.Quantity.String(),
		attempt.OrderID,
		attempt.Detail,
	)

	rec := attempt
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return AttemptRecord{}, fmt.Errorf("insert attempt: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAttempts lists most recent attempts first. A limit of zero or
// less lists every attempt.
func (s *Store) ListRecentAttempts(ctx context.Context, limit int) ([]AttemptRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	limit = max(limit, 0)

	rows, queryErr := db.Query(ctx, listRecentAttemptsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent attempts: %w", queryErr)
	}
	defer rows.Close()

	attempts := make([]AttemptRecord, 0, limit)
	for rows.Next() {
		var rec AttemptRecord
		var quantityStr string
		if err := rows.Scan(
			&rec.ID,
			&rec.AttemptID,
			&rec.Ticker,
			&rec.Signal,
			&rec.State,
			&quantityStr,
			&rec.OrderID,
			&rec.Detail,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		quantity, convErr := decimal.NewFromString(quantityStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse attempt quantity: %w", convErr)
		}
		rec.Quantity = quantity
		attempts = append(attempts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return attempts, nil
}

// Notify records a trade notification in the audit log.
func (s *Store) Notify(ctx context.Context, note alerting.Notification) error {
	rec := AttemptRecord{
		AttemptID: note.AttemptID,
		Ticker:    note.Ticker,
		Signal:    note.Signal,
		State:     note.State,
		Quantity:  note.Quantity,
		Detail:    note.Detail,
	}
	if note.OrderID != "" {
		orderID := note.OrderID
		rec.OrderID = &orderID
	}
	_, err := s.InsertAttempt(ctx, rec)
	return err
}

func collectTransactions(rows pgx.Rows) ([]gateway.TransactionRecord, error) {
	defer rows.Close()

	records := make([]gateway.TransactionRecord, 0)
	for rows.Next() {
		rec, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanTransaction(rows pgx.Rows) (gateway.TransactionRecord, error) {
	var (
		rec         gateway.TransactionRecord
		quantityStr string
		priceStr    *string
		executedAt  *time.Time
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.Ticker,
		&rec.Action,
		&quantityStr,
		&priceStr,
		&rec.Status,
		&rec.Message,
		&rec.OrderID,
		&executedAt,
	); err != nil {
		return gateway.TransactionRecord{}, err
	}

	quantity, err := decimal.NewFromString(quantityStr)
	if err != nil {
		return gateway.TransactionRecord{}, fmt.Errorf("parse quantity: %w", err)
	}
	rec.Quantity = quantity

	if priceStr != nil {
		price, err := decimal.NewFromString(*priceStr)
		if err != nil {
			return gateway.TransactionRecord{}, fmt.Errorf("parse price: %w", err)
		}
		rec.Price = &price
	}
	if executedAt != nil {
		rec.ExecutedAt = executedAt.UTC()
	}

	return rec, nil
}

var (
	_ LedgerMirror      = (*Store)(nil)
	_ AttemptStore      = (*Store)(nil)
	_ alerting.Notifier = (*Store)(nil)
)
