package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vadiminshakov/gowal"
)

const (
	defaultDir              = "./wal/unrecorded"
	defaultSegmentThreshold = 1000
	defaultMaxSegments      = 100

	pendingKeyPrefix  = "pending_"
	resolvedKeyPrefix = "resolved_"
)

// ErrClosed is returned when the journal is used after Close.
var ErrClosed = errors.New("journal: not initialised")

// Entry is a trade that executed but whose ledger record was not saved.
// Result holds the exact execute-trade response body.
type Entry struct {
	AttemptID  string    `json:"attempt_id"`
	Signal     string    `json:"signal"`
	Ticker     string    `json:"ticker"`
	Result     []byte    `json:"result"`
	Reason     string    `json:"reason"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Options configure the write-ahead log.
type Options struct {
	Dir              string
	SegmentThreshold int
	MaxSegments      int
	SyncWrites       bool
}

// WAL persists unrecorded trades so they can be resubmitted later.
type WAL struct {
	wal    *gowal.Wal
	mu     sync.RWMutex
	logger zerolog.Logger
}

// Open initialises (or recovers) the journal under opts.Dir.
func Open(opts Options, logger zerolog.Logger) (*WAL, error) {
	if opts.Dir == "" {
		opts.Dir = defaultDir
	}
	if opts.SegmentThreshold <= 0 {
		opts.SegmentThreshold = defaultSegmentThreshold
	}
	if opts.MaxSegments <= 0 {
		opts.MaxSegments = defaultMaxSegments
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              opts.Dir,
		Prefix:           "unrecorded_",
		SegmentThreshold: opts.SegmentThreshold,
		MaxSegments:      opts.MaxSegments,
		IsInSyncDiskMode: opts.SyncWrites,
	})
	if err != nil {
		return nil, fmt.Errorf("open trade journal: %w", err)
	}

	return &WAL{wal: wal, logger: logger.With().Str("component", "journal").Logger()}, nil
}

// Append stores an unrecorded trade.
func (j *WAL) Append(entry Entry) error {
	if j == nil || j.wal == nil {
		return ErrClosed
	}
	if entry.AttemptID == "" {
		return errors.New("journal entry attempt id is required")
	}
	if len(entry.Result) == 0 {
		return errors.New("journal entry result is required")
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.wal.Write(j.wal.CurrentIndex()+1, pendingKeyPrefix+entry.AttemptID, payload); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	j.logger.Info().Str("attempt_id", entry.AttemptID).Str("ticker", entry.Ticker).Msg("unrecorded trade journaled")
	return nil
}

// Resolve marks attemptID as recorded.
func (j *WAL) Resolve(attemptID string) error {
	if j == nil || j.wal == nil {
		return ErrClosed
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	stamp := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	if err := j.wal.Write(j.wal.CurrentIndex()+1, resolvedKeyPrefix+attemptID, stamp); err != nil {
		return fmt.Errorf("resolve journal entry: %w", err)
	}
	return nil
}

// Pending lists unresolved entries in the order they were journaled.
func (j *WAL) Pending() ([]Entry, error) {
	if j == nil || j.wal == nil {
		return nil, ErrClosed
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	var (
		order    []string
		entries  = make(map[string]Entry)
		resolved = make(map[string]struct{})
	)
	for msg := range j.wal.Iterator() {
		switch {
		case strings.HasPrefix(msg.Key, pendingKeyPrefix):
			var entry Entry
			if err := json.Unmarshal(msg.Value, &entry); err != nil {
				return nil, fmt.Errorf("decode journal entry: %w", err)
			}
			if _, seen := entries[entry.AttemptID]; !seen {
				order = append(order, entry.AttemptID)
			}
			entries[entry.AttemptID] = entry
		case strings.HasPrefix(msg.Key, resolvedKeyPrefix):
			resolved[strings.TrimPrefix(msg.Key, resolvedKeyPrefix)] = struct{}{}
		}
	}

	pending := make([]Entry, 0, len(order))
	for _, id := range order {
		if _, done := resolved[id]; done {
			continue
		}
		pending = append(pending, entries[id])
	}
	return pending, nil
}

// Lookup returns the unresolved entry for attemptID.
func (j *WAL) Lookup(attemptID string) (Entry, bool, error) {
	pending, err := j.Pending()
	if err != nil {
		return Entry{}, false, err
	}
	for _, entry := range pending {
		if entry.AttemptID == attemptID {
			return entry, true, nil
		}
	}
	return Entry{}, false, nil
}

// Close flushes and closes the log.
func (j *WAL) Close() error {
	if j == nil || j.wal == nil {
		return ErrClosed
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	return j.wal.Close()
}
