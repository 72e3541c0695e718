package trade

import (
	"errors"
	"fmt"
	"time"

	"tradedesk/internal/gateway"
)

// State is the position of one attempt in the execute → record sequence.
type State string

const (
	StatePending         State = "PENDING"
	StateExecuted        State = "EXECUTED"
	StateRecorded        State = "RECORDED"
	StateExecutionFailed State = "EXECUTION_FAILED"
	StateRecordingFailed State = "RECORDING_FAILED"
)

// Terminal reports whether no further transition can happen within the attempt.
func (s State) Terminal() bool {
	switch s {
	case StateRecorded, StateExecutionFailed, StateRecordingFailed:
		return true
	default:
		return false
	}
}

var (
	// ErrNoActiveSignal means the snapshot had no signal or ticker; nothing was sent.
	ErrNoActiveSignal = errors.New("no active signal")
	// ErrExecutionFailed means the execute phase failed and the ledger is untouched.
	ErrExecutionFailed = errors.New("trade execution failed")
	// ErrPersistenceFailed means the trade executed externally but is not in the ledger.
	ErrPersistenceFailed = errors.New("trade executed but not recorded")
	// ErrNotJournaled is returned by RetryRecord for unknown or resolved attempts.
	ErrNotJournaled = errors.New("no unrecorded trade for attempt")
)

// DefaultConfirmation is used when the ledger acknowledges without a message.
const DefaultConfirmation = "Trade executed and saved."

// Attempt tracks a single execute → record invocation.
type Attempt struct {
	ID        string
	Signal    gateway.Signal
	Ticker    string
	State     State
	Result    gateway.TradeExecutionResult
	StartedAt time.Time
}

func (a *Attempt) transition(next State) {
	a.State = next
}

// Confirmation is returned when both phases succeed.
type Confirmation struct {
	Attempt       Attempt
	Message       string
	TransactionID string
}

// Error carries the failed phase. Executed reports whether the external side
// effect already happened.
type Error struct {
	Attempt   Attempt
	Detail    string
	Journaled bool
	Err       error
}

func (e *Error) Error() string {
	switch e.Attempt.State {
	case StateExecutionFailed:
		return fmt.Sprintf("%s %s: %s: %s", e.Attempt.Signal, e.Attempt.Ticker, ErrExecutionFailed, e.Detail)
	case StateRecordingFailed:
		return fmt.Sprintf("%s %s (attempt %s): %s: %s", e.Attempt.Signal, e.Attempt.Ticker, e.Attempt.ID, ErrPersistenceFailed, e.Detail)
	default:
		return fmt.Sprintf("%s %s: %v", e.Attempt.Signal, e.Attempt.Ticker, e.Err)
	}
}

// Unwrap exposes the phase sentinel and the gateway cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	switch e.Attempt.State {
	case StateExecutionFailed:
		errs = append(errs, ErrExecutionFailed)
	case StateRecordingFailed:
		errs = append(errs, ErrPersistenceFailed)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Executed is true when the brokerage accepted the trade.
func (e *Error) Executed() bool {
	return e.Attempt.State == StateRecordingFailed
}
