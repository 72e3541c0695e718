package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// AttemptRecord audits one trade attempt outcome.
type AttemptRecord struct {
	ID        int64
	AttemptID string
	Ticker    string
	Signal    string
	State     string
	Quantity  decimal.Decimal
	OrderID   *string
	Detail    string
	CreatedAt time.Time
}
