package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Signal is the trading recommendation attached to a prediction.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// ParseSignal accepts any casing of buy/sell/hold.
func ParseSignal(v string) (Signal, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "BUY":
		return SignalBuy, nil
	case "SELL":
		return SignalSell, nil
	case "HOLD":
		return SignalHold, nil
	case "":
		return "", nil
	default:
		return "", fmt.Errorf("unknown signal %q", v)
	}
}

// Wire returns the spelling the trading backend expects ("Buy", "Sell", "Hold").
func (s Signal) Wire() string {
	if s == "" {
		return ""
	}
	lower := strings.ToLower(string(s))
	return strings.ToUpper(lower[:1]) + lower[1:]
}

// UnmarshalJSON decodes the backend's title-case signal.
func (s *Signal) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSignal(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// PredictionSnapshot is one immutable answer of the prediction endpoint.
type PredictionSnapshot struct {
	Ticker         string
	CurrentPrice   decimal.Decimal
	PredictedPrice decimal.Decimal
	Signal         Signal
	PlotPNG        []byte
	ValueAtRisk    *decimal.Decimal
}

// HasPlot reports whether the backend shipped a rendered chart.
func (p PredictionSnapshot) HasPlot() bool {
	return len(p.PlotPNG) > 0
}

// Equal compares snapshots structurally.
func (p PredictionSnapshot) Equal(o PredictionSnapshot) bool {
	if p.Ticker != o.Ticker || p.Signal != o.Signal {
		return false
	}
	if !p.CurrentPrice.Equal(o.CurrentPrice) || !p.PredictedPrice.Equal(o.PredictedPrice) {
		return false
	}
	if !bytes.Equal(p.PlotPNG, o.PlotPNG) {
		return false
	}
	switch {
	case p.ValueAtRisk == nil && o.ValueAtRisk == nil:
		return true
	case p.ValueAtRisk == nil || o.ValueAtRisk == nil:
		return false
	default:
		return p.ValueAtRisk.Equal(*o.ValueAtRisk)
	}
}

type predictResponse struct {
	Ticker         string              `json:"ticker"`
	CurrentPrice   decimal.Decimal     `json:"current_price"`
	PredictedPrice decimal.Decimal     `json:"predicted_price"`
	Signal         Signal              `json:"signal"`
	PlotBase64     string              `json:"plot_base64"`
	ValueAtRisk    decimal.NullDecimal `json:"VaR_95_percent"`
}

// TradeExecutionResult is the raw body returned by execute-trade. It is never
// mutated; the record call sends these exact bytes back.
type TradeExecutionResult []byte

// Bytes returns a copy of the payload.
func (r TradeExecutionResult) Bytes() []byte {
	out := make([]byte, len(r))
	copy(out, r)
	return out
}

// TradeSummary is a read-only view of the fields a trade result usually carries.
type TradeSummary struct {
	Ticker   string
	Action   string
	Quantity decimal.Decimal
	Status   string
	Message  string
	OrderID  string
}

type tradeResultFields struct {
	Ticker   string              `json:"ticker"`
	Action   string              `json:"action"`
	Qty      decimal.NullDecimal `json:"qty"`
	Quantity decimal.NullDecimal `json:"quantity"`
	Status   string              `json:"status"`
	Message  string              `json:"message"`
	OrderID  *string             `json:"order_id"`
}

// Summary decodes the result either directly or from a "trade_result" envelope.
func (r TradeExecutionResult) Summary() (TradeSummary, error) {
	var envelope struct {
		Message     string          `json:"message"`
		TradeResult json.RawMessage `json:"trade_result"`
	}
	if err := json.Unmarshal(r, &envelope); err != nil {
		return TradeSummary{}, fmt.Errorf("decode trade result: %w", err)
	}

	body := []byte(r)
	if len(envelope.TradeResult) > 0 && !bytes.Equal(envelope.TradeResult, []byte("null")) {
		body = envelope.TradeResult
	}

	var fields tradeResultFields
	if err := json.Unmarshal(body, &fields); err != nil {
		return TradeSummary{}, fmt.Errorf("decode trade result: %w", err)
	}

	summary := TradeSummary{
		Ticker:  fields.Ticker,
		Action:  fields.Action,
		Status:  fields.Status,
		Message: fields.Message,
	}
	if summary.Message == "" {
		summary.Message = envelope.Message
	}
	switch {
	case fields.Qty.Valid:
		summary.Quantity = fields.Qty.Decimal
	case fields.Quantity.Valid:
		summary.Quantity = fields.Quantity.Decimal
	}
	if fields.OrderID != nil {
		summary.OrderID = *fields.OrderID
	}
	return summary, nil
}

// RecordReceipt is the record-transaction acknowledgement.
type RecordReceipt struct {
	Message       string `json:"message"`
	TransactionID string `json:"transaction_id"`
}

// TransactionRecord is one persisted ledger row.
type TransactionRecord struct {
	ID         string
	Ticker     string
	Action     string
	Quantity   decimal.Decimal
	Price      *decimal.Decimal
	Status     string
	Message    string
	OrderID    *string
	ExecutedAt time.Time

	// rawExecutedAt keeps a timestamp that could not be parsed.
	rawExecutedAt string
}

// UnparsedTimestamp returns the executed_at value that could not be parsed,
// if any. ExecutedAt is zero in that case.
func (t TransactionRecord) UnparsedTimestamp() string {
	return t.rawExecutedAt
}

// UnmarshalJSON accepts both "_id" and "id" and the naive timestamps the
// backend emits. An unparseable timestamp leaves ExecutedAt zero rather than
// failing the row.
func (t *TransactionRecord) UnmarshalJSON(data []byte) error {
	var wire struct {
		MongoID    string              `json:"_id"`
		ID         string              `json:"id"`
		Ticker     string              `json:"ticker"`
		Action     string              `json:"action"`
		Quantity   decimal.NullDecimal `json:"quantity"`
		Price      decimal.NullDecimal `json:"price"`
		Status     *string             `json:"status"`
		Message    *string             `json:"message"`
		OrderID    *string             `json:"order_id"`
		ExecutedAt *string             `json:"executed_at"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	rec := TransactionRecord{
		ID:       wire.MongoID,
		Ticker:   wire.Ticker,
		Action:   wire.Action,
		Quantity: wire.Quantity.Decimal,
		OrderID:  wire.OrderID,
	}
	if rec.ID == "" {
		rec.ID = wire.ID
	}
	if wire.Price.Valid {
		price := wire.Price.Decimal
		rec.Price = &price
	}
	if wire.Status != nil {
		rec.Status = *wire.Status
	}
	if wire.Message != nil {
		rec.Message = *wire.Message
	}
	if wire.ExecutedAt != nil && *wire.ExecutedAt != "" {
		if ts, err := ParseTimestamp(*wire.ExecutedAt); err == nil {
			rec.ExecutedAt = ts
		} else {
			rec.rawExecutedAt = *wire.ExecutedAt
		}
	}

	*t = rec
	return nil
}

// MarshalJSON emits the wire shape used by the backend.
func (t TransactionRecord) MarshalJSON() ([]byte, error) {
	wire := struct {
		ID         string           `json:"_id"`
		Ticker     string           `json:"ticker"`
		Action     string           `json:"action"`
		Quantity   decimal.Decimal  `json:"quantity"`
		Price      *decimal.Decimal `json:"price,omitempty"`
		Status     string           `json:"status"`
		Message    string           `json:"message"`
		OrderID    *string          `json:"order_id"`
		ExecutedAt string           `json:"executed_at,omitempty"`
	}{
		ID:       t.ID,
		Ticker:   t.Ticker,
		Action:   t.Action,
		Quantity: t.Quantity,
		Price:    t.Price,
		Status:   t.Status,
		Message:  t.Message,
		OrderID:  t.OrderID,
	}
	if !t.ExecutedAt.IsZero() {
		wire.ExecutedAt = t.ExecutedAt.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(wire)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses RFC3339 or naive ISO-8601 (assumed UTC).
func ParseTimestamp(v string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", v)
}

type listTransactionsResponse struct {
	Status string              `json:"status"`
	Data   []TransactionRecord `json:"data"`
}

// Registration is the register request body.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// Credentials is the login request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// User is the profile returned on login.
type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// LoginResult carries the login acknowledgement. No session is kept.
type LoginResult struct {
	Message string `json:"message"`
	User    User   `json:"user"`
}

// Account describes the brokerage account backing trade execution.
type Account struct {
	Status        string          `json:"status"`
	AccountStatus string          `json:"account_status"`
	BuyingPower   decimal.Decimal `json:"buying_power"`
	Equity        decimal.Decimal `json:"equity"`
	Cash          decimal.Decimal `json:"cash"`
	Message       string          `json:"message"`
}
