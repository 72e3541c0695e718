package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL, Timeout: time.Second, UserAgent: "test"}, zerolog.Nop())
}

func TestPredictSuccess(t *testing.T) {
	plot := []byte{0x89, 'P', 'N', 'G'}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("ticker"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Equal(t, "test", r.Header.Get("User-Agent"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ticker":          "AAPL",
			"current_price":   150.00,
			"predicted_price": 155.00,
			"signal":          "Buy",
			"plot_base64":     base64.StdEncoding.EncodeToString(plot),
			"VaR_95_percent":  nil,
		})
	})

	snap, err := client.Predict(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", snap.Ticker)
	assert.True(t, snap.CurrentPrice.Equal(decimal.NewFromInt(150)))
	assert.True(t, snap.PredictedPrice.Equal(decimal.NewFromInt(155)))
	assert.Equal(t, SignalBuy, snap.Signal)
	assert.Equal(t, plot, snap.PlotPNG)
	assert.Nil(t, snap.ValueAtRisk)
}

func TestPredictIsRepeatable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ticker":"MSFT","current_price":410.5,"predicted_price":401.25,"signal":"Sell","VaR_95_percent":-0.031}`)
	})

	first, err := client.Predict(context.Background(), "MSFT")
	require.NoError(t, err)
	second, err := client.Predict(context.Background(), "MSFT")
	require.NoError(t, err)

	assert.True(t, first.Equal(second))
	require.NotNil(t, first.ValueAtRisk)
	assert.Equal(t, "-0.031", first.ValueAtRisk.String())
}

func TestPredictInvalidTicker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"unknown ticker ZZZZ"}`)
	})

	_, err := client.Predict(context.Background(), "ZZZZ")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTicker)
	assert.ErrorIs(t, err, ErrValidationRejected)
	assert.Equal(t, "unknown ticker ZZZZ", DetailOf(err))
}

func TestPredictServerErrorIsInvalidTicker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"detail":"No data found for ticker ZZZZ"}`)
	})

	_, err := client.Predict(context.Background(), "ZZZZ")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTicker)
	assert.NotErrorIs(t, err, ErrValidationRejected)
	assert.Equal(t, "No data found for ticker ZZZZ", DetailOf(err))
}

func TestPredictUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(Options{BaseURL: url, Timeout: time.Second}, zerolog.Nop())
	_, err := client.Predict(context.Background(), "AAPL")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServiceUnreachable)
}

func TestExecuteTradeSendsWireSignal(t *testing.T) {
	body := `{"message":"Trade Buy executed for AAPL","trade_result":{"status":"success","action":"Buy","ticker":"AAPL","qty":1,"order_id":"abc123"}}`
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/execute-trade", r.URL.Path)
		assert.Equal(t, "Buy", r.URL.Query().Get("signal"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("ticker"))
		_, _ = io.WriteString(w, body)
	})

	result, err := client.ExecuteTrade(context.Background(), SignalBuy, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, body, string(result))

	summary, err := result.Summary()
	require.NoError(t, err)
	assert.Equal(t, "AAPL", summary.Ticker)
	assert.Equal(t, "abc123", summary.OrderID)
	assert.True(t, summary.Quantity.Equal(decimal.NewFromInt(1)))
}

func TestExecuteTradeRejected(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		detail string
	}{
		{name: "detail provided", status: http.StatusBadRequest, body: `{"detail":"Market closed"}`, detail: "Market closed"},
		{name: "no detail", status: http.StatusInternalServerError, body: `{}`, detail: "trade execution failed"},
		{name: "non json", status: http.StatusBadGateway, body: `upstream down`, detail: "trade execution failed"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})

			_, err := client.ExecuteTrade(context.Background(), SignalSell, "TSLA")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrExecutionRejected)
			assert.Equal(t, tc.detail, DetailOf(err))
		})
	}
}

func TestRecordTransactionPassesBytesThrough(t *testing.T) {
	payload := TradeExecutionResult(`{"ticker":"AAPL","action":"BUY","quantity":10,"status":"FILLED","order_id":"abc123"}`)
	var received []byte
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/record-transaction", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		received, _ = io.ReadAll(r.Body)
		_, _ = io.WriteString(w, `{"message":"saved","transaction_id":"tx-1"}`)
	})

	receipt, err := client.RecordTransaction(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, []byte(payload), received)
	assert.Equal(t, "saved", receipt.Message)
	assert.Equal(t, "tx-1", receipt.TransactionID)
}

func TestRecordTransactionRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"detail":"Failed to record transaction: db down"}`)
	})

	_, err := client.RecordTransaction(context.Background(), TradeExecutionResult(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistenceRejected)
	assert.False(t, errors.Is(err, ErrValidationRejected))
	assert.Equal(t, "Failed to record transaction: db down", DetailOf(err))
}

func TestListTransactions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"success","data":[
			{"_id":"665f1","ticker":"AAPL","action":"Buy","quantity":1.0,"status":"success","message":"Buy order submitted for AAPL","order_id":"o-1","executed_at":"2024-05-10T14:03:11.512000"},
			{"_id":"665f2","ticker":"TSLA","action":"Hold","quantity":0,"status":"skipped","message":null,"order_id":null,"executed_at":"2024-05-10T15:00:00Z"}
		]}`)
	})

	records, err := client.ListTransactions(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "665f1", records[0].ID)
	require.NotNil(t, records[0].OrderID)
	assert.Equal(t, "o-1", *records[0].OrderID)
	assert.True(t, time.Date(2024, 5, 10, 14, 3, 11, 512000000, time.UTC).Equal(records[0].ExecutedAt))

	assert.Equal(t, "665f2", records[1].ID)
	assert.Nil(t, records[1].OrderID)
	assert.Empty(t, records[1].Message)
}

func TestListTransactionsKeepsRowWithUnparseableTimestamp(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"success","data":[
			{"_id":"a","ticker":"AAPL","action":"Buy","quantity":1,"status":"success","executed_at":"2024-05-10T14:03:11"},
			{"_id":"b","ticker":"TSLA","action":"Sell","quantity":2,"status":"success","executed_at":"2025-05-01"}
		]}`)
	})

	records, err := client.ListTransactions(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.False(t, records[0].ExecutedAt.IsZero())
	assert.Empty(t, records[0].UnparsedTimestamp())

	assert.Equal(t, "b", records[1].ID)
	assert.True(t, records[1].ExecutedAt.IsZero())
	assert.Equal(t, "2025-05-01", records[1].UnparsedTimestamp())
}

func TestListTransactionsFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.ListTransactions(context.Background())
	assert.ErrorIs(t, err, ErrServiceUnreachable)
}

func TestLoginAndRegister(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/register":
			var reg Registration
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&reg))
			if reg.Email == "taken@example.com" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"detail":"Email already registered"}`)
				return
			}
			_, _ = io.WriteString(w, `{"message":"User registered successfully"}`)
		case "/login":
			_, _ = io.WriteString(w, `{"message":"Login successful","user":{"_id":"u1","username":"jo","email":"jo@example.com","full_name":"Jo Doe"}}`)
		}
	})

	msg, err := client.Register(context.Background(), Registration{Username: "jo", Email: "jo@example.com", Password: "pw", FullName: "Jo Doe"})
	require.NoError(t, err)
	assert.Equal(t, "User registered successfully", msg)

	_, err = client.Register(context.Background(), Registration{Email: "taken@example.com"})
	assert.ErrorIs(t, err, ErrValidationRejected)
	assert.Equal(t, "Email already registered", DetailOf(err))

	res, err := client.Login(context.Background(), Credentials{Email: "jo@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "u1", res.User.ID)
}

func TestAccountStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"success","account_status":"ACTIVE","buying_power":"2000.50","equity":"1000","cash":"1000"}`)
	})

	acct, err := client.AccountStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", acct.AccountStatus)
	assert.Equal(t, "2000.5", acct.BuyingPower.String())
}

func TestSignalWire(t *testing.T) {
	for in, want := range map[string]Signal{"buy": SignalBuy, "SELL": SignalSell, " Hold ": SignalHold} {
		got, err := ParseSignal(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, "Hold", SignalHold.Wire())

	_, err := ParseSignal("short")
	assert.Error(t, err)
}
