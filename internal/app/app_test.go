package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedesk/internal/cache"
	"tradedesk/internal/config"
	"tradedesk/internal/storage"
	"tradedesk/internal/trade"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

const executeBody = `{"message":"Trade executed","trade_result":{"status":"FILLED","action":"Buy","ticker":"AAPL","qty":10,"order_id":"abc123"}}`

type backend struct {
	signal       string
	recordStatus atomic.Int32
	executeCalls atomic.Int32
	recordCalls  atomic.Int32
	listCalls    atomic.Int32
	executeCode  int
	executeReply string

	mu           sync.Mutex
	recordBodies []string
}

func newBackend(t *testing.T, b *backend) *httptest.Server {
	t.Helper()
	if b.signal == "" {
		b.signal = "Buy"
	}
	if b.executeCode == 0 {
		b.executeCode = http.StatusOK
		b.executeReply = executeBody
	}
	if b.recordStatus.Load() == 0 {
		b.recordStatus.Store(http.StatusOK)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/predict":
			_, _ = io.WriteString(w, `{"ticker":"`+r.URL.Query().Get("ticker")+`","current_price":150.00,"predicted_price":155.00,"signal":"`+b.signal+`"}`)
		case "/execute-trade":
			b.executeCalls.Add(1)
			w.WriteHeader(b.executeCode)
			_, _ = io.WriteString(w, b.executeReply)
		case "/record-transaction":
			b.recordCalls.Add(1)
			body, _ := io.ReadAll(r.Body)
			b.mu.Lock()
			b.recordBodies = append(b.recordBodies, string(body))
			b.mu.Unlock()
			status := int(b.recordStatus.Load())
			w.WriteHeader(status)
			if status == http.StatusOK {
				_, _ = io.WriteString(w, `{"message":"Transaction recorded successfully","transaction_id":"tx-1"}`)
			} else {
				_, _ = io.WriteString(w, `{"detail":"Failed to record transaction"}`)
			}
		case "/transactions":
			b.listCalls.Add(1)
			_, _ = io.WriteString(w, `{"status":"success","data":[{"_id":"tx-1","ticker":"AAPL","action":"BUY","quantity":10,"status":"FILLED","message":"ok","order_id":"abc123","executed_at":"2024-03-01T10:00:00.123456"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T, baseURL string) (*App, *syncBuffer) {
	t.Helper()
	cfg := &config.Config{
		Gateway: config.GatewayConfig{BaseURL: baseURL, RequestTimeout: 2 * time.Second, UserAgent: "tradedesk-test"},
		Poller:  config.PollerConfig{Interval: 20 * time.Millisecond},
		Journal: config.JournalConfig{Dir: t.TempDir()},
		Export:  config.ExportConfig{MaxDataPoints: 100},
	}
	out := &syncBuffer{}
	a := NewApp(cfg, zerolog.Nop())
	a.Out = out
	return a, out
}

func TestTradeRecordsExactResult(t *testing.T) {
	b := &backend{}
	srv := newBackend(t, b)
	a, out := newTestApp(t, srv.URL)

	require.NoError(t, a.Trade(context.Background(), TradeOptions{Query: "Apple Inc"}))

	assert.Contains(t, out.String(), "Transaction recorded successfully")
	assert.Contains(t, out.String(), "tx-1")
	assert.Equal(t, int32(1), b.executeCalls.Load())
	require.Len(t, b.recordBodies, 1)
	assert.Equal(t, executeBody, b.recordBodies[0])
}

func TestTradeExecutionFailureLeavesLedgerAlone(t *testing.T) {
	b := &backend{executeCode: http.StatusBadRequest, executeReply: `{"detail":"Market closed"}`}
	srv := newBackend(t, b)
	a, out := newTestApp(t, srv.URL)

	err := a.Trade(context.Background(), TradeOptions{Query: "AAPL"})
	require.ErrorIs(t, err, trade.ErrExecutionFailed)

	assert.Contains(t, out.String(), "Trade failed: Market closed")
	assert.Contains(t, out.String(), "Nothing was executed")
	assert.Equal(t, int32(0), b.recordCalls.Load())
}

func TestTradeExecutedButNotSavedThenReconciled(t *testing.T) {
	b := &backend{}
	b.recordStatus.Store(http.StatusInternalServerError)
	srv := newBackend(t, b)
	a, out := newTestApp(t, srv.URL)

	err := a.Trade(context.Background(), TradeOptions{Query: "AAPL"})
	require.ErrorIs(t, err, trade.ErrPersistenceFailed)
	assert.Contains(t, out.String(), "EXECUTED by the broker but NOT saved")
	assert.Contains(t, out.String(), "tradedesk reconcile --attempt")

	listing := &syncBuffer{}
	a.Out = listing
	require.NoError(t, a.Reconcile(context.Background(), ReconcileOptions{ListOnly: true}))
	assert.Contains(t, listing.String(), "AAPL")

	b.recordStatus.Store(http.StatusOK)
	report := &syncBuffer{}
	a.Out = report
	require.NoError(t, a.Reconcile(context.Background(), ReconcileOptions{}))
	assert.Contains(t, report.String(), "1 recorded, 0 still pending")

	assert.Equal(t, int32(1), b.executeCalls.Load(), "reconcile must never re-execute")
	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.recordBodies, 2)
	assert.Equal(t, b.recordBodies[0], b.recordBodies[1])
}

func TestTradeHoldIsNotSent(t *testing.T) {
	b := &backend{signal: "Hold"}
	srv := newBackend(t, b)
	a, out := newTestApp(t, srv.URL)

	require.NoError(t, a.Trade(context.Background(), TradeOptions{Query: "MSFT"}))
	assert.Contains(t, out.String(), "Signal is HOLD")
	assert.Equal(t, int32(0), b.executeCalls.Load())
}

func TestPredictNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"detail":"No data found for ticker ZZZZ"}`)
	}))
	t.Cleanup(srv.Close)
	a, out := newTestApp(t, srv.URL)

	require.Error(t, a.Predict(context.Background(), PredictOptions{Query: "ZZZZ"}))
	assert.Contains(t, out.String(), `No data for "ZZZZ"`)
}

func TestPredictRendersSnapshot(t *testing.T) {
	srv := newBackend(t, &backend{})
	a, out := newTestApp(t, srv.URL)

	require.NoError(t, a.Predict(context.Background(), PredictOptions{Query: "tesla inc"}))
	assert.Contains(t, out.String(), "Prediction for TSLA")
	assert.Contains(t, out.String(), "$155.00 (+3.33%)")
	assert.Contains(t, out.String(), "BUY")
}

func TestWatchRendersLedgerUntilCancelled(t *testing.T) {
	srv := newBackend(t, &backend{})
	a, out := newTestApp(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Watch(ctx, WatchOptions{Limit: 10}) }()

	require.Eventually(t, func() bool {
		return bytes.Count([]byte(out.String()), []byte("abc123")) >= 2
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestLedgerOnline(t *testing.T) {
	srv := newBackend(t, &backend{})
	a, out := newTestApp(t, srv.URL)

	require.NoError(t, a.Ledger(context.Background(), LedgerOptions{Limit: 5}))
	assert.Contains(t, out.String(), "2024-03-01 10:00:00")
	assert.Contains(t, out.String(), "abc123")
}

func TestLedgerOfflineRequiresDatabase(t *testing.T) {
	a, _ := newTestApp(t, "http://127.0.0.1:1")
	assert.Error(t, a.Ledger(context.Background(), LedgerOptions{Offline: true}))
}

func TestTradeRefusedWhileAnotherProcessHoldsLock(t *testing.T) {
	b := &backend{}
	srv := newBackend(t, b)
	a, out := newTestApp(t, srv.URL)

	lockDir := filepath.Join(a.Config.Journal.Dir, "locks")
	require.NoError(t, os.MkdirAll(lockDir, 0o755))
	held := flock.New(filepath.Join(lockDir, "trade-BUY_AAPL.lock"))
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer held.Unlock()

	err = a.Trade(context.Background(), TradeOptions{Query: "AAPL"})
	require.ErrorIs(t, err, trade.ErrTradeInProgress)
	assert.Contains(t, out.String(), "already being placed by another tradedesk process")
	assert.Equal(t, int32(0), b.executeCalls.Load())
}

func TestTradeInvalidatesCachedPrediction(t *testing.T) {
	mr := miniredis.RunT(t)
	srv := newBackend(t, &backend{})
	a, _ := newTestApp(t, srv.URL)
	a.Config.Cache = config.CacheConfig{Addr: mr.Addr(), TTL: time.Minute}

	require.NoError(t, a.Predict(context.Background(), PredictOptions{Query: "AAPL"}))
	require.True(t, mr.Exists(cache.Key("AAPL")))

	require.NoError(t, a.Trade(context.Background(), TradeOptions{Query: "AAPL"}))
	assert.False(t, mr.Exists(cache.Key("AAPL")))
}

func TestInteractiveWatchTradesAndRefreshesLedger(t *testing.T) {
	b := &backend{}
	srv := newBackend(t, b)
	a, out := newTestApp(t, srv.URL)
	a.Config.Poller.Interval = time.Hour

	pr, pw := io.Pipe()
	a.In = pr
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Watch(ctx, WatchOptions{Limit: 10, Interactive: true}) }()

	send := func(line string) {
		_, err := io.WriteString(pw, line+"\n")
		require.NoError(t, err)
	}
	waitFor := func(text string) {
		require.Eventually(t, func() bool { return strings.Contains(out.String(), text) }, 2*time.Second, 10*time.Millisecond, text)
	}

	require.Eventually(t, func() bool { return b.listCalls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	send("trade")
	waitFor("No active signal to trade.")

	send("apple inc")
	waitFor("Prediction for AAPL")

	send("trade")
	waitFor("Transaction recorded successfully")
	require.Eventually(t, func() bool { return b.listCalls.Load() == 2 }, 2*time.Second, 10*time.Millisecond,
		"ledger should refresh right after the trade")

	send("clear")
	waitFor("Prediction cleared.")

	cancel()
	_ = pw.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.Equal(t, int32(1), b.executeCalls.Load())
}

func TestCompaniesListsKnownNames(t *testing.T) {
	a, out := newTestApp(t, "http://127.0.0.1:1")
	a.Companies()
	assert.Contains(t, out.String(), "APPLE INC")
	assert.Contains(t, out.String(), "AAPL")
}

func TestRenderAttempts(t *testing.T) {
	var buf bytes.Buffer
	order := "abc123"
	renderAttempts(&buf, []storage.AttemptRecord{{
		AttemptID: "a1",
		Ticker:    "AAPL",
		Signal:    "BUY",
		State:     "RECORDED",
		Quantity:  decimal.NewFromInt(10),
		OrderID:   &order,
		Detail:    "Transaction recorded\nsuccessfully",
		CreatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}})
	assert.Contains(t, buf.String(), "2024-03-01 10:00:00")
	assert.Contains(t, buf.String(), "abc123")
	assert.Contains(t, buf.String(), "Transaction recorded successfully")

	buf.Reset()
	renderAttempts(&buf, nil)
	assert.Contains(t, buf.String(), "no trade attempts recorded")
}

func TestAttemptsRequiresDatabase(t *testing.T) {
	a, _ := newTestApp(t, "http://127.0.0.1:1")
	assert.Error(t, a.Attempts(context.Background(), AttemptsOptions{Limit: 5}))
}
