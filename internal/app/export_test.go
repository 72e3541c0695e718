package app

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedesk/internal/gateway"
)

func ledgerRows() []gateway.TransactionRecord {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	order := "abc123"
	price := decimal.RequireFromString("150.25")
	return []gateway.TransactionRecord{
		{ID: "t3", Ticker: "AAPL", Action: "SELL", Quantity: decimal.NewFromInt(4), Status: "FILLED", ExecutedAt: base.Add(2 * time.Hour)},
		{ID: "t1", Ticker: "AAPL", Action: "BUY", Quantity: decimal.NewFromInt(10), Price: &price, Status: "FILLED", OrderID: &order, ExecutedAt: base},
		{ID: "t2", Ticker: "TSLA", Action: "Buy", Quantity: decimal.NewFromInt(3), Status: "FILLED", ExecutedAt: base.Add(time.Hour)},
		{ID: "t0", Ticker: "MSFT", Action: "BUY", Quantity: decimal.NewFromInt(1), Status: "PENDING"},
	}
}

func TestFilterWindowSortsAndDropsUndated(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 1, 11, 30, 0, 0, time.UTC)

	got := filterWindow(ledgerRows(), from, to)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].ID)
	assert.Equal(t, "t2", got[1].ID)
}

func TestDownsample(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	assert.Equal(t, items, downsample(items, 0))
	assert.Equal(t, []int{0, 3, 6, 9}, downsample(items, 4))
	assert.Equal(t, []int{9}, downsample(items, 1))
}

func TestNetPositions(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := filterWindow(ledgerRows(), from, from.Add(24*time.Hour))

	positions := netPositions(rows)
	require.Len(t, positions["AAPL"], 2)
	assert.True(t, positions["AAPL"][0].Net.Equal(decimal.NewFromInt(10)))
	assert.True(t, positions["AAPL"][1].Net.Equal(decimal.NewFromInt(6)))
	require.Len(t, positions["TSLA"], 1)
	assert.True(t, positions["TSLA"][0].Net.Equal(decimal.NewFromInt(3)))
}

func TestWriteTransactionsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "ledger.csv")
	require.NoError(t, writeTransactionsCSV(path, ledgerRows()[:2]))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, "id", rows[0][0])
	assert.Equal(t, []string{"t1", "2024-03-01T10:00:00Z", "AAPL", "BUY", "10", "150.25", "FILLED", "abc123", ""}, rows[2])
}

func TestWritePositionsPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.png")
	require.NoError(t, writePositionsPNG(path, ledgerRows()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestExportFromBackend(t *testing.T) {
	srv := newBackend(t, &backend{})
	a, _ := newTestApp(t, srv.URL)
	dir := t.TempDir()

	from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	err := a.Export(context.Background(), ExportOptions{
		From:    &from,
		To:      &to,
		CSVPath: filepath.Join(dir, "ledger.csv"),
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "ledger.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "tx-1")
}

func TestExportRequiresOutput(t *testing.T) {
	a, _ := newTestApp(t, "http://127.0.0.1:1")
	assert.Error(t, a.Export(context.Background(), ExportOptions{}))
}
