package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"tradedesk/internal/gateway"
)

const defaultExportWindow = 30 * 24 * time.Hour

// Export renders ledger history as CSV and/or a PNG of net positions.
// Rows come from the local mirror when configured, otherwise from the backend.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.Add(-defaultExportWindow)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := a.loadLedgerWindow(ctx, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no transactions found for export window")
		return nil
	}

	downsampled := downsample(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting transactions")

	if opts.CSVPath != "" {
		if err := writeTransactionsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		// positions are cumulative, so the chart uses every row
		if err := writePositionsPNG(opts.PNGPath, records); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) loadLedgerWindow(ctx context.Context, from, to time.Time) ([]gateway.TransactionRecord, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store != nil {
		defer closeStore()
		return store.ListTransactionsBetween(ctx, from, to)
	}

	all, err := a.newGateway().ListTransactions(ctx)
	if err != nil {
		return nil, err
	}
	return filterWindow(all, from, to), nil
}

// filterWindow keeps rows executed within [from, to), ordered by time.
func filterWindow(records []gateway.TransactionRecord, from, to time.Time) []gateway.TransactionRecord {
	out := make([]gateway.TransactionRecord, 0, len(records))
	for _, rec := range records {
		if rec.ExecutedAt.IsZero() || rec.ExecutedAt.Before(from) || !rec.ExecutedAt.Before(to) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExecutedAt.Before(out[j].ExecutedAt) })
	return out
}

func downsample[T any](items []T, max int) []T {
	if max <= 0 || len(items) <= max {
		return items
	}
	if max == 1 {
		return items[len(items)-1:]
	}

	result := make([]T, 0, max)
	step := float64(len(items)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(items) {
			idx = len(items) - 1
		}
		result = append(result, items[idx])
	}
	return result
}

func writeTransactionsCSV(path string, records []gateway.TransactionRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"id", "executed_at", "ticker", "action", "quantity", "price", "status", "order_id", "message"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		executed := ""
		if !rec.ExecutedAt.IsZero() {
			executed = rec.ExecutedAt.UTC().Format(time.RFC3339)
		}
		price := ""
		if rec.Price != nil {
			price = rec.Price.String()
		}
		orderID := ""
		if rec.OrderID != nil {
			orderID = *rec.OrderID
		}
		row := []string{
			rec.ID,
			executed,
			rec.Ticker,
			rec.Action,
			rec.Quantity.String(),
			price,
			rec.Status,
			orderID,
			rec.Message,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// netPositions returns the running signed quantity per ticker.
func netPositions(records []gateway.TransactionRecord) map[string][]positionPoint {
	running := make(map[string]decimal.Decimal)
	out := make(map[string][]positionPoint)
	for _, rec := range records {
		if rec.ExecutedAt.IsZero() {
			continue
		}
		qty := rec.Quantity
		switch sig, _ := gateway.ParseSignal(rec.Action); sig {
		case gateway.SignalBuy:
		case gateway.SignalSell:
			qty = qty.Neg()
		default:
			continue
		}
		running[rec.Ticker] = running[rec.Ticker].Add(qty)
		out[rec.Ticker] = append(out[rec.Ticker], positionPoint{At: rec.ExecutedAt, Net: running[rec.Ticker]})
	}
	return out
}

type positionPoint struct {
	At  time.Time
	Net decimal.Decimal
}

func writePositionsPNG(path string, records []gateway.TransactionRecord) error {
	positions := netPositions(records)
	if len(positions) == 0 {
		return errors.New("no executed buy/sell rows to chart")
	}

	tickers := make([]string, 0, len(positions))
	for ticker := range positions {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	series := make([]chart.Series, 0, len(tickers))
	for _, ticker := range tickers {
		points := positions[ticker]
		// a single point cannot be drawn as a line
		if len(points) == 1 {
			points = append([]positionPoint{{At: points[0].At.Add(-time.Minute)}}, points...)
		}
		x := make([]time.Time, len(points))
		y := make([]float64, len(points))
		for i, p := range points {
			x[i] = p.At
			y[i] = p.Net.InexactFloat64()
		}
		series = append(series, chart.TimeSeries{Name: ticker, XValues: x, YValues: y})
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Net position (shares)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := graph.Render(chart.PNG, file); err != nil {
		return fmt.Errorf("render position chart: %w", err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
