package app

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"tradedesk/internal/gateway"
	"tradedesk/internal/journal"
	"tradedesk/internal/storage"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	buyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	sellStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	holdStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

func signalStyle(s gateway.Signal) lipgloss.Style {
	switch s {
	case gateway.SignalBuy:
		return buyStyle
	case gateway.SignalSell:
		return sellStyle
	default:
		return holdStyle
	}
}

func renderPrediction(w io.Writer, snap gateway.PredictionSnapshot) {
	fmt.Fprintln(w, titleStyle.Render("Prediction for "+snap.Ticker))
	fmt.Fprintf(w, "Current price:   %s\n", formatMoney(snap.CurrentPrice))
	fmt.Fprintf(w, "Predicted price: %s (%s)\n", formatMoney(snap.PredictedPrice), formatChange(snap.CurrentPrice, snap.PredictedPrice))
	fmt.Fprintf(w, "Signal:          %s\n", signalStyle(snap.Signal).Render(string(snap.Signal)))
	if snap.ValueAtRisk != nil {
		fmt.Fprintf(w, "VaR (95%%):       %s%%\n", snap.ValueAtRisk.Mul(decimal.NewFromInt(100)).StringFixed(2))
	}
	if !snap.HasPlot() {
		fmt.Fprintln(w, mutedStyle.Render("No chart returned"))
	}
}

func renderTransactions(w io.Writer, records []gateway.TransactionRecord, limit int) {
	if len(records) == 0 {
		fmt.Fprintln(w, "no transactions found")
		return
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Executed (UTC)\tTicker\tAction\tQty\tPrice\tStatus\tOrder\tMessage")
	for _, rec := range records {
		executed := "-"
		if !rec.ExecutedAt.IsZero() {
			executed = rec.ExecutedAt.UTC().Format(time.DateTime)
		}
		price := "-"
		if rec.Price != nil {
			price = formatMoney(*rec.Price)
		}
		order := "-"
		if rec.OrderID != nil && *rec.OrderID != "" {
			order = *rec.OrderID
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			executed,
			rec.Ticker,
			rec.Action,
			rec.Quantity.String(),
			price,
			rec.Status,
			order,
			sanitizeInline(rec.Message),
		)
	}
	writer.Flush()
}

func renderPending(w io.Writer, entries []journal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, okStyle.Render("No unrecorded trades."))
		return
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Attempt\tExecuted (UTC)\tSignal\tTicker\tReason")
	for _, e := range entries {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			e.AttemptID,
			e.ExecutedAt.UTC().Format(time.DateTime),
			e.Signal,
			e.Ticker,
			sanitizeInline(e.Reason),
		)
	}
	writer.Flush()
}

func renderAttempts(w io.Writer, attempts []storage.AttemptRecord) {
	if len(attempts) == 0 {
		fmt.Fprintln(w, "no trade attempts recorded")
		return
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "When (UTC)\tAttempt\tSignal\tTicker\tQty\tState\tOrder\tDetail")
	for _, at := range attempts {
		order := "-"
		if at.OrderID != nil && *at.OrderID != "" {
			order = *at.OrderID
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			at.CreatedAt.UTC().Format(time.DateTime),
			at.AttemptID,
			at.Signal,
			at.Ticker,
			at.Quantity.String(),
			at.State,
			order,
			sanitizeInline(at.Detail),
		)
	}
	writer.Flush()
}

func renderCompanies(w io.Writer, companies map[string]string) {
	names := make([]string, 0, len(companies))
	for name := range companies {
		names = append(names, name)
	}
	sort.Strings(names)

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Company\tTicker")
	for _, name := range names {
		fmt.Fprintf(writer, "%s\t%s\n", name, companies[name])
	}
	writer.Flush()
}

func renderAccount(w io.Writer, acct gateway.Account) {
	fmt.Fprintln(w, titleStyle.Render("Brokerage account"))
	fmt.Fprintf(w, "Status:       %s\n", acct.AccountStatus)
	fmt.Fprintf(w, "Buying power: %s\n", formatMoney(acct.BuyingPower))
	fmt.Fprintf(w, "Equity:       %s\n", formatMoney(acct.Equity))
	fmt.Fprintf(w, "Cash:         %s\n", formatMoney(acct.Cash))
}

func formatMoney(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func formatChange(from, to decimal.Decimal) string {
	if from.IsZero() {
		return "n/a"
	}
	pct := to.Sub(from).Div(from).Mul(decimal.NewFromInt(100))
	sign := ""
	if pct.IsPositive() {
		sign = "+"
	}
	return sign + pct.StringFixed(2) + "%"
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
