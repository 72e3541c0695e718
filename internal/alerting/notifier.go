package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notification 封装一次交易结果。
type Notification struct {
	AttemptID  string
	Ticker     string
	Signal     string
	State      string
	Quantity   decimal.Decimal
	OrderID    string
	Detail     string
	OccurredAt time.Time
}

// NeedsReconcile reports whether the trade executed without a ledger row.
func (n Notification) NeedsReconcile() bool {
	return n.State == "RECORDING_FAILED"
}

// Notifier 定义通知输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 通知器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("attempt_id", note.AttemptID).
		Str("ticker", note.Ticker).
		Str("state", note.State).
		Msg("trade notification sent (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	if note.NeedsReconcile() {
		builder.WriteString("[tradedesk] ACTION REQUIRED: trade executed but not in ledger\n")
	} else {
		builder.WriteString("[tradedesk] Trade update\n")
	}
	builder.WriteString(fmt.Sprintf("Time: %s UTC\n", note.OccurredAt.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Ticker: %s\n", note.Ticker))
	builder.WriteString(fmt.Sprintf("Signal: %s\n", note.Signal))
	builder.WriteString(fmt.Sprintf("State: %s\n", note.State))
	if !note.Quantity.IsZero() {
		builder.WriteString(fmt.Sprintf("Quantity: %s\n", note.Quantity.String()))
	}
	if note.OrderID != "" {
		builder.WriteString(fmt.Sprintf("Order: %s\n", note.OrderID))
	}
	builder.WriteString(fmt.Sprintf("Attempt: %s\n", note.AttemptID))
	if note.Detail != "" {
		builder.WriteString(note.Detail)
	}
	if note.NeedsReconcile() {
		builder.WriteString(fmt.Sprintf("\nRun: tradedesk reconcile --attempt %s", note.AttemptID))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
