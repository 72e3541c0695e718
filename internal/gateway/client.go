package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultBaseURL   = "http://127.0.0.1:8000"
	defaultUserAgent = "tradedesk/1.0"

	predictPath           = "/predict"
	executeTradePath      = "/execute-trade"
	recordTransactionPath = "/record-transaction"
	transactionsPath      = "/transactions"
	registerPath          = "/register"
	loginPath             = "/login"
	accountStatusPath     = "/account-status"
)

// Predictor returns price predictions for a ticker.
type Predictor interface {
	Predict(ctx context.Context, ticker string) (PredictionSnapshot, error)
}

// TradeExecutor asks the brokerage backend to execute a trade.
type TradeExecutor interface {
	ExecuteTrade(ctx context.Context, signal Signal, ticker string) (TradeExecutionResult, error)
}

// TransactionRecorder persists an execution result to the ledger.
type TransactionRecorder interface {
	RecordTransaction(ctx context.Context, result TradeExecutionResult) (RecordReceipt, error)
}

// TransactionLister reads the ledger.
type TransactionLister interface {
	ListTransactions(ctx context.Context) ([]TransactionRecord, error)
}

// Options parameterise the service client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client talks to the prediction/trading service. It never retries.
type Client struct {
	http   *resty.Client
	logger zerolog.Logger
}

// New constructs a service client.
func New(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	log := logger.With().Str("component", "gateway").Logger()

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetLogger(restyLogger{log}).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)

	return &Client{http: client, logger: log}
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.NewString())
}

// Predict fetches a prediction snapshot for ticker.
func (c *Client) Predict(ctx context.Context, ticker string) (PredictionSnapshot, error) {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return PredictionSnapshot{}, fmt.Errorf("predict: %w: empty ticker", ErrInvalidTicker)
	}

	resp, err := c.request(ctx).
		SetQueryParam("ticker", ticker).
		Get(predictPath)
	if err != nil {
		return PredictionSnapshot{}, unreachable("predict", err)
	}
	if !resp.IsSuccess() {
		return PredictionSnapshot{}, newRemoteError("predict", ErrInvalidTicker, resp.StatusCode(), resp.Body(), "prediction unavailable")
	}

	var payload predictResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return PredictionSnapshot{}, fmt.Errorf("predict: decode response: %w", err)
	}

	snapshot := PredictionSnapshot{
		Ticker:         strings.ToUpper(ticker),
		CurrentPrice:   payload.CurrentPrice,
		PredictedPrice: payload.PredictedPrice,
		Signal:         payload.Signal,
	}
	if payload.Ticker != "" {
		snapshot.Ticker = payload.Ticker
	}
	if payload.ValueAtRisk.Valid {
		v := payload.ValueAtRisk.Decimal
		snapshot.ValueAtRisk = &v
	}
	if payload.PlotBase64 != "" {
		plot, err := base64.StdEncoding.DecodeString(payload.PlotBase64)
		if err != nil {
			c.logger.Warn().Err(err).Str("ticker", snapshot.Ticker).Msg("discarding undecodable prediction plot")
		} else {
			snapshot.PlotPNG = plot
		}
	}

	c.logger.Debug().Str("ticker", snapshot.Ticker).
		Str("signal", string(snapshot.Signal)).
		Str("predicted", snapshot.PredictedPrice.String()).
		Msg("prediction fetched")
	return snapshot, nil
}

// ExecuteTrade submits signal for ticker and returns the raw result body.
func (c *Client) ExecuteTrade(ctx context.Context, signal Signal, ticker string) (TradeExecutionResult, error) {
	resp, err := c.request(ctx).
		SetQueryParam("signal", signal.Wire()).
		SetQueryParam("ticker", ticker).
		SetHeader("Content-Type", "application/json").
		Post(executeTradePath)
	if err != nil {
		return nil, unreachable("execute trade", err)
	}
	if !resp.IsSuccess() {
		return nil, newRemoteError("execute trade", ErrExecutionRejected, resp.StatusCode(), resp.Body(), "trade execution failed")
	}

	body := resp.Body()
	if len(body) == 0 || !json.Valid(body) {
		return nil, &RemoteError{Op: "execute trade", StatusCode: resp.StatusCode(), Detail: "malformed trade result", kind: ErrExecutionRejected}
	}

	result := make(TradeExecutionResult, len(body))
	copy(result, body)
	return result, nil
}

// RecordTransaction sends result, byte for byte, to the ledger.
func (c *Client) RecordTransaction(ctx context.Context, result TradeExecutionResult) (RecordReceipt, error) {
	resp, err := c.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody([]byte(result)).
		Post(recordTransactionPath)
	if err != nil {
		return RecordReceipt{}, unreachable("record transaction", err)
	}
	if !resp.IsSuccess() {
		return RecordReceipt{}, newRemoteError("record transaction", ErrPersistenceRejected, resp.StatusCode(), resp.Body(), "saving transaction failed")
	}

	var receipt RecordReceipt
	if len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), &receipt); err != nil {
			c.logger.Warn().Err(err).Msg("record transaction acknowledged with undecodable body")
		}
	}
	return receipt, nil
}

// ListTransactions returns the ledger in service order.
func (c *Client) ListTransactions(ctx context.Context) ([]TransactionRecord, error) {
	resp, err := c.request(ctx).Get(transactionsPath)
	if err != nil {
		return nil, unreachable("list transactions", err)
	}
	if !resp.IsSuccess() {
		return nil, newRemoteError("list transactions", ErrServiceUnreachable, resp.StatusCode(), resp.Body(), "")
	}

	var payload listTransactionsResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("list transactions: decode response: %w", err)
	}
	if payload.Data == nil {
		return []TransactionRecord{}, nil
	}
	for _, rec := range payload.Data {
		if raw := rec.UnparsedTimestamp(); raw != "" {
			c.logger.Warn().Str("transaction_id", rec.ID).Str("executed_at", raw).
				Msg("ledger row has an unrecognised timestamp; keeping it undated")
		}
	}
	return payload.Data, nil
}

// Register creates a user account.
func (c *Client) Register(ctx context.Context, reg Registration) (string, error) {
	var ack struct {
		Message string `json:"message"`
	}
	if err := c.postJSON(ctx, "register", registerPath, reg, &ack); err != nil {
		return "", err
	}
	return ack.Message, nil
}

// Login verifies credentials.
func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	var res LoginResult
	if err := c.postJSON(ctx, "login", loginPath, creds, &res); err != nil {
		return LoginResult{}, err
	}
	return res, nil
}

// AccountStatus reports the brokerage account state.
func (c *Client) AccountStatus(ctx context.Context) (Account, error) {
	resp, err := c.request(ctx).Get(accountStatusPath)
	if err != nil {
		return Account{}, unreachable("account status", err)
	}
	if !resp.IsSuccess() {
		return Account{}, newRemoteError("account status", nil, resp.StatusCode(), resp.Body(), "")
	}

	var account Account
	if err := json.Unmarshal(resp.Body(), &account); err != nil {
		return Account{}, fmt.Errorf("account status: decode response: %w", err)
	}
	if account.Status == "error" {
		return Account{}, &RemoteError{Op: "account status", StatusCode: resp.StatusCode(), Detail: account.Message}
	}
	return account, nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, body, out any) error {
	resp, err := c.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	if err != nil {
		return unreachable(op, err)
	}
	if !resp.IsSuccess() {
		return newRemoteError(op, nil, resp.StatusCode(), resp.Body(), op+" failed")
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func unreachable(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrServiceUnreachable, err)
}

type restyLogger struct {
	logger zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error().Msgf(format, v...)
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn().Msgf(format, v...)
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug().Msgf(format, v...)
}

var (
	_ Predictor           = (*Client)(nil)
	_ TradeExecutor       = (*Client)(nil)
	_ TransactionRecorder = (*Client)(nil)
	_ TransactionLister   = (*Client)(nil)
	_ resty.Logger        = restyLogger{}
)
