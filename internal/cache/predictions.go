package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradedesk/internal/gateway"
)

// DefaultTTL bounds how long a cached prediction is served.
const DefaultTTL = time.Minute

const keyPrefix = "tradedesk:prediction:"

// Options configure the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewClient opens and pings a Redis connection.
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("连接 redis 失败: %w", err)
	}
	return rdb, nil
}

// Predictions serves predictions from Redis and falls back to the upstream
// predictor. Only successful answers are cached; a Redis fault never fails
// the call.
type Predictions struct {
	next   gateway.Predictor
	rdb    redis.Cmdable
	ttl    time.Duration
	logger zerolog.Logger
}

// NewPredictions wraps next with a read-through cache.
func NewPredictions(next gateway.Predictor, rdb redis.Cmdable, ttl time.Duration, logger zerolog.Logger) *Predictions {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Predictions{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With().Str("component", "prediction_cache").Logger(),
	}
}

type cachedPrediction struct {
	Ticker         string           `json:"ticker"`
	CurrentPrice   decimal.Decimal  `json:"current_price"`
	PredictedPrice decimal.Decimal  `json:"predicted_price"`
	Signal         gateway.Signal   `json:"signal"`
	PlotPNG        []byte           `json:"plot_png,omitempty"`
	ValueAtRisk    *decimal.Decimal `json:"var_95,omitempty"`
}

// Predict implements gateway.Predictor.
func (p *Predictions) Predict(ctx context.Context, ticker string) (gateway.PredictionSnapshot, error) {
	key := Key(ticker)

	raw, err := p.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached cachedPrediction
		if err := json.Unmarshal(raw, &cached); err == nil {
			p.logger.Debug().Str("ticker", ticker).Msg("prediction cache hit")
			return gateway.PredictionSnapshot(cached), nil
		}
		p.logger.Warn().Str("key", key).Msg("dropping undecodable cache entry")
	case errors.Is(err, redis.Nil):
	default:
		p.logger.Warn().Err(err).Msg("prediction cache read failed")
	}

	snap, err := p.next.Predict(ctx, ticker)
	if err != nil {
		return snap, err
	}

	payload, err := json.Marshal(cachedPrediction(snap))
	if err != nil {
		p.logger.Warn().Err(err).Msg("encode prediction for cache")
		return snap, nil
	}
	if err := p.rdb.Set(ctx, key, payload, p.ttl).Err(); err != nil {
		p.logger.Warn().Err(err).Msg("prediction cache write failed")
	}
	return snap, nil
}

// Invalidate removes the cached prediction for ticker.
func (p *Predictions) Invalidate(ctx context.Context, ticker string) error {
	return p.rdb.Del(ctx, Key(ticker)).Err()
}

// Key returns the Redis key for ticker.
func Key(ticker string) string {
	return keyPrefix + strings.ToUpper(strings.TrimSpace(ticker))
}

var _ gateway.Predictor = (*Predictions)(nil)
