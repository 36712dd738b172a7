package repository

import (
	"context"
	"time"

	"QuantPulse/internal/domain/models"
)

// Timeframe represents candle resolution buckets.
type Timeframe string

const (
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
	TF1h Timeframe = "1h"
)

// CandleStore persists OHLCV bars. Upsert is idempotent on
// (exchange, symbol, timeframe, open_time); re-ingesting the same bars
// never duplicates rows.
type CandleStore interface {
	Init(ctx context.Context) error // ensure tables
	Upsert(ctx context.Context, candles []models.Candle) error
	LatestOpenTime(ctx context.Context, exchange, symbol string, tf Timeframe) (time.Time, error)
	GetLatestN(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
	Health(ctx context.Context) error
	Close() error
}

// ScoreStore keeps composite score history for audit.
type ScoreStore interface {
	Insert(ctx context.Context, s models.CompositeScore) error
}

// MarketSource fetches candles from the exchange REST API.
type MarketSource interface {
	FetchSince(ctx context.Context, symbol string, tf Timeframe, since time.Time, limit int) ([]models.Candle, error)
}
