package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"QuantPulse/internal/domain/models"
	domrepo "QuantPulse/internal/domain/repository"
	pkgch "QuantPulse/pkg/clickhouse"
	applogger "QuantPulse/pkg/logger"
)

// Idempotent upsert: the ReplacingMergeTree key is
// (exchange, symbol, timeframe, open_time), so re-ingested bars replace
// rather than duplicate. Reads go through FINAL to collapse unmerged
// duplicates.
var candleSchema = []string{
	`CREATE DATABASE IF NOT EXISTS quantpulse`,
	`CREATE TABLE IF NOT EXISTS quantpulse.candles (
        exchange    LowCardinality(String),
        symbol      LowCardinality(String),
        timeframe   LowCardinality(String),
        open_time   DateTime('UTC'),
        open        Float64,
        high        Float64,
        low         Float64,
        close       Float64,
        volume      Float64,
        inserted_at DateTime DEFAULT now()
    ) ENGINE = ReplacingMergeTree(inserted_at)
    ORDER BY (exchange, symbol, timeframe, open_time)`,
}

// CHCandleStore implements CandleStore backed by ClickHouse.
type CHCandleStore struct {
	client *pkgch.Client
	db     *sql.DB
	l      *applogger.Logger
}

var _ domrepo.CandleStore = (*CHCandleStore)(nil)

func NewCHCandleStore(ch *pkgch.Client) *CHCandleStore {
	return &CHCandleStore{client: ch, db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHCandleStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHCandleStore) Init(ctx context.Context) error {
	if err := s.client.InitSchema(ctx, candleSchema); err != nil {
		return fmt.Errorf("candle schema: %w", err)
	}
	return nil
}

func (s *CHCandleStore) Upsert(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	start := time.Now()

	const chunkSize = 2000
	for lo := 0; lo < len(candles); lo += chunkSize {
		hi := lo + chunkSize
		if hi > len(candles) {
			hi = len(candles)
		}

		values := make([]string, 0, hi-lo)
		args := make([]interface{}, 0, (hi-lo)*9)
		for _, c := range candles[lo:hi] {
			if c.Symbol == "" || c.OpenTime.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				c.Exchange, c.Symbol, c.Timeframe, c.OpenTime,
				c.Open, c.High, c.Low, c.Close, c.Volume,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := "INSERT INTO quantpulse.candles (exchange, symbol, timeframe, open_time, open, high, low, close, volume) VALUES " +
			strings.Join(values, ",")
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse candle upsert error",
					applogger.Int("rows", len(values)),
					applogger.Error(err),
				)
			}
			return fmt.Errorf("upsert candles: %w", err)
		}
	}

	if s.l != nil {
		s.l.Info("clickhouse candle upsert ok",
			applogger.String("symbol", candles[0].Symbol),
			applogger.Int("rows", len(candles)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

// LatestOpenTime returns the ingestion checkpoint: the newest stored
// open_time for the series, or the zero time when nothing is stored.
func (s *CHCandleStore) LatestOpenTime(ctx context.Context, exchange, symbol string, tf domrepo.Timeframe) (time.Time, error) {
	const q = `
        SELECT max(open_time), count()
        FROM quantpulse.candles
        WHERE exchange = ? AND symbol = ? AND timeframe = ?
    `
	var latest time.Time
	var count uint64
	row := s.db.QueryRowContext(ctx, q, exchange, symbol, string(tf))
	if err := row.Scan(&latest, &count); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse checkpoint query error",
				applogger.String("symbol", symbol),
				applogger.String("tf", string(tf)),
				applogger.Error(err),
			)
		}
		return time.Time{}, fmt.Errorf("latest open time: %w", err)
	}
	if count == 0 {
		return time.Time{}, nil
	}
	return latest.UTC(), nil
}

func (s *CHCandleStore) GetLatestN(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	start := time.Now()
	const q = `
        SELECT exchange, symbol, timeframe, open_time, open, high, low, close, volume
        FROM quantpulse.candles FINAL
        WHERE symbol = ? AND timeframe = ?
        ORDER BY open_time DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), n)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse latest_candles query error",
				applogger.String("symbol", symbol),
				applogger.String("tf", string(tf)),
				applogger.Int("limit", n),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.Candle, 0, n)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Exchange, &c.Symbol, &c.Timeframe, &c.OpenTime,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.OpenTime = c.OpenTime.UTC()
		tmp = append(tmp, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	if s.l != nil {
		s.l.Info("clickhouse latest_candles ok",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("rows", len(tmp)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return tmp, nil
}

func (s *CHCandleStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHCandleStore) Close() error {
	return nil // connection pool managed by pkg client
}
